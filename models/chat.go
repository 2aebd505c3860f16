package models

import "time"

// Answer modes reported to the caller.
const (
	ModeDocument = "document"
	ModeGeneral  = "general"
)

// ChatTurn is one question/answer pair in a tenant's history.
// SourceFile is empty for general-mode conversations.
type ChatTurn struct {
	TenantID   string    `bson:"tenant_id" json:"tenant_id"`
	Question   string    `bson:"question" json:"question"`
	Answer     string    `bson:"answer" json:"answer"`
	SourceFile string    `bson:"source_file,omitempty" json:"source_file,omitempty"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
}

// AskRequest is the chat endpoint payload.
type AskRequest struct {
	Question   string `json:"question" binding:"required"`
	TenantID   string `json:"tenant_id" binding:"required"`
	SourceFile string `json:"source_file"` // empty = general mode
	Stream     bool   `json:"stream"`
}

// Citation points an answer back at one piece of evidence.
type Citation struct {
	Index      int     `json:"index"` // [Source N] marker
	SourceFile string  `json:"source_file"`
	PageNumber int     `json:"page_number"`
	Score      float64 `json:"score"`
}

// AskResponse is the chat endpoint reply.
type AskResponse struct {
	Answer        string     `json:"answer"`
	Citations     []Citation `json:"citations"`
	EvidenceCount int        `json:"evidence_count"`
	Mode          string     `json:"mode"`
	ResponseMs    int64      `json:"response_time_ms"`
}
