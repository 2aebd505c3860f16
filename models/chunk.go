package models

import "fmt"

// Chunk types stored in the vector index payload.
const (
	ChunkTypeText  = "text"
	ChunkTypeImage = "image"
)

// Chunk is a bounded unit of document text (or one transcribed image) with
// the metadata needed to trace it back to its source.
type Chunk struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	SourceFile  string    `json:"source_file"`
	PageNumber  int       `json:"page_number"`
	ChunkType   string    `json:"chunk_type"`
	ChunkIndex  int       `json:"chunk_index"`
	ImageBase64 string    `json:"image_base64,omitempty"`
	Vector      []float32 `json:"vector,omitempty"`
}

// Validate checks the fields required before a chunk may be indexed.
func (c Chunk) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("chunk missing id")
	}
	if c.Text == "" {
		return fmt.Errorf("chunk %s has empty text", c.ID)
	}
	if c.SourceFile == "" {
		return fmt.Errorf("chunk %s missing source file", c.ID)
	}
	if c.ChunkType != ChunkTypeText && c.ChunkType != ChunkTypeImage {
		return fmt.Errorf("chunk %s has unknown type %q", c.ID, c.ChunkType)
	}
	return nil
}

// ScoredCandidate is a retrieval-time chunk with its similarity score.
// CombinedScore and LexicalOverlap are filled in by the reranker.
// Candidates are never persisted.
type ScoredCandidate struct {
	Chunk          Chunk
	Score          float64
	CombinedScore  float64
	LexicalOverlap float64
}

// PageText is one page (or section) of raw extracted text, produced by the
// format-specific extractors before chunking.
type PageText struct {
	PageNumber int
	Text       string
}
