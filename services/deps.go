package services

import (
	"context"

	"docqa-platform/models"
)

// Embedding modes. Asymmetric embedding models encode stored passages and
// search queries differently.
const (
	EmbedModePassage = "passage"
	EmbedModeQuery   = "query"
)

// Embedder converts text or images into fixed-length vectors.
type Embedder interface {
	EmbedText(ctx context.Context, text, mode string) ([]float32, error)
	// EmbedTextBatch returns one vector per input; a nil entry marks an
	// item that failed without failing the whole batch.
	EmbedTextBatch(ctx context.Context, texts []string, mode string) ([][]float32, error)
	EmbedImage(ctx context.Context, imageBase64 string) ([]float32, error)
}

// VectorIndex is the per-tenant chunk store.
type VectorIndex interface {
	EnsureCollection(ctx context.Context, tenantID string) error
	UpsertChunks(ctx context.Context, tenantID string, chunks []models.Chunk) error
	Search(ctx context.Context, tenantID string, vector []float32, topK int, sourceFile string) ([]models.ScoredCandidate, error)
	DeleteBySource(ctx context.Context, tenantID, sourceFile string) error
}

// Completer is one completion backend. The router holds two: a grounded
// backend for document answers and a conversational one for general mode.
type Completer interface {
	Complete(ctx context.Context, req models.CompletionRequest) (string, error)
	// CompleteStream sends increments until the channel closes. Cancelling
	// ctx abandons the stream without further effects.
	CompleteStream(ctx context.Context, req models.CompletionRequest) (<-chan models.StreamDelta, error)
}

// ImageTranscriber turns an image into text suitable for indexing.
type ImageTranscriber interface {
	Transcribe(ctx context.Context, imageBase64, mimeType string) (string, error)
}

// MetadataStore owns document and chat-history records.
type MetadataStore interface {
	InsertDocument(ctx context.Context, tenantID, filename string, chunkCount int) error
	DeleteDocument(ctx context.Context, tenantID, filename string) error
	ListDocuments(ctx context.Context, tenantID string) ([]models.Document, error)
	InsertChatTurn(ctx context.Context, turn models.ChatTurn) error
	GetChatHistory(ctx context.Context, tenantID string, limit int, sourceFile string) ([]models.ChatTurn, error)
	DeleteChatHistory(ctx context.Context, tenantID, sourceFile string) error
}
