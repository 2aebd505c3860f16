package services

import (
	"context"
	"encoding/base64"
	"path/filepath"
	"strings"

	"docqa-platform/internal/config"
	"docqa-platform/internal/logger"
	"docqa-platform/models"

	"github.com/google/uuid"
)

// IngestionService runs the write path: extract pages, chunk, embed,
// replace any previous index state for the filename, upsert, record
// metadata. Each request is a strictly sequential pipeline.
type IngestionService struct {
	cfg          *config.Config
	chunker      *Chunker
	extractor    *Extractor
	embedder     Embedder
	index        VectorIndex
	store        MetadataStore
	transcriber  ImageTranscriber
	allowedTypes map[string]bool
}

func NewIngestionService(cfg *config.Config, chunker *Chunker, extractor *Extractor, embedder Embedder, index VectorIndex, store MetadataStore, transcriber ImageTranscriber) *IngestionService {
	allowed := make(map[string]bool)
	for _, ext := range cfg.AllowedTypes {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" {
			allowed[ext] = true
		}
	}
	return &IngestionService{
		cfg:          cfg,
		chunker:      chunker,
		extractor:    extractor,
		embedder:     embedder,
		index:        index,
		store:        store,
		transcriber:  transcriber,
		allowedTypes: allowed,
	}
}

// IngestDocument processes one upload end to end and returns the number of
// chunks actually indexed.
func (s *IngestionService) IngestDocument(ctx context.Context, tenantID, filename string, data []byte) (int, error) {
	if tenantID == "" {
		return 0, validationError("tenant id is required")
	}
	if filename == "" {
		return 0, validationError("filename is required")
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !s.allowedTypes[ext] {
		return 0, validationError("unsupported file type %q", ext)
	}
	if len(data) == 0 {
		return 0, validationError("file %s is empty", filename)
	}
	if s.cfg.MaxFileSize > 0 && int64(len(data)) > s.cfg.MaxFileSize {
		return 0, validationError("file %s exceeds the size limit", filename)
	}

	if IsImage(filename) {
		return s.ingestImage(ctx, tenantID, filename, data)
	}

	pages, err := s.extractor.ExtractPages(ctx, filename, data)
	if err != nil {
		return 0, extractionError("could not extract text from "+filename, err)
	}
	if len(pages) == 0 {
		return 0, extractionError("no extractable content in "+filename, nil)
	}

	chunks := s.chunker.ChunkPages(pages, filename)
	if len(chunks) == 0 {
		return 0, extractionError("document "+filename+" produced no chunks", nil)
	}

	return s.IngestChunks(ctx, tenantID, filename, chunks)
}

// ingestImage indexes a single image as one transcribed chunk, embedded
// through the image embedding path.
func (s *IngestionService) ingestImage(ctx context.Context, tenantID, filename string, data []byte) (int, error) {
	encoded := base64.StdEncoding.EncodeToString(data)

	text, err := s.transcriber.Transcribe(ctx, encoded, ImageMimeType(filename))
	if err != nil {
		return 0, extractionError("could not transcribe image "+filename, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, extractionError("image "+filename+" produced no readable content", nil)
	}

	vector, err := s.embedder.EmbedImage(ctx, encoded)
	if err != nil {
		return 0, embeddingError("could not embed image "+filename, err)
	}

	chunk := models.Chunk{
		ID:          uuid.New().String(),
		Text:        text,
		SourceFile:  filename,
		PageNumber:  1,
		ChunkType:   models.ChunkTypeImage,
		ChunkIndex:  0,
		ImageBase64: encoded,
		Vector:      vector,
	}
	return s.persistChunks(ctx, tenantID, filename, []models.Chunk{chunk})
}

// IngestChunks embeds pre-built chunks and persists them, superseding any
// previous upload of the same filename. Per-chunk embedding failures are
// skipped with a warning; zero successful embeddings fails the upload.
func (s *IngestionService) IngestChunks(ctx context.Context, tenantID, filename string, chunks []models.Chunk) (int, error) {
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	vectors, err := s.embedder.EmbedTextBatch(ctx, texts, EmbedModePassage)
	if err != nil {
		return 0, embeddingError("embedding backend unavailable", err)
	}

	embedded := make([]models.Chunk, 0, len(chunks))
	for i, vector := range vectors {
		if vector == nil {
			logger.Warn("chunk embedding failed, skipping",
				"tenant_id", tenantID, "file", filename, "chunk_index", chunks[i].ChunkIndex)
			continue
		}
		chunk := chunks[i]
		chunk.Vector = vector
		embedded = append(embedded, chunk)
	}
	if len(embedded) == 0 {
		return 0, embeddingError("no chunks could be embedded for "+filename, nil)
	}

	return s.persistChunks(ctx, tenantID, filename, embedded)
}

func (s *IngestionService) persistChunks(ctx context.Context, tenantID, filename string, chunks []models.Chunk) (int, error) {
	for _, chunk := range chunks {
		if err := chunk.Validate(); err != nil {
			return 0, validationError("invalid chunk: %v", err)
		}
	}

	if err := s.index.EnsureCollection(ctx, tenantID); err != nil {
		return 0, storageError("could not prepare index for tenant "+tenantID, err)
	}

	// Re-uploading a filename replaces its chunks entirely.
	if err := s.index.DeleteBySource(ctx, tenantID, filename); err != nil {
		return 0, storageError("could not supersede previous upload of "+filename, err)
	}

	if err := s.index.UpsertChunks(ctx, tenantID, chunks); err != nil {
		return 0, storageError("could not index "+filename, err)
	}

	if err := s.store.InsertDocument(ctx, tenantID, filename, len(chunks)); err != nil {
		return 0, storageError("could not record document metadata for "+filename, err)
	}

	logger.Info("document ingested",
		"tenant_id", tenantID, "file", filename, "chunks", len(chunks))
	return len(chunks), nil
}

// DeleteDocument removes a document's chunks and its metadata record.
func (s *IngestionService) DeleteDocument(ctx context.Context, tenantID, filename string) error {
	if tenantID == "" || filename == "" {
		return validationError("tenant id and filename are required")
	}
	if err := s.index.DeleteBySource(ctx, tenantID, filename); err != nil {
		return storageError("could not delete chunks for "+filename, err)
	}
	if err := s.store.DeleteDocument(ctx, tenantID, filename); err != nil {
		return storageError("could not delete metadata for "+filename, err)
	}
	logger.Info("document deleted", "tenant_id", tenantID, "file", filename)
	return nil
}

// ListDocuments returns the tenant's uploaded documents.
func (s *IngestionService) ListDocuments(ctx context.Context, tenantID string) ([]models.Document, error) {
	if tenantID == "" {
		return nil, validationError("tenant id is required")
	}
	docs, err := s.store.ListDocuments(ctx, tenantID)
	if err != nil {
		return nil, storageError("could not list documents", err)
	}
	return docs, nil
}
