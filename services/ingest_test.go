package services

import (
	"context"
	"testing"

	"docqa-platform/internal/config"
	"docqa-platform/models"
)

func testIngestConfig() *config.Config {
	return &config.Config{
		AllowedTypes:  []string{".pdf", ".docx", ".txt", ".csv", ".md", ".json", ".xlsx", ".png", ".jpg"},
		MaxChunkWords: 320,
		MinChunkWords: 25,
		MaxFileSize:   100 << 20,
	}
}

func newTestIngestion(cfg *config.Config, embedder Embedder, index VectorIndex, store MetadataStore, transcriber ImageTranscriber) *IngestionService {
	chunker := NewChunker(cfg.MaxChunkWords, cfg.MinChunkWords)
	return NewIngestionService(cfg, chunker, NewExtractor(), embedder, index, store, transcriber)
}

func TestIngestThreePagesWithEmptyMiddlePage(t *testing.T) {
	cfg := testIngestConfig()
	index := newFakeIndex()
	store := newFakeStore()
	svc := newTestIngestion(cfg, &fakeEmbedder{}, index, store, &fakeTranscriber{})

	chunker := NewChunker(cfg.MaxChunkWords, cfg.MinChunkWords)
	pages := []models.PageText{
		{PageNumber: 1, Text: makeWords(60, "one")},
		{PageNumber: 2, Text: "   \n\n  "},
		{PageNumber: 3, Text: makeWords(60, "three")},
	}
	chunks := chunker.ChunkPages(pages, "report.pdf")

	count, err := svc.IngestChunks(context.Background(), "t1", "report.pdf", chunks)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if count < 1 {
		t.Fatalf("chunk count = %d, want >= 1", count)
	}
	for _, chunk := range index.chunks["t1"] {
		if chunk.PageNumber == 2 {
			t.Errorf("chunk %s references empty page 2", chunk.ID)
		}
	}
	if doc, ok := store.docs["t1/report.pdf"]; !ok || doc.ChunkCount != count {
		t.Errorf("document metadata not recorded correctly: %+v", doc)
	}
}

func TestIngestSkipsFailedEmbeddingsButKeepsRest(t *testing.T) {
	cfg := testIngestConfig()
	index := newFakeIndex()
	svc := newTestIngestion(cfg, &fakeEmbedder{failItems: map[int]bool{1: true}}, index, newFakeStore(), &fakeTranscriber{})

	chunks := []models.Chunk{
		{ID: "c0", Text: "alpha text", SourceFile: "a.txt", PageNumber: 1, ChunkType: models.ChunkTypeText, ChunkIndex: 0},
		{ID: "c1", Text: "beta text", SourceFile: "a.txt", PageNumber: 1, ChunkType: models.ChunkTypeText, ChunkIndex: 1},
		{ID: "c2", Text: "gamma text", SourceFile: "a.txt", PageNumber: 1, ChunkType: models.ChunkTypeText, ChunkIndex: 2},
	}

	count, err := svc.IngestChunks(context.Background(), "t1", "a.txt", chunks)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if count != 2 {
		t.Fatalf("chunk count = %d, want 2 (one skipped)", count)
	}
	for _, chunk := range index.chunks["t1"] {
		if chunk.ID == "c1" {
			t.Error("chunk with failed embedding was indexed")
		}
	}
}

func TestIngestZeroEmbeddingsIsFatal(t *testing.T) {
	cfg := testIngestConfig()
	svc := newTestIngestion(cfg, &fakeEmbedder{failItems: map[int]bool{0: true}}, newFakeIndex(), newFakeStore(), &fakeTranscriber{})

	chunks := []models.Chunk{
		{ID: "c0", Text: "alpha", SourceFile: "a.txt", PageNumber: 1, ChunkType: models.ChunkTypeText},
	}
	_, err := svc.IngestChunks(context.Background(), "t1", "a.txt", chunks)
	if err == nil {
		t.Fatal("expected error when no chunk embeds")
	}
	assertKind(t, err, KindEmbedding)
}

func TestIngestRejectsUnsupportedType(t *testing.T) {
	svc := newTestIngestion(testIngestConfig(), &fakeEmbedder{}, newFakeIndex(), newFakeStore(), &fakeTranscriber{})

	_, err := svc.IngestDocument(context.Background(), "t1", "malware.exe", []byte("data"))
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertKind(t, err, KindValidation)
}

func TestIngestReuploadSupersedesPreviousChunks(t *testing.T) {
	cfg := testIngestConfig()
	index := newFakeIndex()
	svc := newTestIngestion(cfg, &fakeEmbedder{}, index, newFakeStore(), &fakeTranscriber{})

	text := []byte(makeWords(60, "first"))
	if _, err := svc.IngestDocument(context.Background(), "t1", "notes.txt", text); err != nil {
		t.Fatalf("first upload: %v", err)
	}
	firstIDs := make(map[string]bool)
	for _, chunk := range index.chunks["t1"] {
		firstIDs[chunk.ID] = true
	}

	text2 := []byte(makeWords(60, "second"))
	if _, err := svc.IngestDocument(context.Background(), "t1", "notes.txt", text2); err != nil {
		t.Fatalf("re-upload: %v", err)
	}
	for _, chunk := range index.chunks["t1"] {
		if firstIDs[chunk.ID] {
			t.Errorf("chunk %s from the first upload survived re-upload", chunk.ID)
		}
	}
}

func TestIngestImageUsesTranscription(t *testing.T) {
	cfg := testIngestConfig()
	index := newFakeIndex()
	svc := newTestIngestion(cfg, &fakeEmbedder{}, index, newFakeStore(), &fakeTranscriber{text: "a chart of quarterly revenue"})

	count, err := svc.IngestDocument(context.Background(), "t1", "chart.png", []byte{0x89, 0x50, 0x4e, 0x47})
	if err != nil {
		t.Fatalf("ingest image: %v", err)
	}
	if count != 1 {
		t.Fatalf("chunk count = %d, want 1", count)
	}
	chunk := index.chunks["t1"][0]
	if chunk.ChunkType != models.ChunkTypeImage {
		t.Errorf("chunk type = %q, want image", chunk.ChunkType)
	}
	if chunk.Text != "a chart of quarterly revenue" {
		t.Errorf("chunk text = %q", chunk.Text)
	}
}

func TestDeleteDocumentRemovesChunksAndMetadata(t *testing.T) {
	cfg := testIngestConfig()
	index := newFakeIndex()
	store := newFakeStore()
	svc := newTestIngestion(cfg, &fakeEmbedder{}, index, store, &fakeTranscriber{})

	if _, err := svc.IngestDocument(context.Background(), "t1", "a.txt", []byte(makeWords(40, "keep"))); err != nil {
		t.Fatalf("upload a: %v", err)
	}
	if _, err := svc.IngestDocument(context.Background(), "t1", "b.txt", []byte(makeWords(40, "drop"))); err != nil {
		t.Fatalf("upload b: %v", err)
	}

	if err := svc.DeleteDocument(context.Background(), "t1", "b.txt"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	for _, chunk := range index.chunks["t1"] {
		if chunk.SourceFile == "b.txt" {
			t.Errorf("chunk from deleted document still indexed: %s", chunk.ID)
		}
	}
	if _, ok := store.docs["t1/b.txt"]; ok {
		t.Error("metadata record for deleted document still present")
	}
	if _, ok := store.docs["t1/a.txt"]; !ok {
		t.Error("unrelated document metadata was removed")
	}
}
