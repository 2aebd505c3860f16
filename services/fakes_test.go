package services

import (
	"context"
	"errors"
	"sync"

	"docqa-platform/models"
)

// fakeEmbedder returns deterministic vectors. Indexes in failItems get a
// nil vector back from batch embedding; failAll fails every call.
type fakeEmbedder struct {
	failAll   bool
	failItems map[int]bool
	calls     int
}

func (f *fakeEmbedder) vector(seed int) []float32 {
	return []float32{float32(seed), 1, 0}
}

func (f *fakeEmbedder) EmbedText(ctx context.Context, text, mode string) ([]float32, error) {
	f.calls++
	if f.failAll {
		return nil, errors.New("embedding backend down")
	}
	return f.vector(len(text)), nil
}

func (f *fakeEmbedder) EmbedTextBatch(ctx context.Context, texts []string, mode string) ([][]float32, error) {
	f.calls++
	if f.failAll {
		return nil, errors.New("embedding backend down")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		if f.failItems[i] {
			continue
		}
		out[i] = f.vector(i)
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedImage(ctx context.Context, imageBase64 string) ([]float32, error) {
	f.calls++
	if f.failAll {
		return nil, errors.New("embedding backend down")
	}
	return f.vector(0), nil
}

// fakeIndex is an in-memory stand-in for the vector store. Search returns
// a tenant's chunks in insertion order with monotonically decreasing
// scores starting from topScore.
type fakeIndex struct {
	mu          sync.Mutex
	chunks      map[string][]models.Chunk // tenant -> chunks
	topScore    float64
	searchCalls int
	deleteCalls int
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{chunks: make(map[string][]models.Chunk), topScore: 0.9}
}

func (f *fakeIndex) EnsureCollection(ctx context.Context, tenantID string) error { return nil }

func (f *fakeIndex) UpsertChunks(ctx context.Context, tenantID string, chunks []models.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks[tenantID] = append(f.chunks[tenantID], chunks...)
	return nil
}

func (f *fakeIndex) Search(ctx context.Context, tenantID string, vector []float32, topK int, sourceFile string) ([]models.ScoredCandidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls++
	var out []models.ScoredCandidate
	score := f.topScore
	for _, chunk := range f.chunks[tenantID] {
		if sourceFile != "" && chunk.SourceFile != sourceFile {
			continue
		}
		out = append(out, models.ScoredCandidate{Chunk: chunk, Score: score})
		score -= 0.05
		if len(out) == topK {
			break
		}
	}
	return out, nil
}

func (f *fakeIndex) DeleteBySource(ctx context.Context, tenantID, sourceFile string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	kept := f.chunks[tenantID][:0]
	for _, chunk := range f.chunks[tenantID] {
		if chunk.SourceFile != sourceFile {
			kept = append(kept, chunk)
		}
	}
	f.chunks[tenantID] = kept
	return nil
}

// fakeStore records metadata writes in memory.
type fakeStore struct {
	mu      sync.Mutex
	docs    map[string]models.Document // tenant/filename -> doc
	turns   []models.ChatTurn
	history []models.ChatTurn
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: make(map[string]models.Document)}
}

func docKey(tenantID, filename string) string { return tenantID + "/" + filename }

func (f *fakeStore) InsertDocument(ctx context.Context, tenantID, filename string, chunkCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[docKey(tenantID, filename)] = models.Document{TenantID: tenantID, Filename: filename, ChunkCount: chunkCount}
	return nil
}

func (f *fakeStore) DeleteDocument(ctx context.Context, tenantID, filename string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, docKey(tenantID, filename))
	return nil
}

func (f *fakeStore) ListDocuments(ctx context.Context, tenantID string) ([]models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Document
	for _, doc := range f.docs {
		if doc.TenantID == tenantID {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (f *fakeStore) InsertChatTurn(ctx context.Context, turn models.ChatTurn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turns = append(f.turns, turn)
	return nil
}

func (f *fakeStore) GetChatHistory(ctx context.Context, tenantID string, limit int, sourceFile string) ([]models.ChatTurn, error) {
	return f.history, nil
}

func (f *fakeStore) DeleteChatHistory(ctx context.Context, tenantID, sourceFile string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turns = nil
	return nil
}

// fakeCompleter returns a canned answer and records the requests it saw.
type fakeCompleter struct {
	mu       sync.Mutex
	answer   string
	fail     bool
	requests []models.CompletionRequest
}

func (f *fakeCompleter) Complete(ctx context.Context, req models.CompletionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.fail {
		return "", errors.New("completion backend down")
	}
	return f.answer, nil
}

func (f *fakeCompleter) CompleteStream(ctx context.Context, req models.CompletionRequest) (<-chan models.StreamDelta, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return nil, errors.New("completion backend down")
	}
	out := make(chan models.StreamDelta, 2)
	out <- models.StreamDelta{Text: f.answer[:len(f.answer)/2]}
	out <- models.StreamDelta{Text: f.answer[len(f.answer)/2:]}
	close(out)
	return out, nil
}

func (f *fakeCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// fakeTranscriber returns fixed transcription text.
type fakeTranscriber struct {
	text string
	fail bool
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, imageBase64, mimeType string) (string, error) {
	if f.fail {
		return "", errors.New("vision backend down")
	}
	return f.text, nil
}

func assertKind(t interface {
	Helper()
	Fatalf(string, ...any)
}, err error, kind ErrorKind) {
	t.Helper()
	var pe *PipelineError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PipelineError, got %v", err)
	}
	if pe.Kind != kind {
		t.Fatalf("error kind = %s, want %s (err: %v)", pe.Kind, kind, pe)
	}
}
