package vectorstore

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"docqa-platform/models"
)

// fakeQdrant implements the REST surface the client uses, with real cosine
// scoring, so isolation and filtering semantics can be exercised end to end.
type fakeQdrant struct {
	mu          sync.Mutex
	collections map[string][]point
	upsertCalls int
	failUpserts bool
}

type point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

func newFakeQdrant() *fakeQdrant {
	return &fakeQdrant{collections: make(map[string][]point)}
}

func (f *fakeQdrant) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) < 2 || parts[0] != "collections" {
			http.NotFound(w, r)
			return
		}
		name := parts[1]

		f.mu.Lock()
		defer f.mu.Unlock()

		switch {
		case len(parts) == 2 && r.Method == http.MethodPut:
			if _, ok := f.collections[name]; ok {
				http.Error(w, `{"status":{"error":"already exists"}}`, http.StatusConflict)
				return
			}
			f.collections[name] = nil
			writeOK(w, nil)

		case len(parts) == 3 && parts[2] == "index":
			writeOK(w, nil)

		case len(parts) == 3 && parts[2] == "points" && r.Method == http.MethodPut:
			f.upsertCalls++
			if f.failUpserts {
				http.Error(w, `{"status":{"error":"backend failure"}}`, http.StatusInternalServerError)
				return
			}
			var body struct {
				Points []point `json:"points"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			f.collections[name] = append(f.collections[name], body.Points...)
			writeOK(w, nil)

		case len(parts) == 4 && parts[3] == "search":
			points, ok := f.collections[name]
			if !ok {
				http.Error(w, `{"status":{"error":"collection not found"}}`, http.StatusNotFound)
				return
			}
			var body struct {
				Vector []float32      `json:"vector"`
				Limit  int            `json:"limit"`
				Filter map[string]any `json:"filter"`
			}
			json.NewDecoder(r.Body).Decode(&body)

			type hit struct {
				ID      string         `json:"id"`
				Score   float64        `json:"score"`
				Payload map[string]any `json:"payload"`
			}
			var hits []hit
			for _, p := range points {
				if !matchesFilter(p, body.Filter) {
					continue
				}
				hits = append(hits, hit{ID: p.ID, Score: cosine(body.Vector, p.Vector), Payload: p.Payload})
			}
			sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
			if body.Limit > 0 && len(hits) > body.Limit {
				hits = hits[:body.Limit]
			}
			writeOK(w, hits)

		case len(parts) == 4 && parts[3] == "delete":
			var body struct {
				Filter map[string]any `json:"filter"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			kept := f.collections[name][:0]
			for _, p := range f.collections[name] {
				if !matchesFilter(p, body.Filter) {
					kept = append(kept, p)
				}
			}
			f.collections[name] = kept
			writeOK(w, nil)

		default:
			http.NotFound(w, r)
		}
	})
}

func writeOK(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"status": "ok", "result": result})
}

func matchesFilter(p point, filter map[string]any) bool {
	if filter == nil {
		return true
	}
	must, _ := filter["must"].([]any)
	for _, cond := range must {
		m, _ := cond.(map[string]any)
		key, _ := m["key"].(string)
		match, _ := m["match"].(map[string]any)
		if p.Payload[key] != match["value"] {
			return false
		}
	}
	return true
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func newTestClient(t *testing.T, fake *fakeQdrant, batchSize int) *Client {
	t.Helper()
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)
	return NewClient(Config{URL: server.URL, VectorSize: 3, BatchSize: batchSize})
}

func textChunk(id, sourceFile string, vector []float32) models.Chunk {
	return models.Chunk{
		ID: id, Text: "text for " + id, SourceFile: sourceFile,
		PageNumber: 1, ChunkType: models.ChunkTypeText, Vector: vector,
	}
}

func TestTenantIsolation(t *testing.T) {
	fake := newFakeQdrant()
	client := newTestClient(t, fake, 10)
	ctx := t.Context()

	if err := client.EnsureCollection(ctx, "tenantA"); err != nil {
		t.Fatalf("ensure A: %v", err)
	}
	if err := client.EnsureCollection(ctx, "tenantB"); err != nil {
		t.Fatalf("ensure B: %v", err)
	}
	if err := client.UpsertChunks(ctx, "tenantA", []models.Chunk{
		textChunk("a1", "doc.pdf", []float32{1, 0, 0}),
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	results, err := client.Search(ctx, "tenantB", []float32{1, 0, 0}, 10, "")
	if err != nil {
		t.Fatalf("search B: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("tenant B saw %d of tenant A's chunks", len(results))
	}

	results, err = client.Search(ctx, "tenantA", []float32{1, 0, 0}, 10, "")
	if err != nil {
		t.Fatalf("search A: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.ID != "a1" {
		t.Errorf("tenant A results = %+v", results)
	}
}

func TestSearchMissingCollectionReturnsEmpty(t *testing.T) {
	client := newTestClient(t, newFakeQdrant(), 10)

	results, err := client.Search(t.Context(), "newcomer", []float32{1, 0, 0}, 10, "")
	if err != nil {
		t.Fatalf("search against missing collection must not error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
}

func TestSourceFilteredSearch(t *testing.T) {
	client := newTestClient(t, newFakeQdrant(), 10)
	ctx := t.Context()

	if err := client.EnsureCollection(ctx, "t1"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if err := client.UpsertChunks(ctx, "t1", []models.Chunk{
		textChunk("x1", "x.pdf", []float32{1, 0, 0}),
		textChunk("x2", "x.pdf", []float32{0.9, 0.1, 0}),
		textChunk("y1", "y.pdf", []float32{1, 0, 0}),
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	results, err := client.Search(ctx, "t1", []float32{1, 0, 0}, 10, "x.pdf")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	for _, res := range results {
		if res.Chunk.SourceFile != "x.pdf" {
			t.Errorf("filtered search returned chunk from %q", res.Chunk.SourceFile)
		}
	}
	// Unfiltered search sees everything.
	results, err = client.Search(ctx, "t1", []float32{1, 0, 0}, 10, "")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("unfiltered search returned %d results, want 3", len(results))
	}
}

func TestDeleteBySourceLeavesOtherFiles(t *testing.T) {
	client := newTestClient(t, newFakeQdrant(), 10)
	ctx := t.Context()

	if err := client.EnsureCollection(ctx, "t1"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if err := client.UpsertChunks(ctx, "t1", []models.Chunk{
		textChunk("a1", "a.pdf", []float32{1, 0, 0}),
		textChunk("b1", "b.pdf", []float32{0, 1, 0}),
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := client.DeleteBySource(ctx, "t1", "a.pdf"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	results, err := client.Search(ctx, "t1", []float32{1, 1, 0}, 10, "")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for _, res := range results {
		if res.Chunk.SourceFile == "a.pdf" {
			t.Errorf("chunk %s from deleted source still searchable", res.Chunk.ID)
		}
	}
	if len(results) != 1 || results[0].Chunk.ID != "b1" {
		t.Errorf("other file's chunks lost: %+v", results)
	}
}

func TestUpsertBatchesAndReportsUnpersisted(t *testing.T) {
	fake := newFakeQdrant()
	client := newTestClient(t, fake, 2)
	ctx := t.Context()

	if err := client.EnsureCollection(ctx, "t1"); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	chunks := make([]models.Chunk, 5)
	for i := range chunks {
		chunks[i] = textChunk(string(rune('a'+i)), "doc.pdf", []float32{1, 0, 0})
	}
	if err := client.UpsertChunks(ctx, "t1", chunks); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if fake.upsertCalls != 3 {
		t.Errorf("upsert used %d requests, want 3 batches", fake.upsertCalls)
	}

	// Every batch now fails; the first failure aborts and reports the
	// whole remaining count.
	fake.mu.Lock()
	fake.failUpserts = true
	fake.mu.Unlock()

	err := client.UpsertChunks(ctx, "t1", chunks)
	if err == nil {
		t.Fatal("expected upsert failure")
	}
	var ue *UpsertError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UpsertError, got %T: %v", err, err)
	}
	if ue.Unpersisted != 5 {
		t.Errorf("unpersisted = %d, want 5", ue.Unpersisted)
	}
}
