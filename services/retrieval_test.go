package services

import (
	"context"
	"testing"

	"docqa-platform/internal/config"
	"docqa-platform/models"
)

func testRerankConfig() *config.Config {
	return &config.Config{
		RerankFloorMin:       0.2,
		RerankFloorRatio:     0.65,
		RerankSemanticWeight: 0.85,
		RerankLexicalWeight:  0.15,
	}
}

func candidate(id, text string, score float64) models.ScoredCandidate {
	return models.ScoredCandidate{
		Chunk: models.Chunk{ID: id, Text: text, SourceFile: "doc.pdf", ChunkType: models.ChunkTypeText},
		Score: score,
	}
}

func TestRerankOrderingAndBounds(t *testing.T) {
	r := NewReranker(testRerankConfig())

	candidates := []models.ScoredCandidate{
		candidate("a", "payment schedules for contract renewals", 0.81),
		candidate("b", "unrelated appendix text", 0.78),
		candidate("c", "contract renewal terms and payment schedule", 0.80),
		candidate("d", "general introduction", 0.74),
	}

	results := r.Rerank("what is the payment schedule for contract renewal", candidates, 3)
	if len(results) == 0 || len(results) > 3 {
		t.Fatalf("got %d results, want between 1 and 3", len(results))
	}
	for i := 1; i < len(results); i++ {
		if results[i].CombinedScore > results[i-1].CombinedScore {
			t.Errorf("combined score increased at position %d: %f > %f",
				i, results[i].CombinedScore, results[i-1].CombinedScore)
		}
	}
}

func TestRerankLexicalOverlapPromotesExactMatches(t *testing.T) {
	r := NewReranker(testRerankConfig())

	// Same similarity; only one chunk contains the question's terms.
	candidates := []models.ScoredCandidate{
		candidate("a", "the committee discussed various administrative matters", 0.75),
		candidate("b", "invoice 4417 total amount due september deadline", 0.75),
	}

	results := r.Rerank("what is the deadline for invoice 4417", candidates, 5)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Chunk.ID != "b" {
		t.Errorf("expected lexical match ranked first, got %q", results[0].Chunk.ID)
	}
	if results[0].LexicalOverlap <= results[1].LexicalOverlap {
		t.Errorf("overlap not reflected: %f <= %f", results[0].LexicalOverlap, results[1].LexicalOverlap)
	}
}

func TestRerankFloorFallback(t *testing.T) {
	r := NewReranker(testRerankConfig())

	// All scores below the 0.2 minimum floor.
	candidates := []models.ScoredCandidate{
		candidate("a", "weak match one", 0.11),
		candidate("b", "weak match two", 0.19),
		candidate("c", "weak match three", 0.05),
	}

	results := r.Rerank("completely unrelated question", candidates, 5)
	if len(results) != 1 {
		t.Fatalf("fallback should keep exactly one candidate, got %d", len(results))
	}
	if results[0].Chunk.ID != "b" {
		t.Errorf("fallback kept %q, want highest-similarity candidate b", results[0].Chunk.ID)
	}
	if results[0].LexicalOverlap != 0 {
		t.Errorf("fallback lexical overlap = %f, want 0", results[0].LexicalOverlap)
	}
}

func TestRerankEmptyInput(t *testing.T) {
	r := NewReranker(testRerankConfig())
	if results := r.Rerank("any question", nil, 5); len(results) != 0 {
		t.Errorf("got %d results for empty candidates, want 0", len(results))
	}
}

func TestRerankNoQuestionTerms(t *testing.T) {
	r := NewReranker(testRerankConfig())
	candidates := []models.ScoredCandidate{candidate("a", "some indexed text", 0.9)}

	results := r.Rerank("?? !!", candidates, 5)
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].LexicalOverlap != 0 {
		t.Errorf("lexical overlap = %f, want 0 for termless question", results[0].LexicalOverlap)
	}
}

type capturingIndex struct {
	VectorIndex
	lastTopK       int
	lastSourceFile string
}

func (c *capturingIndex) Search(ctx context.Context, tenantID string, vector []float32, topK int, sourceFile string) ([]models.ScoredCandidate, error) {
	c.lastTopK = topK
	c.lastSourceFile = sourceFile
	return nil, nil
}

func TestRetrieverClampsK(t *testing.T) {
	cases := []struct {
		k, min, max, want int
	}{
		{12, 4, 24, 12},
		{1, 4, 24, 4},
		{100, 4, 24, 24},
	}
	for _, tc := range cases {
		idx := &capturingIndex{}
		r := NewRetriever(&config.Config{RetrievalK: tc.k, RetrievalKMin: tc.min, RetrievalKMax: tc.max}, idx)
		if _, err := r.Retrieve(context.Background(), "t1", []float32{0.1}, "doc.pdf"); err != nil {
			t.Fatalf("retrieve: %v", err)
		}
		if idx.lastTopK != tc.want {
			t.Errorf("k=%d clamped to %d, want %d", tc.k, idx.lastTopK, tc.want)
		}
		if idx.lastSourceFile != "doc.pdf" {
			t.Errorf("source filter not passed through: %q", idx.lastSourceFile)
		}
	}
}
