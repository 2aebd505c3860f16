package services

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"docqa-platform/internal/config"
	"docqa-platform/models"
)

// Retriever over-fetches candidates from the vector index so the reranker
// has room to recover precision. It performs no scoring of its own.
type Retriever struct {
	index VectorIndex
	k     int
	minK  int
	maxK  int
}

func NewRetriever(cfg *config.Config, index VectorIndex) *Retriever {
	return &Retriever{
		index: index,
		k:     cfg.RetrievalK,
		minK:  cfg.RetrievalKMin,
		maxK:  cfg.RetrievalKMax,
	}
}

// Retrieve returns up to k scored candidates for the question vector,
// highest similarity first, optionally narrowed to one source file.
func (r *Retriever) Retrieve(ctx context.Context, tenantID string, questionVector []float32, sourceFile string) ([]models.ScoredCandidate, error) {
	k := r.k
	if k < r.minK {
		k = r.minK
	}
	if k > r.maxK {
		k = r.maxK
	}
	candidates, err := r.index.Search(ctx, tenantID, questionVector, k, sourceFile)
	if err != nil {
		return nil, storageError("vector search failed", err)
	}
	return candidates, nil
}

// Reranker re-scores retrieval candidates by blending vector similarity
// with lexical term overlap against the question, then applies an adaptive
// similarity floor. The blend weights and floor were tuned empirically for
// the deployed embedding model and are configurable for that reason.
type Reranker struct {
	floorMin       float64
	floorRatio     float64
	semanticWeight float64
	lexicalWeight  float64
}

func NewReranker(cfg *config.Config) *Reranker {
	return &Reranker{
		floorMin:       cfg.RerankFloorMin,
		floorRatio:     cfg.RerankFloorRatio,
		semanticWeight: cfg.RerankSemanticWeight,
		lexicalWeight:  cfg.RerankLexicalWeight,
	}
}

// Rerank returns at most maxFinal candidates ordered by combined score.
// A non-empty input always yields at least one result: if every candidate
// falls below the floor, the single best original candidate is kept so
// callers can distinguish "nothing indexed" from "nothing passed the floor".
func (r *Reranker) Rerank(question string, candidates []models.ScoredCandidate, maxFinal int) []models.ScoredCandidate {
	if len(candidates) == 0 {
		return nil
	}

	questionTerms := tokenizeTerms(question)

	topScore := candidates[0].Score
	for _, cand := range candidates[1:] {
		if cand.Score > topScore {
			topScore = cand.Score
		}
	}
	floor := topScore * r.floorRatio
	if floor < r.floorMin {
		floor = r.floorMin
	}

	var kept []models.ScoredCandidate
	for _, cand := range candidates {
		if cand.Score < floor {
			continue
		}
		cand.LexicalOverlap = lexicalOverlap(questionTerms, cand.Chunk.Text)
		cand.CombinedScore = cand.Score*r.semanticWeight + cand.LexicalOverlap*r.lexicalWeight
		kept = append(kept, cand)
	}

	// Uniformly weak matches: keep the single best so the caller still has
	// something to ground on.
	if len(kept) == 0 {
		best := candidates[0]
		for _, cand := range candidates[1:] {
			if cand.Score > best.Score {
				best = cand
			}
		}
		best.LexicalOverlap = 0
		best.CombinedScore = best.Score * r.semanticWeight
		return []models.ScoredCandidate{best}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].CombinedScore > kept[j].CombinedScore
	})
	if maxFinal > 0 && len(kept) > maxFinal {
		kept = kept[:maxFinal]
	}
	return kept
}

// tokenizeTerms lowercases and splits on non-alphanumeric runes, keeping
// terms of three or more characters. Short stopword-like tokens carry no
// lexical signal.
func tokenizeTerms(text string) map[string]struct{} {
	terms := make(map[string]struct{})
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, f := range fields {
		if len(f) >= 3 {
			terms[f] = struct{}{}
		}
	}
	return terms
}

// lexicalOverlap is the fraction of question terms also present in the
// chunk text. Zero when the question produced no terms.
func lexicalOverlap(questionTerms map[string]struct{}, chunkText string) float64 {
	if len(questionTerms) == 0 {
		return 0
	}
	chunkTerms := tokenizeTerms(chunkText)
	matched := 0
	for term := range questionTerms {
		if _, ok := chunkTerms[term]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(questionTerms))
}
