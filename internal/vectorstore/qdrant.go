// Package vectorstore talks to Qdrant over its REST API.
// Multi-tenancy is enforced by giving every tenant its own collection:
// a search can never cross tenants because the collection namespace itself
// is the isolation boundary, not a filter predicate.
package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"docqa-platform/models"
)

const defaultBatchSize = 10

// Client is a minimal REST client to Qdrant using cosine distance.
type Client struct {
	baseURL    string
	apiKey     string
	vectorSize int
	batchSize  int
	client     *http.Client
}

type Config struct {
	URL        string
	APIKey     string
	VectorSize int
	BatchSize  int
	Timeout    time.Duration
}

// UpsertError reports how many chunks were left unpersisted when a batch
// write failed. Chunk ids are fresh per upload, so a retry re-submits the
// whole upload without duplicating points.
type UpsertError struct {
	Unpersisted int
	Err         error
}

func (e *UpsertError) Error() string {
	return fmt.Sprintf("upsert failed with %d chunks unpersisted: %v", e.Unpersisted, e.Err)
}

func (e *UpsertError) Unwrap() error { return e.Err }

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		vectorSize: cfg.VectorSize,
		batchSize:  batch,
		client:     &http.Client{Timeout: timeout},
	}
}

func collectionName(tenantID string) string {
	return "tenant_" + tenantID
}

// EnsureCollection creates the tenant's collection and the source_file
// payload index if they do not exist yet. Safe to call repeatedly; a
// concurrent "already exists" race is swallowed.
func (c *Client) EnsureCollection(ctx context.Context, tenantID string) error {
	name := collectionName(tenantID)

	body := map[string]any{
		"vectors": map[string]any{
			"size":     c.vectorSize,
			"distance": "Cosine",
		},
	}
	if err := c.requestJSON(ctx, http.MethodPut, fmt.Sprintf("%s/collections/%s", c.baseURL, name), body, nil); err != nil {
		if !isAlreadyExists(err) {
			return fmt.Errorf("create collection %s: %w", name, err)
		}
	}

	// The equality filter on source_file (search narrowing, delete-by-source)
	// requires a keyword index on that payload field.
	index := map[string]any{
		"field_name":   "source_file",
		"field_schema": "keyword",
	}
	if err := c.requestJSON(ctx, http.MethodPut, fmt.Sprintf("%s/collections/%s/index?wait=true", c.baseURL, name), index, nil); err != nil {
		if !isAlreadyExists(err) {
			return fmt.Errorf("create source_file index on %s: %w", name, err)
		}
	}

	return nil
}

// UpsertChunks writes chunk vectors and payloads in small batches so a large
// upload cannot time out in a single request. The first failed batch aborts
// the rest and reports how many chunks were not persisted.
func (c *Client) UpsertChunks(ctx context.Context, tenantID string, chunks []models.Chunk) error {
	name := collectionName(tenantID)

	for start := 0; start < len(chunks); start += c.batchSize {
		end := start + c.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		points := make([]map[string]any, 0, end-start)
		for _, chunk := range chunks[start:end] {
			points = append(points, map[string]any{
				"id":     chunk.ID,
				"vector": chunk.Vector,
				"payload": map[string]any{
					"text":        chunk.Text,
					"source_file": chunk.SourceFile,
					"page_number": chunk.PageNumber,
					"chunk_type":  chunk.ChunkType,
					"chunk_index": chunk.ChunkIndex,
				},
			})
		}

		body := map[string]any{"points": points}
		url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, name)
		if err := c.requestJSON(ctx, http.MethodPut, url, body, nil); err != nil {
			return &UpsertError{Unpersisted: len(chunks) - start, Err: err}
		}
	}

	return nil
}

// Search returns the topK most similar chunks for the tenant, optionally
// narrowed to a single source file. A tenant without a collection yet (no
// documents uploaded) gets an empty result, not an error.
func (c *Client) Search(ctx context.Context, tenantID string, vector []float32, topK int, sourceFile string) ([]models.ScoredCandidate, error) {
	name := collectionName(tenantID)

	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	if sourceFile != "" {
		req["filter"] = sourceFilter(sourceFile)
	}

	var resp struct {
		Result []struct {
			ID      string         `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, name)
	err := c.requestJSON(ctx, http.MethodPost, url, req, &resp)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("search %s: %w", name, err)
	}

	results := make([]models.ScoredCandidate, 0, len(resp.Result))
	for _, r := range resp.Result {
		chunk := models.Chunk{ID: r.ID}
		if v, ok := r.Payload["text"].(string); ok {
			chunk.Text = v
		}
		if v, ok := r.Payload["source_file"].(string); ok {
			chunk.SourceFile = v
		}
		if v, ok := r.Payload["page_number"].(float64); ok {
			chunk.PageNumber = int(v)
		}
		if v, ok := r.Payload["chunk_type"].(string); ok {
			chunk.ChunkType = v
		}
		if v, ok := r.Payload["chunk_index"].(float64); ok {
			chunk.ChunkIndex = int(v)
		}
		results = append(results, models.ScoredCandidate{Chunk: chunk, Score: r.Score})
	}
	return results, nil
}

// DeleteBySource removes every point whose source_file matches, leaving the
// rest of the tenant's collection untouched.
func (c *Client) DeleteBySource(ctx context.Context, tenantID, sourceFile string) error {
	// The filter needs the payload index, so make sure collection and index
	// exist before attempting the delete.
	if err := c.EnsureCollection(ctx, tenantID); err != nil {
		return err
	}

	name := collectionName(tenantID)
	body := map[string]any{"filter": sourceFilter(sourceFile)}
	url := fmt.Sprintf("%s/collections/%s/points/delete?wait=true", c.baseURL, name)
	if err := c.requestJSON(ctx, http.MethodPost, url, body, nil); err != nil {
		return fmt.Errorf("delete %s from %s: %w", sourceFile, name, err)
	}
	return nil
}

func sourceFilter(sourceFile string) map[string]any {
	return map[string]any{
		"must": []map[string]any{
			{
				"key":   "source_file",
				"match": map[string]any{"value": sourceFile},
			},
		},
	}
}

type httpError struct {
	status int
	body   string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("qdrant returned %d: %s", e.status, e.body)
}

func isNotFound(err error) bool {
	he, ok := err.(*httpError)
	return ok && he.status == http.StatusNotFound
}

func isAlreadyExists(err error) bool {
	he, ok := err.(*httpError)
	if !ok {
		return false
	}
	return he.status == http.StatusConflict || strings.Contains(strings.ToLower(he.body), "already exists")
}

func (c *Client) requestJSON(ctx context.Context, method, url string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &httpError{status: resp.StatusCode, body: string(payload)}
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
