// Package ai holds the clients for the three model backends: the embedding
// gateway, the two completion backends, and the vision transcriber.
package ai

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"docqa-platform/internal/config"
	"docqa-platform/internal/logger"
	"docqa-platform/utils"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

const (
	embedMaxRetries = 3
	embedRetryBase  = 500 * time.Millisecond
)

// EmbeddingClient talks to an OpenAI-compatible multimodal embedding
// endpoint. The input_type body field (passage vs query) is a non-standard
// extension of the embeddings API, which is why this client speaks raw
// HTTP instead of going through an SDK.
type EmbeddingClient struct {
	baseURL   string
	apiKey    string
	model     string
	batchSize int
	client    *http.Client
	limiter   *rate.Limiter
	cache     *redis.Client
	cacheTTL  time.Duration
}

// NewEmbeddingClient creates the embedding gateway client. cache may be
// nil; when present, query embeddings are cached so repeated questions skip
// the network round trip.
func NewEmbeddingClient(cfg *config.Config, cache *redis.Client) *EmbeddingClient {
	return &EmbeddingClient{
		baseURL:   cfg.EmbedBaseURL,
		apiKey:    cfg.EmbedAPIKey,
		model:     cfg.EmbedModel,
		batchSize: cfg.EmbedBatchSize,
		client:    &http.Client{Timeout: time.Duration(cfg.EmbedTimeout) * time.Second},
		limiter:   rate.NewLimiter(rate.Limit(10), 20),
		cache:     cache,
		cacheTTL:  time.Duration(cfg.EmbedCacheTTLSecs) * time.Second,
	}
}

type embeddingRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	InputType      string   `json:"input_type,omitempty"`
	EncodingFormat string   `json:"encoding_format"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// EmbedText embeds a single string. Query embeddings are served from the
// cache when possible.
func (c *EmbeddingClient) EmbedText(ctx context.Context, text, mode string) ([]float32, error) {
	if mode == "query" {
		if vector := c.cacheGet(ctx, text); vector != nil {
			return vector, nil
		}
	}

	vectors, err := c.embed(ctx, []string{text}, mode)
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 || vectors[0] == nil {
		return nil, fmt.Errorf("embedding backend returned no vector")
	}

	if mode == "query" {
		c.cachePut(ctx, text, vectors[0])
	}
	return vectors[0], nil
}

// EmbedTextBatch embeds texts in fixed-size batches. A failed batch is
// retried item by item so one bad input cannot sink the rest; items that
// still fail come back as nil entries.
func (c *EmbeddingClient) EmbedTextBatch(ctx context.Context, texts []string, mode string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	for start := 0; start < len(texts); start += c.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		vectors, err := c.embed(ctx, batch, mode)
		if err == nil {
			copy(out[start:end], vectors)
			continue
		}
		logger.Warn("batch embedding failed, retrying items individually",
			"batch_start", start, "batch_size", len(batch), "error", err)

		for i, text := range batch {
			vector, itemErr := c.embed(ctx, []string{text}, mode)
			if itemErr != nil || len(vector) != 1 {
				logger.Warn("item embedding failed", "index", start+i, "error", itemErr)
				continue
			}
			out[start+i] = vector[0]
		}
	}
	return out, nil
}

// EmbedImage embeds a base64 image through the multimodal data-URI input.
// The backend rejects input_type for images, so it is omitted.
func (c *EmbeddingClient) EmbedImage(ctx context.Context, imageBase64 string) ([]float32, error) {
	input := "data:image/jpeg;base64," + imageBase64
	vectors, err := c.embed(ctx, []string{input}, "")
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 || vectors[0] == nil {
		return nil, fmt.Errorf("embedding backend returned no vector for image")
	}
	return vectors[0], nil
}

// embed performs one embeddings call with retry and exponential backoff on
// transient failures.
func (c *EmbeddingClient) embed(ctx context.Context, inputs []string, mode string) ([][]float32, error) {
	tracer := otel.Tracer("embedding-client")
	ctx, span := tracer.Start(ctx, "embeddings.create")
	defer span.End()
	span.SetAttributes(
		attribute.Int("embed.inputs", len(inputs)),
		attribute.String("embed.mode", mode),
		attribute.String("embed.model", c.model),
	)

	body, err := json.Marshal(embeddingRequest{
		Model:          c.model,
		Input:          inputs,
		InputType:      mode,
		EncodingFormat: "float",
	})
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < embedMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(embedRetryBase << (attempt - 1)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		vectors, retryable, err := c.doEmbed(ctx, body, len(inputs))
		if err == nil {
			return vectors, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return nil, lastErr
}

func (c *EmbeddingClient) doEmbed(ctx context.Context, body []byte, n int) ([][]float32, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, retryable, fmt.Errorf("embedding backend returned %d: %s", resp.StatusCode, payload)
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, false, fmt.Errorf("decode embedding response: %w", err)
	}
	if parsed.Error != nil {
		return nil, false, fmt.Errorf("embedding backend error: %s", parsed.Error.Message)
	}

	vectors := make([][]float32, n)
	for _, item := range parsed.Data {
		if item.Index >= 0 && item.Index < n {
			vectors[item.Index] = item.Embedding
		}
	}
	return vectors, false, nil
}

func (c *EmbeddingClient) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(c.model + "|query|" + text))
	return "embed:q:" + hex.EncodeToString(sum[:])
}

func (c *EmbeddingClient) cacheGet(ctx context.Context, text string) []float32 {
	if c.cache == nil {
		return nil
	}
	raw, err := c.cache.Get(ctx, c.cacheKey(text)).Bytes()
	if err != nil {
		return nil
	}
	data, err := utils.DecompressData(raw, utils.CompressionBrotli)
	if err != nil {
		return nil
	}
	var vector []float32
	if err := json.Unmarshal(data, &vector); err != nil {
		return nil
	}
	return vector
}

func (c *EmbeddingClient) cachePut(ctx context.Context, text string, vector []float32) {
	if c.cache == nil {
		return
	}
	data, err := json.Marshal(vector)
	if err != nil {
		return
	}
	compressed, err := utils.CompressData(data, utils.CompressionBrotli)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, c.cacheKey(text), compressed, c.cacheTTL).Err(); err != nil {
		logger.Debug("embedding cache write failed", "error", err)
	}
}
