package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
)

const visionPrompt = "Transcribe all text visible in this image. " +
	"For charts, diagrams or tables, describe the data they contain. " +
	"Return only the transcription, no commentary."

// VisionClient transcribes uploaded images and scanned pages to indexable
// text using Gemini.
type VisionClient struct {
	client  *genai.Client
	model   string
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func NewVisionClient(ctx context.Context, apiKey string) (*VisionClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create vision client: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "VisionAPI",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
	})

	return &VisionClient{
		client:  client,
		model:   "gemini-2.0-flash",
		breaker: breaker,
		limiter: rate.NewLimiter(rate.Limit(0.15), 3), // ~10 rpm free tier
	}, nil
}

// Transcribe returns the text content of a base64-encoded image.
func (v *VisionClient) Transcribe(ctx context.Context, imageBase64, mimeType string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(imageBase64)
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	if err := v.limiter.Wait(ctx); err != nil {
		return "", err
	}

	format := strings.TrimPrefix(mimeType, "image/")
	if format == "" {
		format = "jpeg"
	}

	result, err := v.breaker.Execute(func() (interface{}, error) {
		model := v.client.GenerativeModel(v.model)
		resp, err := model.GenerateContent(ctx,
			genai.ImageData(format, data),
			genai.Text(visionPrompt),
		)
		if err != nil {
			return nil, err
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			return nil, fmt.Errorf("vision backend returned no content")
		}
		var sb strings.Builder
		for _, part := range resp.Candidates[0].Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
		return sb.String(), nil
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.(string)), nil
}

// Close releases the underlying API connection.
func (v *VisionClient) Close() error {
	return v.client.Close()
}
