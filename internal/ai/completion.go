package ai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"docqa-platform/internal/logger"
	"docqa-platform/models"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// CompletionClient wraps one OpenAI-compatible chat backend. The platform
// runs two instances: a low-temperature grounded backend for document
// answers and a conversational backend for general mode.
type CompletionClient struct {
	name    string
	model   string
	client  *openai.Client
	breaker *gobreaker.CircuitBreaker
}

func NewCompletionClient(name, baseURL, apiKey, model string, timeout time.Duration) *CompletionClient {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	cfg.HTTPClient = &http.Client{Timeout: timeout}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("completion circuit breaker state change",
				"backend", name, "from", from.String(), "to", to.String())
		},
	})

	return &CompletionClient{
		name:    name,
		model:   model,
		client:  openai.NewClientWithConfig(cfg),
		breaker: breaker,
	}
}

func buildMessages(req models.CompletionRequest) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, 2+2*len(req.History))
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: req.SystemPrompt,
	})
	for _, turn := range req.History {
		messages = append(messages,
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: turn.Question},
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: turn.Answer},
		)
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.UserPrompt,
	})
	return messages
}

// Complete runs one blocking chat completion.
func (c *CompletionClient) Complete(ctx context.Context, req models.CompletionRequest) (string, error) {
	tracer := otel.Tracer("completion-client")
	ctx, span := tracer.Start(ctx, "chat.completion")
	defer span.End()
	span.SetAttributes(
		attribute.String("completion.backend", c.name),
		attribute.String("completion.model", c.model),
		attribute.Int("completion.history_turns", len(req.History)),
	)

	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       c.model,
			Messages:    buildMessages(req),
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return nil, errors.New("completion returned no choices")
		}
		return resp.Choices[0].Message.Content, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// CompleteStream starts a streaming completion and returns the increments
// as a channel. The channel closes when the stream ends; cancelling ctx
// abandons it and releases the underlying connection.
func (c *CompletionClient) CompleteStream(ctx context.Context, req models.CompletionRequest) (<-chan models.StreamDelta, error) {
	tracer := otel.Tracer("completion-client")
	ctx, span := tracer.Start(ctx, "chat.completion_stream")
	span.SetAttributes(
		attribute.String("completion.backend", c.name),
		attribute.String("completion.model", c.model),
	)

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
			Model:       c.model,
			Messages:    buildMessages(req),
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
			Stream:      true,
		})
	})
	if err != nil {
		span.End()
		return nil, err
	}
	stream := result.(*openai.ChatCompletionStream)

	out := make(chan models.StreamDelta)
	go func() {
		defer close(out)
		defer span.End()
		defer stream.Close()
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				select {
				case out <- models.StreamDelta{Err: err}:
				case <-ctx.Done():
				}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			select {
			case out <- models.StreamDelta{Text: resp.Choices[0].Delta.Content}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
