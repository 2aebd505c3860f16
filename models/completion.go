package models

// CompletionRequest is the input contract shared by both completion
// backends (grounded and general).
type CompletionRequest struct {
	SystemPrompt string
	History      []ChatTurn
	UserPrompt   string
	Temperature  float32
	MaxTokens    int
}

// StreamDelta is one increment of a streaming completion. Err is set on
// the final delta when the stream ended abnormally.
type StreamDelta struct {
	Text string
	Err  error
}
