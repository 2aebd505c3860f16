package services

import "fmt"

// ErrorKind classifies where in the pipeline a request failed.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation_error"
	KindExtraction ErrorKind = "extraction_error"
	KindEmbedding  ErrorKind = "embedding_error"
	KindStorage    ErrorKind = "storage_error"
	KindGeneration ErrorKind = "generation_error"
)

// PipelineError wraps a stage failure with its kind so handlers can map it
// to a status code and a machine-readable error_code without inspecting
// backend-specific error types. Raw collaborator errors never cross the
// service boundary unwrapped.
type PipelineError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *PipelineError) Unwrap() error { return e.Err }

func validationError(format string, args ...any) *PipelineError {
	return &PipelineError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func extractionError(message string, err error) *PipelineError {
	return &PipelineError{Kind: KindExtraction, Message: message, Err: err}
}

func embeddingError(message string, err error) *PipelineError {
	return &PipelineError{Kind: KindEmbedding, Message: message, Err: err}
}

func storageError(message string, err error) *PipelineError {
	return &PipelineError{Kind: KindStorage, Message: message, Err: err}
}

func generationError(message string, err error) *PipelineError {
	return &PipelineError{Kind: KindGeneration, Message: message, Err: err}
}
