// Package queue defines the asynq tasks for background document
// ingestion. Uploads above the synchronous processing limit are spooled to
// disk and indexed by the worker process.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"docqa-platform/internal/logger"
	"docqa-platform/services"

	"github.com/hibiken/asynq"
)

const TaskIngestDocument = "document:ingest"

type IngestPayload struct {
	TenantID string `json:"tenant_id"`
	Filename string `json:"filename"`
	FilePath string `json:"file_path"`
}

// NewIngestTask enqueues a spooled upload for background indexing.
func NewIngestTask(tenantID, filename, filePath string) (*asynq.Task, error) {
	payload, err := json.Marshal(IngestPayload{
		TenantID: tenantID,
		Filename: filename,
		FilePath: filePath,
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskIngestDocument,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(15*time.Minute),
		asynq.Queue("critical"),
	), nil
}

// TaskProcessor runs the ingestion pipeline for queued uploads.
type TaskProcessor struct {
	ingestion *services.IngestionService
}

func NewTaskProcessor(ingestion *services.IngestionService) *TaskProcessor {
	return &TaskProcessor{ingestion: ingestion}
}

// HandleIngestDocument indexes a spooled file and removes it on success.
// Validation and extraction failures are permanent: retrying the same bytes
// cannot succeed, so the task is skipped instead of retried.
func (p *TaskProcessor) HandleIngestDocument(ctx context.Context, task *asynq.Task) error {
	var payload IngestPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal ingest payload: %v: %w", err, asynq.SkipRetry)
	}

	data, err := os.ReadFile(payload.FilePath)
	if err != nil {
		return fmt.Errorf("read spooled upload %s: %w", payload.FilePath, err)
	}

	count, err := p.ingestion.IngestDocument(ctx, payload.TenantID, payload.Filename, data)
	if err != nil {
		if isPermanent(err) {
			logger.Error("queued ingestion permanently failed",
				"tenant_id", payload.TenantID, "file", payload.Filename, "error", err)
			removeSpooled(payload.FilePath)
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	removeSpooled(payload.FilePath)
	logger.Info("queued ingestion complete",
		"tenant_id", payload.TenantID, "file", payload.Filename, "chunks", count)
	return nil
}

func isPermanent(err error) bool {
	var pe *services.PipelineError
	if !errors.As(err, &pe) {
		return false
	}
	return pe.Kind == services.KindValidation || pe.Kind == services.KindExtraction
}

func removeSpooled(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warn("could not remove spooled upload", "path", path, "error", err)
	}
}
