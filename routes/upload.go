package routes

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"docqa-platform/internal/config"
	"docqa-platform/internal/logger"
	"docqa-platform/internal/queue"
	"docqa-platform/services"
	"docqa-platform/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// SetupUploadRoutes wires the document upload, listing and deletion
// endpoints. queueClient may be nil; without it every upload is processed
// synchronously.
func SetupUploadRoutes(router *gin.Engine, cfg *config.Config, ingestion *services.IngestionService, queueClient *asynq.Client) {
	upload := router.Group("/upload")

	upload.POST("/document", func(c *gin.Context) {
		tenantID := c.PostForm("tenant_id")
		if tenantID == "" {
			utils.RespondWithBadRequest(c, "tenant_id is required", nil)
			return
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			utils.RespondWithBadRequest(c, "file is required", nil)
			return
		}
		if fileHeader.Size > cfg.MaxFileSize {
			utils.RespondWithBadRequest(c, "file exceeds the size limit", gin.H{
				"max_bytes": cfg.MaxFileSize,
			})
			return
		}
		filename := filepath.Base(fileHeader.Filename)

		file, err := fileHeader.Open()
		if err != nil {
			utils.RespondWithBadRequest(c, "could not read uploaded file", nil)
			return
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			utils.RespondWithBadRequest(c, "could not read uploaded file", nil)
			return
		}

		// Large uploads are spooled and indexed by the worker so the
		// request does not hold a connection open for minutes.
		if queueClient != nil && fileHeader.Size > cfg.SyncProcessingLimit {
			spoolAndEnqueue(c, cfg, queueClient, tenantID, filename, data)
			return
		}

		start := time.Now()
		count, err := ingestion.IngestDocument(c.Request.Context(), tenantID, filename, data)
		if err != nil {
			respondPipelineError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":             "indexed",
			"filename":           filename,
			"chunks_indexed":     count,
			"processing_time_ms": time.Since(start).Milliseconds(),
		})
	})

	upload.GET("/list/:tenant_id", func(c *gin.Context) {
		docs, err := ingestion.ListDocuments(c.Request.Context(), c.Param("tenant_id"))
		if err != nil {
			respondPipelineError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"documents": docs,
			"count":     len(docs),
		})
	})

	upload.DELETE("/document/:filename", func(c *gin.Context) {
		tenantID := c.Query("tenant_id")
		if tenantID == "" {
			utils.RespondWithBadRequest(c, "tenant_id is required", nil)
			return
		}
		filename := filepath.Base(c.Param("filename"))

		if err := ingestion.DeleteDocument(c.Request.Context(), tenantID, filename); err != nil {
			respondPipelineError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "deleted",
			"filename": filename,
		})
	})
}

func spoolAndEnqueue(c *gin.Context, cfg *config.Config, queueClient *asynq.Client, tenantID, filename string, data []byte) {
	if err := os.MkdirAll(cfg.FileStorageDir, 0o755); err != nil {
		utils.RespondWithInternalError(c, "could not store the upload", nil)
		return
	}
	spoolPath := filepath.Join(cfg.FileStorageDir, uuid.New().String()+"_"+filename)
	if err := os.WriteFile(spoolPath, data, 0o644); err != nil {
		utils.RespondWithInternalError(c, "could not store the upload", nil)
		return
	}

	task, err := queue.NewIngestTask(tenantID, filename, spoolPath)
	if err != nil {
		utils.RespondWithInternalError(c, "could not queue the upload", nil)
		return
	}
	info, err := queueClient.Enqueue(task)
	if err != nil {
		logger.Error("enqueue ingest task failed", "tenant_id", tenantID, "file", filename, "error", err)
		utils.RespondWithInternalError(c, "could not queue the upload", nil)
		return
	}

	logger.Info("upload queued", "tenant_id", tenantID, "file", filename, "task_id", info.ID)
	c.JSON(http.StatusAccepted, gin.H{
		"status":   "queued",
		"filename": filename,
		"task_id":  info.ID,
	})
}
