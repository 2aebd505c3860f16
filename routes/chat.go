package routes

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"docqa-platform/models"
	"docqa-platform/services"
	"docqa-platform/utils"

	"github.com/gin-gonic/gin"
)

// SetupChatRoutes wires the question answering and chat history endpoints.
func SetupChatRoutes(router *gin.Engine, answers *services.AnswerService, store services.MetadataStore, maxHistory int) {
	chat := router.Group("/chat")

	chat.POST("/ask", func(c *gin.Context) {
		var req models.AskRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		if req.Stream {
			streamAnswer(c, answers, req)
			return
		}

		resp, err := answers.Answer(c.Request.Context(), req)
		if err != nil {
			respondPipelineError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	})

	chat.GET("/history/:tenant_id", func(c *gin.Context) {
		history, err := store.GetChatHistory(c.Request.Context(),
			c.Param("tenant_id"), maxHistory, c.Query("source_file"))
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to fetch history", nil)
			return
		}
		if history == nil {
			history = []models.ChatTurn{}
		}
		c.JSON(http.StatusOK, gin.H{
			"history": history,
			"count":   len(history),
		})
	})

	chat.DELETE("/history/:tenant_id", func(c *gin.Context) {
		if err := store.DeleteChatHistory(c.Request.Context(),
			c.Param("tenant_id"), c.Query("source_file")); err != nil {
			utils.RespondWithInternalError(c, "Failed to clear history", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "cleared"})
	})
}

// streamAnswer delivers the answer as server-sent events: one meta event
// with routing and citations, then delta events, then done. A client
// disconnect just stops the stream; nothing indexed is affected.
func streamAnswer(c *gin.Context, answers *services.AnswerService, req models.AskRequest) {
	result, err := answers.AnswerStream(c.Request.Context(), req)
	if err != nil {
		respondPipelineError(c, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	meta, _ := json.Marshal(gin.H{
		"mode":           result.Mode,
		"citations":      result.Citations,
		"evidence_count": result.EvidenceCount,
	})
	fmt.Fprintf(c.Writer, "event: meta\ndata: %s\n\n", meta)
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		delta, ok := <-result.Deltas
		if !ok {
			fmt.Fprint(w, "event: done\ndata: {}\n\n")
			return false
		}
		if delta.Err != nil {
			payload, _ := json.Marshal(gin.H{"error_code": string(services.KindGeneration)})
			fmt.Fprintf(w, "event: error\ndata: %s\n\n", payload)
			return false
		}
		payload, _ := json.Marshal(gin.H{"text": delta.Text})
		fmt.Fprintf(w, "event: delta\ndata: %s\n\n", payload)
		return true
	})
}
