package routes

import (
	"errors"
	"net/http"

	"docqa-platform/services"
	"docqa-platform/utils"

	"github.com/gin-gonic/gin"
)

// respondPipelineError maps a pipeline error kind to an HTTP status and a
// machine-readable error code. Raw backend detail stays in the logs, never
// in the response body.
func respondPipelineError(c *gin.Context, err error) {
	var pe *services.PipelineError
	if !errors.As(err, &pe) {
		utils.RespondWithInternalError(c, "Something went wrong. Please try again.", nil)
		return
	}

	switch pe.Kind {
	case services.KindValidation:
		utils.RespondWithError(c, http.StatusBadRequest, string(pe.Kind), pe.Message, nil)
	case services.KindExtraction:
		utils.RespondWithError(c, http.StatusUnprocessableEntity, string(pe.Kind), pe.Message, nil)
	case services.KindEmbedding, services.KindStorage, services.KindGeneration:
		utils.RespondWithError(c, http.StatusBadGateway, string(pe.Kind),
			"A backend service failed while processing your request. Please try again.", nil)
	default:
		utils.RespondWithInternalError(c, "Something went wrong. Please try again.", nil)
	}
}
