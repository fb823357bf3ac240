package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/drover/drover/internal/common/logger"
	"github.com/drover/drover/internal/orchestrator/planner"
	"github.com/drover/drover/internal/task/service"
	"github.com/drover/drover/internal/task/store"
)

// respondError maps known service errors onto HTTP statuses. Anything
// unrecognized is logged and masked as a generic 500.
func respondError(c *gin.Context, log *logger.Logger, err error) {
	switch {
	case errors.Is(err, store.ErrTaskNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
	case errors.Is(err, service.ErrEmptyPrompt),
		errors.Is(err, planner.ErrNoPlan):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "request failed"})
	}
}
