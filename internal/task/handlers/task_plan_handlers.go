package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	v1 "github.com/drover/drover/pkg/api/v1"
)

// Plan-mode handlers. Plan generation is synchronous: the request holds the
// connection open while the agent produces the plan, mirroring the queue's
// single review step before execution.

func (h *TaskHandlers) httpCreatePlan(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}

	plan, err := h.service.CreatePlan(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, v1.PlanResponse{
		TaskID: id,
		Plan:   plan,
	})
}

func (h *TaskHandlers) httpApprovePlan(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}

	if _, err := h.service.ApprovePlan(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, v1.PlanDecisionResponse{
		TaskID: id,
		Status: "approved",
	})
}

func (h *TaskHandlers) httpRejectPlan(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}

	if err := h.service.RejectPlan(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, v1.PlanDecisionResponse{
		TaskID: id,
		Status: "rejected",
	})
}
