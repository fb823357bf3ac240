// Package handlers exposes the task queue over HTTP under /api/v1 and over
// the WebSocket gateway's request actions.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/drover/drover/internal/common/logger"
	"github.com/drover/drover/internal/task/service"
	v1 "github.com/drover/drover/pkg/api/v1"
	ws "github.com/drover/drover/pkg/websocket"
)

type TaskHandlers struct {
	service *service.Service
	logger  *logger.Logger
}

func NewTaskHandlers(svc *service.Service, log *logger.Logger) *TaskHandlers {
	return &TaskHandlers{
		service: svc,
		logger:  log.WithFields(zap.String("component", "task-handlers")),
	}
}

func RegisterTaskRoutes(router *gin.Engine, dispatcher *ws.Dispatcher, svc *service.Service, log *logger.Logger) {
	handlers := NewTaskHandlers(svc, log)
	handlers.registerHTTP(router)
	handlers.registerWS(dispatcher)
}

func (h *TaskHandlers) registerHTTP(router *gin.Engine) {
	api := router.Group("/api/v1")
	api.POST("/tasks", h.httpCreateTask)
	api.GET("/tasks", h.httpListTasks)
	api.GET("/tasks/:id", h.httpGetTask)
	api.GET("/tasks/:id/logs", h.httpTaskLogs)
	api.GET("/workers", h.httpListWorkers)
	api.POST("/tasks/:id/plan", h.httpCreatePlan)
	api.POST("/tasks/:id/plan/approve", h.httpApprovePlan)
	api.POST("/tasks/:id/plan/reject", h.httpRejectPlan)
	api.GET("/health", h.httpHealth)
}

// taskID parses the :id route parameter, writing a 400 on garbage input.
func taskID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return 0, false
	}
	return id, true
}

func (h *TaskHandlers) httpCreateTask(c *gin.Context) {
	var body v1.CreateTaskRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	task, err := h.service.CreateTask(c.Request.Context(), body.Prompt, body.Priority)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, v1.CreateTaskResponse{
		ID:     task.ID,
		Status: string(task.Status),
	})
}

func (h *TaskHandlers) httpListTasks(c *gin.Context) {
	limit := 0
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	tasks, err := h.service.ListTasks(c.Request.Context(), limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	taskDTOs := make([]*v1.Task, 0, len(tasks))
	for _, task := range tasks {
		taskDTOs = append(taskDTOs, task.ToAPI())
	}
	c.JSON(http.StatusOK, v1.ListTasksResponse{
		Tasks: taskDTOs,
		Total: len(taskDTOs),
	})
}

func (h *TaskHandlers) httpGetTask(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}

	task, err := h.service.GetTask(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, task.ToAPI())
}

func (h *TaskHandlers) httpTaskLogs(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}

	logs, err := h.service.TaskLogs(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	logDTOs := make([]*v1.RunLogEntry, 0, len(logs))
	for _, entry := range logs {
		logDTOs = append(logDTOs, entry.ToAPI())
	}
	c.JSON(http.StatusOK, v1.ListLogsResponse{
		Logs:  logDTOs,
		Total: len(logDTOs),
	})
}

func (h *TaskHandlers) httpListWorkers(c *gin.Context) {
	workers := h.service.Workers()

	workerDTOs := make([]*v1.WorkerStatus, 0, len(workers))
	for _, worker := range workers {
		workerDTOs = append(workerDTOs, worker.ToAPI())
	}
	c.JSON(http.StatusOK, v1.ListWorkersResponse{
		Workers: workerDTOs,
		Total:   len(workerDTOs),
	})
}

func (h *TaskHandlers) httpHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
