package handlers

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/drover/drover/internal/task/store"
	v1 "github.com/drover/drover/pkg/api/v1"
	ws "github.com/drover/drover/pkg/websocket"
)

// WebSocket request handlers. These answer task.list and task.get over the
// gateway so clients watching the event stream never need a second HTTP
// connection.

func (h *TaskHandlers) registerWS(dispatcher *ws.Dispatcher) {
	dispatcher.RegisterFunc(ws.ActionTaskList, h.wsListTasks)
	dispatcher.RegisterFunc(ws.ActionTaskGet, h.wsGetTask)
}

type wsListTasksRequest struct {
	Limit int `json:"limit,omitempty"`
}

func (h *TaskHandlers) wsListTasks(ctx context.Context, msg *ws.Message) (*ws.Message, error) {
	var req wsListTasksRequest
	if err := msg.ParsePayload(&req); err != nil {
		return ws.NewError(msg.ID, msg.Action, ws.ErrorCodeBadRequest, "Invalid payload: "+err.Error(), nil)
	}

	tasks, err := h.service.ListTasks(ctx, req.Limit)
	if err != nil {
		h.logger.Error("Failed to list tasks", zap.Error(err))
		return ws.NewError(msg.ID, msg.Action, ws.ErrorCodeInternalError, "Failed to list tasks", nil)
	}

	taskDTOs := make([]*v1.Task, 0, len(tasks))
	for _, task := range tasks {
		taskDTOs = append(taskDTOs, task.ToAPI())
	}
	return ws.NewResponse(msg.ID, msg.Action, v1.ListTasksResponse{
		Tasks: taskDTOs,
		Total: len(taskDTOs),
	})
}

type wsGetTaskRequest struct {
	TaskID int64 `json:"task_id"`
}

func (h *TaskHandlers) wsGetTask(ctx context.Context, msg *ws.Message) (*ws.Message, error) {
	var req wsGetTaskRequest
	if err := msg.ParsePayload(&req); err != nil {
		return ws.NewError(msg.ID, msg.Action, ws.ErrorCodeBadRequest, "Invalid payload: "+err.Error(), nil)
	}
	if req.TaskID <= 0 {
		return ws.NewError(msg.ID, msg.Action, ws.ErrorCodeValidation, "task_id is required", nil)
	}

	task, err := h.service.GetTask(ctx, req.TaskID)
	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			return ws.NewError(msg.ID, msg.Action, ws.ErrorCodeNotFound, "Task not found", nil)
		}
		h.logger.Error("Failed to get task", zap.Error(err))
		return ws.NewError(msg.ID, msg.Action, ws.ErrorCodeInternalError, "Failed to get task", nil)
	}
	return ws.NewResponse(msg.ID, msg.Action, task.ToAPI())
}
