// Package service is the facade the HTTP API and MCP sidecar call into.
// It validates input, delegates to the store, planner, and orchestrator,
// and publishes lifecycle events for clients that watch the bus.
package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/drover/drover/internal/common/logger"
	"github.com/drover/drover/internal/events"
	"github.com/drover/drover/internal/events/bus"
	"github.com/drover/drover/internal/task/models"
	"github.com/drover/drover/internal/task/store"
)

var (
	ErrEmptyPrompt         = errors.New("prompt is required")
	ErrPlanningUnavailable = errors.New("planning is not available")
)

// WorkerReporter exposes live worker slot status.
type WorkerReporter interface {
	WorkerStatus() []*models.WorkerStatus
}

// Planner drives plan-mode flows for a task.
type Planner interface {
	CreatePlan(ctx context.Context, taskID int64) (string, error)
	Approve(ctx context.Context, taskID int64) (*models.Task, error)
	Reject(ctx context.Context, taskID int64) error
}

// Service provides task queue business logic.
type Service struct {
	store    *store.Store
	eventBus bus.EventBus
	logger   *logger.Logger

	workers WorkerReporter
	planner Planner
}

// NewService creates a new task service.
func NewService(st *store.Store, eventBus bus.EventBus, log *logger.Logger) *Service {
	return &Service{
		store:    st,
		eventBus: eventBus,
		logger:   log.WithFields(zap.String("component", "service")),
	}
}

// SetWorkerReporter wires the orchestrator's worker status snapshot.
func (s *Service) SetWorkerReporter(reporter WorkerReporter) {
	s.workers = reporter
}

// SetPlanner wires the plan-mode manager.
func (s *Service) SetPlanner(planner Planner) {
	s.planner = planner
}

// CreateTask enqueues a new task and publishes a task.created event.
// The prompt is trimmed; a blank prompt is rejected with ErrEmptyPrompt.
func (s *Service) CreateTask(ctx context.Context, prompt string, priority int) (*models.Task, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}

	task, err := s.store.Enqueue(ctx, prompt, priority)
	if err != nil {
		s.logger.WithError(err).Error("Failed to enqueue task")
		return nil, err
	}

	s.publish(ctx, events.TaskCreated, map[string]interface{}{
		"task_id":  task.ID,
		"priority": task.Priority,
	})
	s.logger.Info("Task created",
		zap.Int64("task_id", task.ID),
		zap.Int("priority", task.Priority),
		zap.String("title", task.Title()),
	)
	return task, nil
}

// GetTask retrieves a task by ID.
func (s *Service) GetTask(ctx context.Context, id int64) (*models.Task, error) {
	return s.store.Get(ctx, id)
}

// ListTasks returns the newest tasks first. A non-positive limit uses the
// store default.
func (s *Service) ListTasks(ctx context.Context, limit int) ([]*models.Task, error) {
	return s.store.List(ctx, limit)
}

// TaskLogs returns the persisted run log for a task in stream order. The
// task must exist; a missing task reports store.ErrTaskNotFound rather
// than an empty log.
func (s *Service) TaskLogs(ctx context.Context, id int64) ([]*models.RunLogEntry, error) {
	if _, err := s.store.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.store.Logs(ctx, id)
}

// Workers reports the status of every orchestrator worker slot. Returns an
// empty slice when no orchestrator is wired in.
func (s *Service) Workers() []*models.WorkerStatus {
	if s.workers == nil {
		return []*models.WorkerStatus{}
	}
	return s.workers.WorkerStatus()
}

// CreatePlan runs the agent in plan-only mode for a task and returns the
// stored plan.
func (s *Service) CreatePlan(ctx context.Context, id int64) (string, error) {
	if s.planner == nil {
		return "", ErrPlanningUnavailable
	}
	return s.planner.CreatePlan(ctx, id)
}

// ApprovePlan enqueues the stored plan for execution and settles the
// original task. Returns the execution task.
func (s *Service) ApprovePlan(ctx context.Context, id int64) (*models.Task, error) {
	if s.planner == nil {
		return nil, ErrPlanningUnavailable
	}
	return s.planner.Approve(ctx, id)
}

// RejectPlan discards the stored plan and fails the task.
func (s *Service) RejectPlan(ctx context.Context, id int64) error {
	if s.planner == nil {
		return ErrPlanningUnavailable
	}
	return s.planner.Reject(ctx, id)
}

func (s *Service) publish(ctx context.Context, eventType string, data map[string]interface{}) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.Publish(ctx, eventType, bus.NewEvent(eventType, "api", data)); err != nil {
		s.logger.WithError(err).Warn("Failed to publish event", zap.String("subject", eventType))
	}
}
