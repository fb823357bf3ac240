// Package planner implements plan mode: a task is first run through the
// agent in plan-only mode, the produced plan is stored for review, and an
// approval enqueues a high-priority execution task built from the plan.
package planner

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/drover/drover/internal/agent/stream"
	"github.com/drover/drover/internal/common/config"
	"github.com/drover/drover/internal/common/logger"
	"github.com/drover/drover/internal/events"
	"github.com/drover/drover/internal/events/bus"
	"github.com/drover/drover/internal/task/models"
	"github.com/drover/drover/internal/task/store"
)

// ErrNoPlan is returned when approving a task that has no stored plan.
var ErrNoPlan = errors.New("task has no plan to approve")

const planPromptTemplate = `You are in plan-only mode. Do NOT implement anything.
Analyze this task and produce a detailed plan in markdown:

%s

Output ONLY the plan — no implementation code. Structure it as:
1. What files need to change
2. Step-by-step approach
3. Potential risks or edge cases
`

const (
	noPlanPlaceholder = "No plan generated."
	approvedSummary   = "Plan approved and enqueued for execution"
	rejectedError     = "Plan rejected"
)

// AgentRunner starts one agent subprocess and streams its parsed events.
type AgentRunner interface {
	Run(ctx context.Context, prompt, repoPath, workspaceName string) (<-chan *stream.Event, error)
}

// Manager drives the planning state machine over the task store.
type Manager struct {
	store  *store.Store
	runner AgentRunner
	bus    bus.EventBus
	cfg    config.OrchestratorConfig
	logger *logger.Logger
}

// New creates a plan manager sharing the orchestrator's runner and store.
func New(st *store.Store, runner AgentRunner, eventBus bus.EventBus, cfg config.OrchestratorConfig, log *logger.Logger) *Manager {
	return &Manager{
		store:  st,
		runner: runner,
		bus:    eventBus,
		cfg:    cfg,
		logger: log.WithFields(zap.String("component", "planner")),
	}
}

// CreatePlan runs the task's prompt through the agent in plan-only mode and
// stores the result. The task moves pending → planning → planned. An empty
// agent response is stored as a placeholder so the planned state always
// carries a plan.
func (m *Manager) CreatePlan(ctx context.Context, taskID int64) (string, error) {
	task, err := m.store.Get(ctx, taskID)
	if err != nil {
		return "", err
	}

	if err := m.store.SetStatus(ctx, task.ID, models.StatusPlanning); err != nil {
		return "", fmt.Errorf("failed to mark task planning: %w", err)
	}
	m.publish(ctx, events.TaskPlanning, map[string]interface{}{"task_id": task.ID})

	m.logger.WithTaskID(task.ID).Info("Generating plan")
	prompt := fmt.Sprintf(planPromptTemplate, task.Prompt)
	// No isolated workspace: a plan-only run must not mutate the repo.
	eventCh, err := m.runner.Run(ctx, prompt, m.cfg.RepoPath, "")
	if err != nil {
		return "", fmt.Errorf("failed to start planning agent: %w", err)
	}

	var collected []*stream.Event
	for event := range eventCh {
		collected = append(collected, event)
	}
	result := stream.Collect(collected)

	plan := result.Text
	if plan == "" {
		plan = noPlanPlaceholder
	}
	if err := m.store.SetPlan(ctx, task.ID, plan); err != nil {
		return "", fmt.Errorf("failed to store plan: %w", err)
	}

	m.logger.WithTaskID(task.ID).Info("Plan stored", zap.Int("plan_chars", len(plan)))
	m.publish(ctx, events.TaskPlanned, map[string]interface{}{"task_id": task.ID})
	return plan, nil
}

// Approve enqueues the stored plan for execution at priority+10 and settles
// the planning task as done. Returns the new execution task.
func (m *Manager) Approve(ctx context.Context, taskID int64) (*models.Task, error) {
	task, err := m.store.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Plan == "" {
		return nil, fmt.Errorf("%w: %d", ErrNoPlan, taskID)
	}

	execPrompt := fmt.Sprintf("Execute this approved plan:\n\n%s\n\nOriginal task: %s", task.Plan, task.Prompt)
	execTask, err := m.store.Enqueue(ctx, execPrompt, task.Priority+10)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue execution task: %w", err)
	}

	if err := m.store.Settle(ctx, task.ID, models.StatusDone, store.Settlement{
		ResultSummary: approvedSummary,
	}); err != nil {
		return nil, fmt.Errorf("failed to settle planned task: %w", err)
	}

	m.logger.WithTaskID(task.ID).Info("Plan approved",
		zap.Int64("exec_task_id", execTask.ID),
		zap.Int("priority", execTask.Priority),
	)
	m.publish(ctx, events.TaskCreated, map[string]interface{}{
		"task_id":  execTask.ID,
		"priority": execTask.Priority,
		"parent":   task.ID,
	})
	m.publish(ctx, events.PlanApproved, map[string]interface{}{
		"task_id":      task.ID,
		"exec_task_id": execTask.ID,
	})
	return execTask, nil
}

// Reject settles a planned task as failed.
func (m *Manager) Reject(ctx context.Context, taskID int64) error {
	if err := m.store.Settle(ctx, taskID, models.StatusFailed, store.Settlement{
		Error: rejectedError,
	}); err != nil {
		return err
	}

	m.logger.WithTaskID(taskID).Info("Plan rejected")
	m.publish(ctx, events.PlanRejected, map[string]interface{}{"task_id": taskID})
	return nil
}

func (m *Manager) publish(ctx context.Context, eventType string, data map[string]interface{}) {
	if m.bus == nil {
		return
	}
	if err := m.bus.Publish(ctx, eventType, bus.NewEvent(eventType, "planner", data)); err != nil {
		m.logger.WithError(err).Warn("Failed to publish event", zap.String("subject", eventType))
	}
}
