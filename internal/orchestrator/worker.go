// Package orchestrator runs the worker pool: N concurrent loops that claim
// pending tasks, drive one agent subprocess per task, persist and fan out the
// event stream, and settle the task from the diagnosed outcome.
package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/drover/drover/internal/agent/stream"
	"github.com/drover/drover/internal/common/config"
	"github.com/drover/drover/internal/common/logger"
	"github.com/drover/drover/internal/common/tracing"
	"github.com/drover/drover/internal/events"
	"github.com/drover/drover/internal/events/bus"
	"github.com/drover/drover/internal/task/models"
	"github.com/drover/drover/internal/task/store"
)

// AgentRunner starts one agent subprocess and streams its parsed events.
// Implemented by internal/agent/runner; tests substitute fakes.
type AgentRunner interface {
	Run(ctx context.Context, prompt, repoPath, workspaceName string) (<-chan *stream.Event, error)
}

// Truncation caps for persisted and published content.
const (
	maxLogContentLen  = 500
	maxBusContentLen  = 300
	maxSettleFieldLen = 500
)

// Worker is one claim-and-run loop. Workers share the store and the bus but
// no in-memory state; each gets its own workspace name so concurrent agents
// don't trample each other's checkouts.
type Worker struct {
	id     int
	store  *store.Store
	runner AgentRunner
	bus    bus.EventBus
	cfg    config.OrchestratorConfig
	logger *logger.Logger

	mu            sync.Mutex
	running       bool
	currentTaskID *int64
}

// NewWorker creates a worker with the given slot id.
func NewWorker(id int, st *store.Store, runner AgentRunner, eventBus bus.EventBus, cfg config.OrchestratorConfig, log *logger.Logger) *Worker {
	return &Worker{
		id:     id,
		store:  st,
		runner: runner,
		bus:    eventBus,
		cfg:    cfg,
		logger: log.WithWorkerID(id),
	}
}

// Status returns a snapshot of the worker's liveness and current task.
func (w *Worker) Status() *models.WorkerStatus {
	w.mu.Lock()
	defer w.mu.Unlock()

	status := &models.WorkerStatus{
		WorkerID: w.id,
		Running:  w.running,
	}
	if w.currentTaskID != nil {
		id := *w.currentTaskID
		status.CurrentTaskID = &id
	}
	return status
}

// Run claims and executes tasks until ctx is canceled. Claim errors and
// empty polls both back off for the configured poll interval. An in-flight
// task is abandoned, not settled, when the context is canceled mid-run; the
// runner reaps the child before its event channel closes.
func (w *Worker) Run(ctx context.Context, workspaceName string) {
	w.setRunning(true)
	defer w.setRunning(false)

	w.logger.Info("Worker started", zap.String("workspace", workspaceName))
	w.publish(ctx, events.WorkerStarted, events.WorkerStarted, map[string]interface{}{
		"worker_id": w.id,
	})
	defer func() {
		w.publish(context.Background(), events.WorkerStopped, events.WorkerStopped, map[string]interface{}{
			"worker_id": w.id,
		})
		w.logger.Info("Worker stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, err := w.store.Claim(ctx, w.id)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.WithError(err).Error("Failed to claim task")
		}
		if task == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.cfg.PollIntervalDuration()):
			}
			continue
		}

		w.runTask(ctx, task, workspaceName)
	}
}

// runTask drives one claimed task to a terminal state.
func (w *Worker) runTask(ctx context.Context, task *models.Task, workspaceName string) {
	w.setCurrentTask(&task.ID)
	defer w.setCurrentTask(nil)

	log := w.logger.WithTaskID(task.ID)
	log.Info("Claimed task", zap.Int("priority", task.Priority), zap.String("title", task.Title()))
	w.publish(ctx, events.TaskClaimed, events.TaskClaimed, map[string]interface{}{
		"task_id":   task.ID,
		"worker_id": w.id,
	})

	ctx, span := tracing.Tracer("drover-orchestrator").Start(ctx, "task.run",
		trace.WithAttributes(
			attribute.Int64("task_id", task.ID),
			attribute.Int("worker_id", w.id),
		))
	defer span.End()

	started := time.Now()
	result, err := w.streamTask(ctx, task, workspaceName)
	duration := time.Since(started).Seconds()

	if ctx.Err() != nil {
		// Shutdown mid-run. The task stays running for operator triage
		// rather than being settled with a half-truth.
		log.Warn("Abandoning in-flight task, worker stopping")
		return
	}

	if err != nil {
		log.WithError(err).Error("Task run failed")
		w.settle(ctx, task, models.StatusFailed, store.Settlement{
			Error:     models.Truncate(err.Error(), maxSettleFieldLen),
			DurationS: duration,
		})
		return
	}

	diagnosis := Diagnose(result, w.cfg.ProgressFile)
	settlement := store.Settlement{
		CostUSD:   result.CostUSD,
		TokensIn:  result.TokensIn,
		TokensOut: result.TokensOut,
		DurationS: duration,
	}

	var status models.TaskStatus
	if diagnosis.Status == DiagnosisNeedsFix {
		status = models.StatusFailed
		settlement.Error = models.Truncate(diagnosis.ErrorSummary, maxSettleFieldLen)
		w.settle(ctx, task, status, settlement)
		w.enqueueFix(ctx, task, diagnosis)
	} else {
		status = models.StatusDone
		settlement.ResultSummary = models.Truncate(result.Text, maxSettleFieldLen)
		w.settle(ctx, task, status, settlement)
	}

	log.Info("Task settled",
		zap.String("status", string(status)),
		zap.Float64("duration_s", duration),
		zap.Float64("cost_usd", result.CostUSD),
	)

	progressPath := filepath.Join(w.cfg.RepoPath, w.cfg.ProgressFile)
	if err := AppendProgress(progressPath, task, status, result); err != nil {
		log.WithError(err).Warn("Failed to append progress entry")
	}
}

// streamTask spawns the agent and consumes its stream, persisting and
// publishing every event in stdout order. The derived context guarantees the
// child is killed and reaped if persistence fails mid-stream.
func (w *Worker) streamTask(ctx context.Context, task *models.Task, workspaceName string) (*stream.RunResult, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	prompt := InjectProgressPrompt(task.Prompt, w.cfg.ProgressFile)
	eventCh, err := w.runner.Run(runCtx, prompt, w.cfg.RepoPath, workspaceName)
	if err != nil {
		return nil, fmt.Errorf("failed to start agent: %w", err)
	}

	subject := events.BuildTaskEventSubject(task.ID)
	var collected []*stream.Event
	for event := range eventCh {
		collected = append(collected, event)

		if err := w.store.AppendLog(runCtx, task.ID, event.Type,
			models.Truncate(event.Content, maxLogContentLen), event.RawJSON()); err != nil {
			return nil, fmt.Errorf("failed to persist run event: %w", err)
		}

		w.publish(runCtx, subject, events.TaskEvent, map[string]interface{}{
			"task_id": task.ID,
			"type":    event.Type,
			"content": models.Truncate(event.Content, maxBusContentLen),
		})
	}

	return stream.Collect(collected), nil
}

// settle writes the terminal state and announces it on the bus.
func (w *Worker) settle(ctx context.Context, task *models.Task, status models.TaskStatus, settlement store.Settlement) {
	if err := w.store.Settle(ctx, task.ID, status, settlement); err != nil {
		w.logger.WithTaskID(task.ID).WithError(err).Error("Failed to settle task")
		return
	}

	eventType := events.TaskCompleted
	data := map[string]interface{}{
		"task_id": task.ID,
		"status":  string(status),
	}
	if status == models.StatusFailed {
		eventType = events.TaskFailed
		data["error"] = models.Truncate(settlement.Error, maxBusContentLen)
	}
	w.publish(ctx, eventType, eventType, data)
}

// enqueueFix creates the follow-up task for a diagnosed failure, bumped one
// priority level so it runs before its siblings.
func (w *Worker) enqueueFix(ctx context.Context, task *models.Task, diagnosis Diagnosis) {
	fix, err := w.store.Enqueue(ctx, diagnosis.FixPrompt, task.Priority+1)
	if err != nil {
		w.logger.WithTaskID(task.ID).WithError(err).Error("Failed to enqueue fix task")
		return
	}

	w.logger.WithTaskID(task.ID).Info("Enqueued fix task",
		zap.Int64("fix_task_id", fix.ID),
		zap.Int("priority", fix.Priority),
	)
	w.publish(ctx, events.TaskCreated, events.TaskCreated, map[string]interface{}{
		"task_id":  fix.ID,
		"priority": fix.Priority,
		"parent":   task.ID,
	})
}

// publish sends an event to the bus, logging failures without surfacing
// them; the bus is never on a task's critical path.
func (w *Worker) publish(ctx context.Context, subject, eventType string, data map[string]interface{}) {
	if w.bus == nil {
		return
	}
	if err := w.bus.Publish(ctx, subject, bus.NewEvent(eventType, "orchestrator", data)); err != nil {
		w.logger.WithError(err).Warn("Failed to publish event", zap.String("subject", subject))
	}
}

func (w *Worker) setRunning(running bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.running = running
}

func (w *Worker) setCurrentTask(id *int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.currentTaskID = id
}
