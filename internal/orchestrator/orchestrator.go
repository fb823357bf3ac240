package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/drover/drover/internal/common/config"
	"github.com/drover/drover/internal/common/logger"
	"github.com/drover/drover/internal/events/bus"
	"github.com/drover/drover/internal/task/models"
	"github.com/drover/drover/internal/task/store"
)

var (
	ErrAlreadyRunning = errors.New("orchestrator is already running")
	ErrNotRunning     = errors.New("orchestrator is not running")
)

// workspacePrefix names each worker's isolated agent workspace:
// drover-worker-0, drover-worker-1, ...
const workspacePrefix = "drover-worker"

// Orchestrator owns the worker pool. One shared runner, store and bus serve
// all workers; Start and Stop bracket the pool's lifetime.
type Orchestrator struct {
	store  *store.Store
	runner AgentRunner
	bus    bus.EventBus
	cfg    config.OrchestratorConfig
	logger *logger.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	group   *errgroup.Group
	workers []*Worker
}

// New creates an orchestrator. No workers run until Start.
func New(st *store.Store, runner AgentRunner, eventBus bus.EventBus, cfg config.OrchestratorConfig, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		store:  st,
		runner: runner,
		bus:    eventBus,
		cfg:    cfg,
		logger: log.WithFields(zap.String("component", "orchestrator")),
	}
}

// Start launches max_workers worker loops, each with a distinct worker id
// and workspace name. The pool runs until Stop or until ctx is canceled.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	group, runCtx := errgroup.WithContext(runCtx)

	workers := make([]*Worker, o.cfg.MaxWorkers)
	for i := 0; i < o.cfg.MaxWorkers; i++ {
		worker := NewWorker(i, o.store, o.runner, o.bus, o.cfg, o.logger)
		workers[i] = worker

		workspace := fmt.Sprintf("%s-%d", workspacePrefix, i)
		group.Go(func() error {
			worker.Run(runCtx, workspace)
			return nil
		})
	}

	o.workers = workers
	o.cancel = cancel
	o.group = group
	o.running = true

	o.logger.Info("Orchestrator started", zap.Int("workers", o.cfg.MaxWorkers))
	return nil
}

// Stop cancels every worker and waits for the loops to drain. In-flight
// agents are killed and reaped by the runner's cancellation path.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return ErrNotRunning
	}
	cancel, group := o.cancel, o.group
	o.mu.Unlock()

	o.logger.Info("Stopping orchestrator")
	cancel()
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		o.logger.WithError(err).Warn("Worker pool exited with error")
	}

	o.mu.Lock()
	o.running = false
	o.cancel = nil
	o.group = nil
	o.mu.Unlock()

	o.logger.Info("Orchestrator stopped")
	return nil
}

// IsRunning reports whether the pool is active.
func (o *Orchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// WorkerStatus snapshots every worker slot. After Stop the slots remain
// visible with Running false.
func (o *Orchestrator) WorkerStatus() []*models.WorkerStatus {
	o.mu.Lock()
	workers := o.workers
	o.mu.Unlock()

	statuses := make([]*models.WorkerStatus, 0, len(workers))
	for _, worker := range workers {
		statuses = append(statuses, worker.Status())
	}
	return statuses
}
