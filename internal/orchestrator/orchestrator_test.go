package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/drover/drover/internal/events/bus"
	"github.com/drover/drover/internal/task/models"
)

func newTestOrchestrator(t *testing.T, runner AgentRunner, maxWorkers int) *Orchestrator {
	t.Helper()
	log := newTestLogger(t)
	cfg := newTestConfig(t)
	cfg.MaxWorkers = maxWorkers
	return New(newTestStore(t), runner, bus.NewMemoryEventBus(log), cfg, log)
}

func TestOrchestrator_StartStop(t *testing.T) {
	o := newTestOrchestrator(t, &fakeRunner{}, 3)
	ctx := context.Background()

	if o.IsRunning() {
		t.Fatal("expected not running before Start")
	}
	if err := o.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if !o.IsRunning() {
		t.Error("expected running after Start")
	}
	if err := o.Start(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}

	waitUntil(t, 5*time.Second, "all workers running", func() bool {
		statuses := o.WorkerStatus()
		if len(statuses) != 3 {
			return false
		}
		for _, st := range statuses {
			if !st.Running {
				return false
			}
		}
		return true
	})

	seen := make(map[int]bool)
	for _, st := range o.WorkerStatus() {
		seen[st.WorkerID] = true
	}
	for id := 0; id < 3; id++ {
		if !seen[id] {
			t.Errorf("missing worker id %d in %v", id, seen)
		}
	}

	if err := o.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if o.IsRunning() {
		t.Error("expected not running after Stop")
	}
	if err := o.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("expected ErrNotRunning, got %v", err)
	}

	// Slots stay visible after Stop, all idle.
	statuses := o.WorkerStatus()
	if len(statuses) != 3 {
		t.Fatalf("expected 3 worker slots after stop, got %d", len(statuses))
	}
	for _, st := range statuses {
		if st.Running {
			t.Errorf("worker %d still reports running", st.WorkerID)
		}
		if st.CurrentTaskID != nil {
			t.Errorf("worker %d still reports a task", st.WorkerID)
		}
	}
}

func TestOrchestrator_WorkerStatusEmptyBeforeStart(t *testing.T) {
	o := newTestOrchestrator(t, &fakeRunner{}, 2)
	if statuses := o.WorkerStatus(); len(statuses) != 0 {
		t.Errorf("expected no worker slots before start, got %d", len(statuses))
	}
}

func TestOrchestrator_WorkersProcessQueue(t *testing.T) {
	runner := &fakeRunner{events: successEvents()}
	log := newTestLogger(t)
	cfg := newTestConfig(t)
	cfg.MaxWorkers = 2
	s := newTestStore(t)
	o := New(s, runner, bus.NewMemoryEventBus(log), cfg, log)
	ctx := context.Background()

	var ids []int64
	for _, prompt := range []string{"a", "b", "c"} {
		task, err := s.Enqueue(ctx, prompt, 0)
		if err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
		ids = append(ids, task.ID)
	}

	if err := o.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer func() {
		if o.IsRunning() {
			_ = o.Stop()
		}
	}()

	waitUntil(t, 10*time.Second, "queue drained", func() bool {
		for _, id := range ids {
			task, err := s.Get(ctx, id)
			if err != nil || task.Status != models.StatusDone {
				return false
			}
		}
		return true
	})

	if err := o.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	// Each run used one of the pool's workspace names.
	for _, ws := range runner.seenWorkspaces() {
		if ws != "drover-worker-0" && ws != "drover-worker-1" {
			t.Errorf("unexpected workspace %q", ws)
		}
	}
}

func TestOrchestrator_RestartAfterStop(t *testing.T) {
	o := newTestOrchestrator(t, &fakeRunner{}, 1)
	ctx := context.Background()

	if err := o.Start(ctx); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if err := o.Stop(); err != nil {
		t.Fatalf("first stop failed: %v", err)
	}

	if err := o.Start(ctx); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	if !o.IsRunning() {
		t.Error("expected running after restart")
	}
	if err := o.Stop(); err != nil {
		t.Fatalf("second stop failed: %v", err)
	}
}
