// Package integration provides end-to-end integration tests for the Drover
// server: HTTP API, WebSocket gateway, worker pool and planner wired together
// over a real SQLite store and the in-memory event bus. Only the agent
// subprocess is replaced, by a scripted runner.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/drover/drover/internal/agent/stream"
	"github.com/drover/drover/internal/common/config"
	"github.com/drover/drover/internal/common/logger"
	"github.com/drover/drover/internal/db"
	"github.com/drover/drover/internal/events"
	"github.com/drover/drover/internal/events/bus"
	gatewayws "github.com/drover/drover/internal/gateway/websocket"
	"github.com/drover/drover/internal/orchestrator"
	"github.com/drover/drover/internal/orchestrator/planner"
	taskhandlers "github.com/drover/drover/internal/task/handlers"
	taskservice "github.com/drover/drover/internal/task/service"
	"github.com/drover/drover/internal/task/store"
	v1 "github.com/drover/drover/pkg/api/v1"
	ws "github.com/drover/drover/pkg/websocket"
)

// failMarker in a task prompt makes the scripted runner produce a failing
// run. The marker never appears in diagnosed error text, so the follow-up
// fix task runs clean instead of failing forever.
const failMarker = "demolish"

// scriptedRunner implements the orchestrator's AgentRunner with canned
// streams keyed by prompt content: plan-mode prompts yield a plan, prompts
// carrying failMarker yield a failing run, everything else succeeds.
type scriptedRunner struct {
	mu      sync.Mutex
	prompts []string
}

func (r *scriptedRunner) Run(ctx context.Context, prompt, repoPath, workspaceName string) (<-chan *stream.Event, error) {
	r.mu.Lock()
	r.prompts = append(r.prompts, prompt)
	r.mu.Unlock()

	var canned []*stream.Event
	switch {
	case strings.Contains(prompt, "plan-only mode"):
		canned = []*stream.Event{
			{Type: stream.EventTypeSystem, Subtype: "init"},
			{Type: stream.EventTypeAssistant, Content: "1. Change api.go\n2. Add tests\n3. Watch for nil maps"},
			{Type: stream.EventTypeResult, Content: "plan produced", CostUSD: 0.001, TokensIn: 80, TokensOut: 40},
		}
	case strings.Contains(prompt, failMarker):
		canned = []*stream.Event{
			{Type: stream.EventTypeSystem, Subtype: "init"},
			{Type: stream.EventTypeToolUse, ToolName: "Bash"},
			{Type: stream.EventTypeToolResult, Content: "TestPipeline: unexpected exit status 1", IsError: true},
			{Type: stream.EventTypeAssistant, Content: "The tests are failing."},
			{Type: stream.EventTypeResult, Content: "run aborted", CostUSD: 0.002, TokensIn: 120, TokensOut: 60},
		}
	default:
		canned = []*stream.Event{
			{Type: stream.EventTypeSystem, Subtype: "init"},
			{Type: stream.EventTypeAssistant, Content: "All changes applied and verified."},
			{Type: stream.EventTypeToolUse, ToolName: "Edit"},
			{Type: stream.EventTypeToolResult, Content: "ok"},
			{Type: stream.EventTypeResult, Content: "done", CostUSD: 0.0042, TokensIn: 523, TokensOut: 187},
		}
	}

	ch := make(chan *stream.Event)
	go func() {
		defer close(ch)
		for _, event := range canned {
			select {
			case ch <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (r *scriptedRunner) seenPrompts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.prompts...)
}

// TestServer runs the full drover stack against an httptest listener.
type TestServer struct {
	Server   *httptest.Server
	Gateway  *gatewayws.Gateway
	Store    *store.Store
	Svc      *taskservice.Service
	EventBus bus.EventBus
	Orch     *orchestrator.Orchestrator
	Runner   *scriptedRunner
	RepoDir  string
	Logger   *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// newTestServer builds the stack and starts the worker pool.
func newTestServer(t *testing.T) *TestServer {
	ts := newTestServerNoPool(t)
	require.NoError(t, ts.Orch.Start(ts.ctx))
	return ts
}

// newTestServerNoPool builds the stack but leaves the worker pool stopped, so
// tests can drive plan mode without a worker claiming the task first.
func newTestServerNoPool(t *testing.T) *TestServer {
	t.Helper()

	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:  "error", // Suppress logs during tests
		Format: "console",
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())

	eventBus := bus.NewMemoryEventBus(log)

	dbConn, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(dbConn, "sqlite3")
	st, err := store.New(sqlxDB, sqlxDB)
	require.NoError(t, err)

	runner := &scriptedRunner{}
	repoDir := t.TempDir()
	cfg := config.OrchestratorConfig{
		RepoPath:     repoDir,
		MaxWorkers:   2,
		ProgressFile: "PROGRESS.md",
		PollInterval: 1,
	}

	orch := orchestrator.New(st, runner, eventBus, cfg, log)
	planMgr := planner.New(st, runner, eventBus, cfg, log)

	svc := taskservice.NewService(st, eventBus, log)
	svc.SetWorkerReporter(orch)
	svc.SetPlanner(planMgr)

	gateway := gatewayws.NewGateway(log)
	go gateway.Hub.Run(ctx)
	gatewayws.RegisterTaskNotifications(ctx, eventBus, gateway.Hub, log)
	gateway.Hub.SetLogReplayProvider(func(ctx context.Context, taskID int64) ([]*ws.Message, error) {
		entries, err := svc.TaskLogs(ctx, taskID)
		if err != nil {
			return nil, err
		}
		result := make([]*ws.Message, 0, len(entries))
		for _, entry := range entries {
			notification, err := ws.NewNotification(events.TaskEvent, map[string]interface{}{
				"task_id": entry.TaskID,
				"type":    entry.EventType,
				"content": entry.Content,
			})
			if err != nil {
				continue
			}
			result = append(result, notification)
		}
		return result, nil
	})

	gin.SetMode(gin.TestMode)
	router := gin.New()
	gateway.SetupRoutes(router)
	taskhandlers.RegisterTaskRoutes(router, gateway.Dispatcher, svc, log)

	server := httptest.NewServer(router)

	ts := &TestServer{
		Server:   server,
		Gateway:  gateway,
		Store:    st,
		Svc:      svc,
		EventBus: eventBus,
		Orch:     orch,
		Runner:   runner,
		RepoDir:  repoDir,
		Logger:   log,
		ctx:      ctx,
		cancel:   cancel,
	}
	t.Cleanup(func() {
		if ts.Orch.IsRunning() {
			_ = ts.Orch.Stop()
		}
		ts.cancel()
		ts.Server.Close()
		ts.EventBus.Close()
		_ = sqlxDB.Close()
	})
	return ts
}

// wsURL converts the test server's base URL into the gateway endpoint.
func (ts *TestServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.Server.URL, "http") + "/ws"
}

func (ts *TestServer) apiURL(path string) string {
	return ts.Server.URL + "/api/v1" + path
}

// createTask enqueues a task over the HTTP API and returns its id.
func (ts *TestServer) createTask(t *testing.T, prompt string, priority int) int64 {
	t.Helper()
	body, err := json.Marshal(v1.CreateTaskRequest{Prompt: prompt, Priority: priority})
	require.NoError(t, err)

	resp, err := http.Post(ts.apiURL("/tasks"), "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var created v1.CreateTaskResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotZero(t, created.ID)
	return created.ID
}

// getTask fetches a task over the HTTP API.
func (ts *TestServer) getTask(t *testing.T, id int64) *v1.Task {
	t.Helper()
	resp, err := http.Get(ts.apiURL(fmt.Sprintf("/tasks/%d", id)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var task v1.Task
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&task))
	return &task
}

// waitForStatus polls the HTTP API until the task reaches the wanted status.
func (ts *TestServer) waitForStatus(t *testing.T, id int64, status string) *v1.Task {
	t.Helper()
	var last *v1.Task
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		last = ts.getTask(t, id)
		if last.Status == status {
			return last
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("task %d never reached status %q (last: %q)", id, status, last.Status)
	return nil
}
