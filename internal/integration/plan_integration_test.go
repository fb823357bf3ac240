package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/drover/drover/pkg/api/v1"
)

const wantPlan = "1. Change api.go\n2. Add tests\n3. Watch for nil maps"

func postJSON(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	require.NoError(t, err)
	return resp
}

func TestPlanApproveFlow(t *testing.T) {
	// The pool stays stopped while the plan is reviewed, so the pending task
	// cannot be claimed out from under the planner.
	ts := newTestServerNoPool(t)

	id := ts.createTask(t, "Tidy the storage layer", 2)

	// Plan generation is synchronous over HTTP.
	resp := postJSON(t, ts.apiURL(fmt.Sprintf("/tasks/%d/plan", id)))
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var plan v1.PlanResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&plan))
	assert.Equal(t, id, plan.TaskID)
	assert.Equal(t, wantPlan, plan.Plan)

	task := ts.getTask(t, id)
	assert.Equal(t, "planned", task.Status)
	assert.Equal(t, wantPlan, task.Plan)

	// Approval settles the planning task and enqueues the execution task at
	// a bumped priority.
	approveResp := postJSON(t, ts.apiURL(fmt.Sprintf("/tasks/%d/plan/approve", id)))
	defer approveResp.Body.Close()
	require.Equal(t, http.StatusOK, approveResp.StatusCode)
	var decision v1.PlanDecisionResponse
	require.NoError(t, json.NewDecoder(approveResp.Body).Decode(&decision))
	assert.Equal(t, "approved", decision.Status)

	settled := ts.getTask(t, id)
	assert.Equal(t, "done", settled.Status)
	assert.Equal(t, "Plan approved and enqueued for execution", settled.ResultSummary)

	var exec *v1.Task
	for _, candidate := range ts.listTasks(t) {
		if candidate.ID != id && strings.HasPrefix(candidate.Prompt, "Execute this approved plan") {
			exec = candidate
		}
	}
	require.NotNil(t, exec, "expected an execution task")
	assert.Equal(t, 12, exec.Priority)
	assert.Contains(t, exec.Prompt, wantPlan)
	assert.Contains(t, exec.Prompt, "Original task: Tidy the storage layer")

	// With the pool running, the execution task completes like any other.
	require.NoError(t, ts.Orch.Start(ts.ctx))
	done := ts.waitForStatus(t, exec.ID, "done")
	assert.Equal(t, "All changes applied and verified.", done.ResultSummary)
}

func TestPlanRejectFlow(t *testing.T) {
	ts := newTestServerNoPool(t)

	id := ts.createTask(t, "Rewrite everything in brainfuck", 0)

	resp := postJSON(t, ts.apiURL(fmt.Sprintf("/tasks/%d/plan", id)))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	rejectResp := postJSON(t, ts.apiURL(fmt.Sprintf("/tasks/%d/plan/reject", id)))
	defer rejectResp.Body.Close()
	require.Equal(t, http.StatusOK, rejectResp.StatusCode)

	task := ts.getTask(t, id)
	assert.Equal(t, "failed", task.Status)
	assert.Equal(t, "Plan rejected", task.Error)

	// No execution task appears for a rejected plan.
	for _, candidate := range ts.listTasks(t) {
		assert.False(t, strings.HasPrefix(candidate.Prompt, "Execute this approved plan"),
			"rejected plan must not enqueue execution work")
	}
}

func TestApproveWithoutPlanFails(t *testing.T) {
	ts := newTestServerNoPool(t)

	id := ts.createTask(t, "Never planned", 0)

	resp := postJSON(t, ts.apiURL(fmt.Sprintf("/tasks/%d/plan/approve", id)))
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
