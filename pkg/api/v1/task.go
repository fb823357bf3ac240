package v1

import "time"

// Task represents a queued unit of agent work
type Task struct {
	ID            int64      `json:"id"`
	Prompt        string     `json:"prompt"`
	Status        string     `json:"status"`
	Priority      int        `json:"priority"`
	WorkerID      *int       `json:"worker_id,omitempty"`
	Plan          string     `json:"plan,omitempty"`
	ResultSummary string     `json:"result_summary,omitempty"`
	Error         string     `json:"error,omitempty"`
	CostUSD       float64    `json:"cost_usd"`
	TokensIn      int64      `json:"tokens_in"`
	TokensOut     int64      `json:"tokens_out"`
	DurationS     float64    `json:"duration_s"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// RunLogEntry is one recorded agent stream event for a task
type RunLogEntry struct {
	ID        int64     `json:"id"`
	TaskID    int64     `json:"task_id"`
	EventType string    `json:"event_type"`
	Content   string    `json:"content,omitempty"`
	Raw       string    `json:"raw,omitempty"`
	CreatedAt time.Time `json:"ts"`
}

// WorkerStatus is a snapshot of one orchestrator worker
type WorkerStatus struct {
	WorkerID      int    `json:"worker_id"`
	CurrentTaskID *int64 `json:"current_task_id,omitempty"`
	Running       bool   `json:"running"`
}

// CreateTaskRequest for enqueueing a new task. Prompt is validated by the
// handler so that blank input yields the documented error message.
type CreateTaskRequest struct {
	Prompt   string `json:"prompt"`
	Priority int    `json:"priority"`
}

// CreateTaskResponse is returned on successful enqueue
type CreateTaskResponse struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

// ListTasksResponse wraps a page of tasks, newest first
type ListTasksResponse struct {
	Tasks []*Task `json:"tasks"`
	Total int     `json:"total"`
}

// ListLogsResponse wraps a task's run log in stream order
type ListLogsResponse struct {
	Logs  []*RunLogEntry `json:"logs"`
	Total int            `json:"total"`
}

// ListWorkersResponse wraps worker slot statuses
type ListWorkersResponse struct {
	Workers []*WorkerStatus `json:"workers"`
	Total   int             `json:"total"`
}

// PlanResponse is returned when a plan has been generated for a task
type PlanResponse struct {
	TaskID int64  `json:"task_id"`
	Plan   string `json:"plan"`
}

// PlanDecisionResponse is returned by plan approve/reject
type PlanDecisionResponse struct {
	TaskID int64  `json:"task_id"`
	Status string `json:"status"`
}

// ErrorResponse is the uniform error body
type ErrorResponse struct {
	Error string `json:"error"`
}
