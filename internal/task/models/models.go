package models

import (
	"strings"
	"time"

	v1 "github.com/drover/drover/pkg/api/v1"
)

// TaskStatus represents the lifecycle state of a task
type TaskStatus string

const (
	// StatusPending - task is queued and waiting for a worker
	StatusPending TaskStatus = "pending"
	// StatusPlanning - a plan is being generated for the task
	StatusPlanning TaskStatus = "planning"
	// StatusPlanned - a plan is stored and awaiting approval
	StatusPlanned TaskStatus = "planned"
	// StatusRunning - a worker has claimed the task and an agent is executing it
	StatusRunning TaskStatus = "running"
	// StatusDone - task finished successfully
	StatusDone TaskStatus = "done"
	// StatusFailed - task finished with errors or was rejected
	StatusFailed TaskStatus = "failed"
)

// Terminal reports whether the status is a final state.
func (s TaskStatus) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Task represents a unit of agent work in the queue
type Task struct {
	ID            int64      `json:"id"`
	Prompt        string     `json:"prompt"`
	Status        TaskStatus `json:"status"`
	Priority      int        `json:"priority"` // higher wins; ties broken by lowest id
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

// RunLogEntry is one persisted agent stream event for a task
type RunLogEntry struct {
	ID        int64     `json:"id"`
	TaskID    int64     `json:"task_id"`
	EventType string    `json:"event_type"`
	Content   string    `json:"content,omitempty"`
	Raw       string    `json:"raw,omitempty"`
	CreatedAt time.Time `json:"ts"`
}

// WorkerStatus is a snapshot of one worker loop
type WorkerStatus struct {
	WorkerID      int    `json:"worker_id"`
	CurrentTaskID *int64 `json:"current_task_id,omitempty"`
	Running       bool   `json:"running"`
}

// Truncate caps s at max characters. Multi-byte runes are never split.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// Title derives a one-line display title from a prompt: the first 60
// characters with newlines flattened, plus "..." when the prompt is longer.
func (t *Task) Title() string {
	return TitleFromPrompt(t.Prompt)
}

// TitleFromPrompt implements the 60-character title rule used in progress
// entries and log lines.
func TitleFromPrompt(prompt string) string {
	title := strings.TrimSpace(strings.ReplaceAll(Truncate(prompt, 60), "\n", " "))
	if len([]rune(prompt)) > 60 {
		title += "..."
	}
	return title
}

// ToAPI converts internal Task to API type
func (t *Task) ToAPI() *v1.Task {
	return &v1.Task{
		ID:            t.ID,
		Prompt:        t.Prompt,
		Status:        string(t.Status),
		Priority:      t.Priority,
		WorkerID:      t.WorkerID,
		Plan:          t.Plan,
		ResultSummary: t.ResultSummary,
		Error:         t.Error,
		CostUSD:       t.CostUSD,
		TokensIn:      t.TokensIn,
		TokensOut:     t.TokensOut,
		DurationS:     t.DurationS,
		CreatedAt:     t.CreatedAt,
		StartedAt:     t.StartedAt,
		FinishedAt:    t.FinishedAt,
	}
}

// ToAPI converts internal RunLogEntry to API type
func (e *RunLogEntry) ToAPI() *v1.RunLogEntry {
	return &v1.RunLogEntry{
		ID:        e.ID,
		TaskID:    e.TaskID,
		EventType: e.EventType,
		Content:   e.Content,
		Raw:       e.Raw,
		CreatedAt: e.CreatedAt,
	}
}

// ToAPI converts internal WorkerStatus to API type
func (w *WorkerStatus) ToAPI() *v1.WorkerStatus {
	return &v1.WorkerStatus{
		WorkerID:      w.WorkerID,
		CurrentTaskID: w.CurrentTaskID,
		Running:       w.Running,
	}
}
