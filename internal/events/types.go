// Package events provides event types and utilities for the Drover event system.
package events

import "fmt"

// Event types for task lifecycle
const (
	TaskCreated   = "task.created"
	TaskClaimed   = "task.claimed"
	TaskCompleted = "task.completed"
	TaskFailed    = "task.failed"
	TaskPlanning  = "task.planning"
	TaskPlanned   = "task.planned"
)

// Event types for plan review decisions
const (
	PlanApproved = "plan.approved"
	PlanRejected = "plan.rejected"
)

// Event types for workers
const (
	WorkerStarted = "worker.started"
	WorkerStopped = "worker.stopped"
)

// TaskEvent is the base subject for streamed agent output of a running task.
const TaskEvent = "task.event"

// BuildTaskEventSubject creates a stream subject for a specific task
func BuildTaskEventSubject(taskID int64) string {
	return fmt.Sprintf("%s.%d", TaskEvent, taskID)
}

// BuildTaskEventWildcardSubject creates a wildcard subscription for all task stream events
func BuildTaskEventWildcardSubject() string {
	return TaskEvent + ".*"
}

// BuildTaskWildcardSubject creates a wildcard subscription covering every task
// subject, lifecycle and stream alike
func BuildTaskWildcardSubject() string {
	return "task.>"
}

// BuildPlanWildcardSubject creates a wildcard subscription for plan review decisions
func BuildPlanWildcardSubject() string {
	return "plan.>"
}
