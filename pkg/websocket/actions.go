package websocket

// Action constants for WebSocket messages. Notification actions reuse the
// event bus type strings so clients see one vocabulary across both.
const (
	// Health
	ActionHealthCheck = "health.check"

	// Request actions (client -> server)
	ActionTaskList = "task.list"
	ActionTaskGet  = "task.get"

	// Subscription actions
	ActionTaskSubscribe   = "task.subscribe"
	ActionTaskUnsubscribe = "task.unsubscribe"

	// Notification actions (server -> client)
	ActionTaskCreated   = "task.created"
	ActionTaskClaimed   = "task.claimed"
	ActionTaskEvent     = "task.event"
	ActionTaskCompleted = "task.completed"
	ActionTaskFailed    = "task.failed"
	ActionTaskPlanning  = "task.planning"
	ActionTaskPlanned   = "task.planned"
	ActionPlanApproved  = "plan.approved"
	ActionPlanRejected  = "plan.rejected"
	ActionWorkerStarted = "worker.started"
	ActionWorkerStopped = "worker.stopped"
)

// Error codes
const (
	ErrorCodeBadRequest    = "BAD_REQUEST"
	ErrorCodeNotFound      = "NOT_FOUND"
	ErrorCodeInternalError = "INTERNAL_ERROR"
	ErrorCodeValidation    = "VALIDATION_ERROR"
	ErrorCodeUnknownAction = "UNKNOWN_ACTION"
)
