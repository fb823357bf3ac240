package websocket

import (
	"context"

	"go.uber.org/zap"

	"github.com/drover/drover/internal/common/logger"
	"github.com/drover/drover/internal/events"
	"github.com/drover/drover/internal/events/bus"
	ws "github.com/drover/drover/pkg/websocket"
)

// TaskEventBroadcaster forwards bus events to WebSocket clients. The wire
// action is the bus event type string, so clients see one vocabulary across
// the bus and the gateway.
type TaskEventBroadcaster struct {
	hub           *Hub
	subscriptions []bus.Subscription
	logger        *logger.Logger
}

// RegisterTaskNotifications subscribes the hub to the task, plan and worker
// subjects. The broadcaster unsubscribes when ctx is cancelled.
func RegisterTaskNotifications(ctx context.Context, eventBus bus.EventBus, hub *Hub, log *logger.Logger) *TaskEventBroadcaster {
	b := &TaskEventBroadcaster{
		hub:    hub,
		logger: log.WithFields(zap.String("component", "ws-task-broadcaster")),
	}
	if eventBus == nil {
		return b
	}

	b.subscribe(eventBus, events.BuildTaskWildcardSubject())
	b.subscribe(eventBus, events.BuildPlanWildcardSubject())
	b.subscribe(eventBus, events.WorkerStarted)
	b.subscribe(eventBus, events.WorkerStopped)

	go func() {
		<-ctx.Done()
		b.Close()
	}()

	return b
}

// Close drops every bus subscription.
func (b *TaskEventBroadcaster) Close() {
	for _, sub := range b.subscriptions {
		if sub != nil && sub.IsValid() {
			_ = sub.Unsubscribe()
		}
	}
	b.subscriptions = nil
}

func (b *TaskEventBroadcaster) subscribe(eventBus bus.EventBus, subject string) {
	sub, err := eventBus.Subscribe(subject, func(ctx context.Context, event *bus.Event) error {
		msg, err := ws.NewNotification(event.Type, event.Data)
		if err != nil {
			b.logger.Error("Failed to build websocket notification",
				zap.String("event_type", event.Type), zap.Error(err))
			return nil
		}
		if taskID, ok := eventTaskID(event.Data); ok {
			b.hub.BroadcastTask(taskID, msg)
			return nil
		}
		b.hub.Broadcast(msg)
		return nil
	})
	if err != nil {
		b.logger.Error("Failed to subscribe to events",
			zap.String("subject", subject), zap.Error(err))
		return
	}
	b.subscriptions = append(b.subscriptions, sub)
}

// eventTaskID pulls the task id out of event data. In process the id stays
// an int64; a NATS round trip decodes JSON numbers as float64.
func eventTaskID(data interface{}) (int64, bool) {
	m, ok := data.(map[string]interface{})
	if !ok {
		return 0, false
	}
	switch v := m["task_id"].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}
