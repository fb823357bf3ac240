// Package websocket is the gateway between the internal event bus and
// connected WebSocket clients. The hub fans every bus event out to all
// clients; a client that subscribes to a task id narrows its feed to that
// task. Request/response actions (task.list, task.get, health.check) are
// dispatched through pkg/websocket.
package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/drover/drover/internal/common/logger"
	ws "github.com/drover/drover/pkg/websocket"
)

// LogReplayProvider returns the stored run log of a task rendered as
// notification messages. The hub calls it when a client subscribes to a
// task so the client catches up before live events arrive.
type LogReplayProvider func(ctx context.Context, taskID int64) ([]*ws.Message, error)

// outbound is a message queued for fan-out. taskID is nil for messages
// that are not scoped to a single task (worker lifecycle, broadcasts).
type outbound struct {
	msg    *ws.Message
	taskID *int64
}

// Hub tracks connected clients and fans messages out to them.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan *outbound
	done       chan struct{}
	dispatcher *ws.Dispatcher
	replay     LogReplayProvider
	logger     *logger.Logger
	mu         sync.RWMutex
}

// NewHub creates a hub wired to the given action dispatcher.
func NewHub(dispatcher *ws.Dispatcher, log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *outbound, 256),
		done:       make(chan struct{}),
		dispatcher: dispatcher,
		logger:     log.WithFields(zap.String("component", "ws-hub")),
	}
}

// SetLogReplayProvider installs the run-log replay source. Call before Run.
func (h *Hub) SetLogReplayProvider(p LogReplayProvider) {
	h.replay = p
}

// Run processes client registration and message fan-out until ctx is
// cancelled, then closes every remaining client.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("Hub started")
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Hub stopping")
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("Client connected",
				zap.String("client_id", client.ID),
				zap.Int("clients", count))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("Client disconnected",
				zap.String("client_id", client.ID),
				zap.Int("clients", count))

		case out := <-h.broadcast:
			h.deliver(out)
		}
	}
}

// Register hands a client to the run loop. No-op once the hub has stopped.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast queues a message for every connected client.
func (h *Hub) Broadcast(msg *ws.Message) {
	h.enqueue(&outbound{msg: msg})
}

// BroadcastTask queues a message scoped to one task. Clients subscribed to
// other tasks do not receive it; clients with no subscriptions receive
// everything.
func (h *Hub) BroadcastTask(taskID int64, msg *ws.Message) {
	h.enqueue(&outbound{msg: msg, taskID: &taskID})
}

func (h *Hub) enqueue(out *outbound) {
	select {
	case h.broadcast <- out:
	default:
		h.logger.Warn("Broadcast queue full, dropping message")
	}
}

func (h *Hub) deliver(out *outbound) {
	data, err := json.Marshal(out.msg)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal broadcast message")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if !client.wants(out.taskID) {
			continue
		}
		select {
		case client.send <- data:
		default:
			// Slow client: drop the message rather than stall the hub.
			h.logger.Warn("Client send buffer full, dropping message",
				zap.String("client_id", client.ID))
		}
	}
}

// SubscribeToTask narrows the client's feed to the given task.
func (h *Hub) SubscribeToTask(client *Client, taskID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.subscriptions[taskID] = true
	h.logger.Debug("Client subscribed to task",
		zap.String("client_id", client.ID),
		zap.Int64("task_id", taskID))
}

// UnsubscribeFromTask removes a task subscription. A client whose last
// subscription is removed reverts to receiving everything.
func (h *Hub) UnsubscribeFromTask(client *Client, taskID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(client.subscriptions, taskID)
	h.logger.Debug("Client unsubscribed from task",
		zap.String("client_id", client.ID),
		zap.Int64("task_id", taskID))
}

// ReplayLogs fetches the stored run log of a task as messages, or nil when
// no replay provider is installed.
func (h *Hub) ReplayLogs(ctx context.Context, taskID int64) ([]*ws.Message, error) {
	if h.replay == nil {
		return nil, nil
	}
	return h.replay(ctx, taskID)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}
