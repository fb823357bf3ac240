package integration

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ws "github.com/drover/drover/pkg/websocket"
)

func dial(t *testing.T, url string) *gorillaws.Conn {
	t.Helper()
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// wsReader splits batched frames into individual messages. The write pump
// newline-joins queued messages into one frame.
type wsReader struct {
	conn    *gorillaws.Conn
	pending [][]byte
}

func (r *wsReader) next(t *testing.T) *ws.Message {
	t.Helper()
	if len(r.pending) == 0 {
		r.conn.SetReadDeadline(time.Now().Add(10 * time.Second))
		_, data, err := r.conn.ReadMessage()
		if err != nil {
			t.Fatalf("read websocket message: %v", err)
		}
		for _, part := range bytes.Split(data, []byte{'\n'}) {
			if len(part) > 0 {
				r.pending = append(r.pending, part)
			}
		}
	}
	msg := &ws.Message{}
	if err := json.Unmarshal(r.pending[0], msg); err != nil {
		t.Fatalf("unmarshal message %q: %v", r.pending[0], err)
	}
	r.pending = r.pending[1:]
	return msg
}

func sendRequest(t *testing.T, conn *gorillaws.Conn, id, action string, payload interface{}) {
	t.Helper()
	msg, err := ws.NewRequest(id, action, payload)
	require.NoError(t, err)
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(gorillaws.TextMessage, data))
}

// taskPayload is the common notification payload shape for task events.
type taskPayload struct {
	TaskID  int64  `json:"task_id"`
	Type    string `json:"type"`
	Content string `json:"content"`
	Status  string `json:"status"`
}

func TestWebSocketSeesLiveRun(t *testing.T) {
	ts := newTestServer(t)

	conn := dial(t, ts.wsURL())
	reader := &wsReader{conn: conn}

	// Registration is asynchronous; enqueue only once the hub sees the client
	// so the early notifications cannot be missed.
	deadline := time.Now().Add(5 * time.Second)
	for ts.Gateway.Hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.NotZero(t, ts.Gateway.Hub.ClientCount(), "client never registered with hub")

	id := ts.createTask(t, "Wire up the new endpoint", 0)

	// An unsubscribed client is a firehose: collect task notifications until
	// the terminal event for our task arrives.
	var sawClaimed, sawAssistant bool
	var final *taskPayload
	for final == nil {
		msg := reader.next(t)
		if msg.Type != ws.MessageTypeNotification {
			continue
		}
		var payload taskPayload
		if err := msg.ParsePayload(&payload); err != nil || payload.TaskID != id {
			continue
		}
		switch msg.Action {
		case "task.claimed":
			sawClaimed = true
		case "task.event":
			if payload.Type == "assistant" {
				sawAssistant = true
				assert.Equal(t, "All changes applied and verified.", payload.Content)
			}
		case "task.completed":
			final = &payload
		case "task.failed":
			t.Fatalf("task failed unexpectedly: %+v", payload)
		}
	}

	assert.True(t, sawClaimed, "expected a task.claimed notification")
	assert.True(t, sawAssistant, "expected an assistant task.event notification")
	assert.Equal(t, "done", final.Status)
}

func TestWebSocketReplayOnSubscribe(t *testing.T) {
	ts := newTestServer(t)

	id := ts.createTask(t, "Ship the thing", 0)
	ts.waitForStatus(t, id, "done")

	// A client arriving after the run still gets the full log on subscribe.
	conn := dial(t, ts.wsURL())
	reader := &wsReader{conn: conn}
	sendRequest(t, conn, "req-1", ws.ActionTaskSubscribe, map[string]interface{}{"task_id": id})

	resp := reader.next(t)
	require.Equal(t, ws.MessageTypeResponse, resp.Type)
	require.Equal(t, "req-1", resp.ID)

	types := make([]string, 0, 5)
	var assistantText string
	for i := 0; i < 5; i++ {
		msg := reader.next(t)
		require.Equal(t, ws.MessageTypeNotification, msg.Type)
		require.Equal(t, "task.event", msg.Action)

		var payload taskPayload
		require.NoError(t, msg.ParsePayload(&payload))
		require.Equal(t, id, payload.TaskID)
		types = append(types, payload.Type)
		if payload.Type == "assistant" {
			assistantText = payload.Content
		}
	}
	assert.Equal(t, []string{"system", "assistant", "tool_use", "tool_result", "result"}, types)
	assert.Equal(t, "All changes applied and verified.", assistantText)
}
