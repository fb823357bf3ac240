// Package websocket defines the WebSocket wire protocol: a single message
// envelope shared by requests, responses, notifications, and errors, plus
// the action vocabulary and a per-action dispatcher.
package websocket

import (
	"encoding/json"
	"time"
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	MessageTypeRequest      MessageType = "request"
	MessageTypeResponse     MessageType = "response"
	MessageTypeNotification MessageType = "notification"
	MessageTypeError        MessageType = "error"
)

// Message is the envelope for all WebSocket traffic. Requests carry an ID
// the server echoes back; notifications are server-initiated and have none.
type Message struct {
	ID        string          `json:"id,omitempty"`
	Type      MessageType     `json:"type"`
	Action    string          `json:"action"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// ErrorPayload is the payload of MessageTypeError messages
type ErrorPayload struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// NewRequest creates a client request message
func NewRequest(id, action string, payload interface{}) (*Message, error) {
	return newMessage(id, MessageTypeRequest, action, payload)
}

// NewResponse creates a server response to a request
func NewResponse(id, action string, payload interface{}) (*Message, error) {
	return newMessage(id, MessageTypeResponse, action, payload)
}

// NewNotification creates a server push notification
func NewNotification(action string, payload interface{}) (*Message, error) {
	return newMessage("", MessageTypeNotification, action, payload)
}

// NewError creates an error response message
func NewError(id, action, code, message string, details map[string]interface{}) (*Message, error) {
	return newMessage(id, MessageTypeError, action, ErrorPayload{
		Code:    code,
		Message: message,
		Details: details,
	})
}

func newMessage(id string, msgType MessageType, action string, payload interface{}) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:        id,
		Type:      msgType,
		Action:    action,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// ParsePayload parses the payload into the given struct
func (m *Message) ParsePayload(v interface{}) error {
	if m.Payload == nil {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}
