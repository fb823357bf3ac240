// Package stream normalizes the coding agent CLI's stream-json output.
// The agent emits one JSON record per stdout line; ParseRecord flattens a
// decoded record into an Event, and Collect folds a finished run's events
// into a RunResult.
package stream

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Event types emitted by the agent CLI
const (
	// EventTypeSystem is the initial system message with session info
	EventTypeSystem = "system"
	// EventTypeAssistant contains text from the assistant
	EventTypeAssistant = "assistant"
	// EventTypeContentBlockDelta carries an incremental text fragment
	EventTypeContentBlockDelta = "content_block_delta"
	// EventTypeToolUse is emitted when the agent invokes a tool
	EventTypeToolUse = "tool_use"
	// EventTypeToolResult carries a tool's output
	EventTypeToolResult = "tool_result"
	// EventTypeResult is the final message with run metrics
	EventTypeResult = "result"
	// EventTypeUnknown is assigned when a record has no type field
	EventTypeUnknown = "unknown"
)

// Event is one normalized record from the agent's stdout stream.
// The record type determines which fields are populated.
type Event struct {
	Type      string
	Subtype   string
	Content   string
	ToolName  string
	ToolInput map[string]any
	CostUSD   float64
	TokensIn  int64
	TokensOut int64
	IsError   bool

	// Raw is the original decoded record, preserved for persistence.
	Raw map[string]any
}

// RawJSON re-encodes the original record for storage. Records that cannot
// be marshaled (they were just unmarshaled, so this is unlikely) degrade to
// an empty object.
func (e *Event) RawJSON() string {
	b, err := json.Marshal(e.Raw)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// ParseRecord normalizes a single decoded stream-json record. It is total:
// any JSON object produces exactly one Event, with unknown types preserved
// verbatim and missing fields left at their zero values.
func ParseRecord(data map[string]any) *Event {
	event := &Event{
		Type:    EventTypeUnknown,
		Subtype: getString(data, "subtype"),
		Raw:     data,
	}
	if t := getString(data, "type"); t != "" {
		event.Type = t
	}

	switch event.Type {
	case EventTypeAssistant:
		if message := getMap(data, "message"); message != nil {
			event.Content = joinTextParts(getSlice(message, "content"))
		} else if block := getMap(data, "content_block"); block != nil {
			event.Content = getString(block, "text")
		}

	case EventTypeContentBlockDelta:
		if delta := getMap(data, "delta"); delta != nil {
			event.Content = getString(delta, "text")
		}

	case EventTypeToolUse:
		event.ToolName = getString(data, "name")
		if event.ToolName == "" {
			event.ToolName = getString(data, "tool_name")
		}
		event.ToolInput = getMap(data, "input")
		if event.ToolInput == nil {
			event.ToolInput = getMap(data, "tool_input")
		}
		if event.ToolInput == nil {
			event.ToolInput = map[string]any{}
		}

	case EventTypeToolResult:
		content, ok := data["content"]
		if !ok || content == nil {
			content = data["output"]
		}
		event.Content = stringify(content)
		event.IsError = getBool(data, "is_error")

	case EventTypeResult:
		event.Content = getString(data, "result")
		if usage := getMap(data, "usage"); usage != nil {
			event.TokensIn = getInt64(usage, "input_tokens")
			event.TokensOut = getInt64(usage, "output_tokens")
		}
		event.CostUSD = getFloat(data, "cost_usd")
		if event.CostUSD == 0 {
			event.CostUSD = getFloat(data, "cost")
		}
	}

	return event
}

// joinTextParts space-joins the text of every content part whose type is
// "text", matching the CLI's assistant message shape.
func joinTextParts(parts []any) string {
	var texts []string
	for _, part := range parts {
		pm, ok := part.(map[string]any)
		if !ok {
			continue
		}
		if getString(pm, "type") == "text" {
			texts = append(texts, getString(pm, "text"))
		}
	}
	return strings.Join(texts, " ")
}

// stringify renders a tool result value as text. Strings pass through;
// structured values are re-encoded as JSON.
func stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
