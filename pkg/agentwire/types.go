// Package agentwire defines the stream-json records coding-agent CLIs write
// to stdout, one JSON object per line. The orchestrator parses agent output
// leniently through internal/agent/stream; these types exist for code that
// has to produce the wire format, namely the mock agent and test fixtures.
package agentwire

// Record types emitted by agent CLIs.
const (
	// TypeSystem is the initial session banner record
	TypeSystem = "system"
	// TypeAssistant carries a complete assistant message with content blocks
	TypeAssistant = "assistant"
	// TypeContentBlockDelta carries an incremental text fragment
	TypeContentBlockDelta = "content_block_delta"
	// TypeToolUse announces a tool invocation
	TypeToolUse = "tool_use"
	// TypeToolResult carries the output of a tool invocation
	TypeToolResult = "tool_result"
	// TypeResult is the final record with cost and token usage
	TypeResult = "result"
)

// Record is one line of agent stdout in stream-json mode. The record type
// determines which fields are populated.
type Record struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype,omitempty"`

	// For system records
	SessionID string `json:"session_id,omitempty"`

	// For assistant records
	Message *Message `json:"message,omitempty"`

	// For content_block_delta records
	Delta *Delta `json:"delta,omitempty"`

	// For tool_use records. Some CLI versions emit "name", others "tool_name".
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	// For tool_result records
	Content string `json:"content,omitempty"`

	// For tool_result and result records
	IsError bool `json:"is_error,omitempty"`

	// For result records
	Result  string  `json:"result,omitempty"`
	CostUSD float64 `json:"cost_usd,omitempty"`
	Usage   *Usage  `json:"usage,omitempty"`
}

// Message is the body of an assistant record.
type Message struct {
	Role    string         `json:"role,omitempty"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock is one block inside an assistant message. Only text blocks
// contribute to the aggregated run output.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Delta is the payload of a content_block_delta record.
type Delta struct {
	Type string `json:"type,omitempty"`
	Text string `json:"text,omitempty"`
}

// Usage reports token consumption in a result record.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// AssistantText builds an assistant record holding a single text block.
func AssistantText(text string) Record {
	return Record{
		Type: TypeAssistant,
		Message: &Message{
			Role:    "assistant",
			Content: []ContentBlock{{Type: "text", Text: text}},
		},
	}
}

// ToolUse builds a tool_use record.
func ToolUse(name string, input map[string]any) Record {
	return Record{Type: TypeToolUse, Name: name, Input: input}
}

// ToolResult builds a tool_result record.
func ToolResult(content string, isError bool) Record {
	return Record{Type: TypeToolResult, Content: content, IsError: isError}
}

// FinalResult builds the terminal result record.
func FinalResult(result string, isError bool, costUSD float64, tokensIn, tokensOut int64) Record {
	subtype := "success"
	if isError {
		subtype = "error"
	}
	return Record{
		Type:    TypeResult,
		Subtype: subtype,
		Result:  result,
		IsError: isError,
		CostUSD: costUSD,
		Usage:   &Usage{InputTokens: tokensIn, OutputTokens: tokensOut},
	}
}
