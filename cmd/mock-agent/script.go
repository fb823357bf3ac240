package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/drover/drover/pkg/agentwire"
)

// Script is a YAML-described record sequence, for tests that need streams
// the built-in scenario doesn't produce (unknown record types, odd
// interleavings, torn output).
//
//	records:
//	  - banner: "not json"
//	  - assistant: "hello"
//	  - delta: "chunk"
//	  - tool_use: {name: Bash, input: {command: ls}}
//	  - tool_result: {content: "ok"}
//	  - raw: '{"type":"custom_event"}'
//	  - sleep_ms: 50
//	  - result: {result: "done", cost_usd: 0.01, input_tokens: 5, output_tokens: 9}
type Script struct {
	Records []ScriptRecord `yaml:"records"`
}

// ScriptRecord emits exactly one line (or sleeps). The first set field wins.
type ScriptRecord struct {
	Banner     string            `yaml:"banner,omitempty"`
	Raw        string            `yaml:"raw,omitempty"`
	SleepMS    int               `yaml:"sleep_ms,omitempty"`
	Assistant  string            `yaml:"assistant,omitempty"`
	Delta      string            `yaml:"delta,omitempty"`
	ToolUse    *ScriptToolUse    `yaml:"tool_use,omitempty"`
	ToolResult *ScriptToolResult `yaml:"tool_result,omitempty"`
	Result     *ScriptResult     `yaml:"result,omitempty"`
}

type ScriptToolUse struct {
	Name  string         `yaml:"name"`
	Input map[string]any `yaml:"input,omitempty"`
}

type ScriptToolResult struct {
	Content string `yaml:"content"`
	IsError bool   `yaml:"is_error,omitempty"`
}

type ScriptResult struct {
	Result       string  `yaml:"result"`
	IsError      bool    `yaml:"is_error,omitempty"`
	CostUSD      float64 `yaml:"cost_usd,omitempty"`
	InputTokens  int64   `yaml:"input_tokens,omitempty"`
	OutputTokens int64   `yaml:"output_tokens,omitempty"`
}

func loadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse script %s: %w", path, err)
	}
	return &s, nil
}

func (s *Script) emit(w io.Writer) {
	enc := json.NewEncoder(w)
	for _, r := range s.Records {
		switch {
		case r.Banner != "":
			fmt.Fprintln(w, r.Banner)
		case r.Raw != "":
			fmt.Fprintln(w, r.Raw)
		case r.SleepMS > 0:
			time.Sleep(time.Duration(r.SleepMS) * time.Millisecond)
		case r.Assistant != "":
			_ = enc.Encode(agentwire.AssistantText(r.Assistant))
		case r.Delta != "":
			_ = enc.Encode(agentwire.Record{
				Type:  agentwire.TypeContentBlockDelta,
				Delta: &agentwire.Delta{Type: "text_delta", Text: r.Delta},
			})
		case r.ToolUse != nil:
			_ = enc.Encode(agentwire.ToolUse(r.ToolUse.Name, r.ToolUse.Input))
		case r.ToolResult != nil:
			_ = enc.Encode(agentwire.ToolResult(r.ToolResult.Content, r.ToolResult.IsError))
		case r.Result != nil:
			_ = enc.Encode(agentwire.FinalResult(
				r.Result.Result, r.Result.IsError, r.Result.CostUSD,
				r.Result.InputTokens, r.Result.OutputTokens))
		}
	}
}
