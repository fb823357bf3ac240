package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/drover/drover/pkg/agentwire"
)

// The built-in scenario is deterministic so tests can assert on aggregate
// numbers. It opens with a non-JSON banner line, which real CLIs print too
// and consumers must skip.

func emitScenario(w io.Writer, prompt, worktree string) {
	where := "repository root"
	if worktree != "" {
		where = "worktree " + worktree
	}
	fmt.Fprintf(w, "mock-agent %s starting in %s\n", sessionID, where)

	enc := json.NewEncoder(w)
	emit := func(r agentwire.Record) { _ = enc.Encode(r) }

	emit(agentwire.Record{Type: agentwire.TypeSystem, Subtype: "init", SessionID: sessionID})
	emit(agentwire.AssistantText("Starting on: " + firstLine(prompt)))
	emit(agentwire.Record{
		Type:  agentwire.TypeContentBlockDelta,
		Delta: &agentwire.Delta{Type: "text_delta", Text: "Inspecting the repository..."},
	})
	emit(agentwire.ToolUse("Read", map[string]any{"file_path": "README.md"}))
	emit(agentwire.ToolResult("# Project\n\nSee PROGRESS.md for history.", false))

	if strings.Contains(strings.ToLower(prompt), "fail") {
		emit(agentwire.ToolUse("Bash", map[string]any{"command": "go test ./..."}))
		emit(agentwire.ToolResult("FAIL: TestPipeline (0.31s)\n    pipeline_test.go:42: unexpected status", true))
		emit(agentwire.AssistantText("The tests are failing; I could not complete the task."))
		emit(agentwire.FinalResult("Task aborted: tests failing", true, 0.0031, 412, 96))
		return
	}

	emit(agentwire.ToolUse("Edit", map[string]any{
		"file_path":  "main.go",
		"old_string": "TODO",
		"new_string": "done",
	}))
	emit(agentwire.ToolResult("ok", false))
	emit(agentwire.AssistantText("All changes applied and verified."))
	emit(agentwire.FinalResult("Task completed successfully", false, 0.0042, 523, 187))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 80 {
		s = s[:80] + "..."
	}
	return s
}
