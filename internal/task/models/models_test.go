package models

import (
	"strings"
	"testing"
)

func TestTaskStatusTerminal(t *testing.T) {
	tests := []struct {
		status TaskStatus
		want   bool
	}{
		{StatusPending, false},
		{StatusPlanning, false},
		{StatusPlanned, false},
		{StatusRunning, false},
		{StatusDone, true},
		{StatusFailed, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("Terminal(%q) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"shorter than max", "hello", 10, "hello"},
		{"exactly max", "hello", 5, "hello"},
		{"longer than max", "hello world", 5, "hello"},
		{"zero max", "hello", 0, ""},
		{"negative max", "hello", -1, ""},
		{"empty string", "", 5, ""},
		{"multibyte runes kept whole", "héllo wörld", 7, "héllo w"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Truncate(tt.in, tt.max); got != tt.want {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
		})
	}
}

func TestTitleFromPrompt(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		want   string
	}{
		{"short prompt unchanged", "Fix the login bug", "Fix the login bug"},
		{"newlines flattened", "Fix the\nlogin bug", "Fix the login bug"},
		{
			"long prompt gets ellipsis",
			strings.Repeat("a", 61),
			strings.Repeat("a", 60) + "...",
		},
		{
			"exactly sixty chars no ellipsis",
			strings.Repeat("b", 60),
			strings.Repeat("b", 60),
		},
		{"leading whitespace trimmed", "  padded prompt", "padded prompt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TitleFromPrompt(tt.prompt); got != tt.want {
				t.Errorf("TitleFromPrompt(%q) = %q, want %q", tt.prompt, got, tt.want)
			}
		})
	}
}

func TestTaskTitleUsesPrompt(t *testing.T) {
	task := &Task{Prompt: "Refactor the\nparser"}
	if got := task.Title(); got != "Refactor the parser" {
		t.Errorf("Title() = %q", got)
	}
}
