package orchestrator

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/drover/drover/internal/agent/stream"
	"github.com/drover/drover/internal/task/models"
)

// The progress file is a shared journal inside the target repo. Agents are
// asked to write their own entries (InjectProgressPrompt); the worker appends
// a fallback entry after settling in case the agent didn't (AppendProgress).

const progressFileHeader = "# PROGRESS\n\nAuto-generated task log.\n"

const progressPromptSuffix = `

After completing this task, append a short entry to %s with this format:

## [%s] %s
- What was done
- Issues encountered (if any)
- Lessons learned (if any)

Keep it brief and factual — 3-5 bullet points max.
`

const (
	maxProgressErrors = 3
	maxProgressErrLen = 100
)

// InjectProgressPrompt appends the progress-journal instructions to a task
// prompt, templated with today's date and the task's short title.
func InjectProgressPrompt(prompt, progressFile string) string {
	return prompt + fmt.Sprintf(progressPromptSuffix,
		progressFile,
		time.Now().Format("2006-01-02"),
		models.TitleFromPrompt(prompt),
	)
}

// AppendProgress appends a fallback journal entry for a settled task,
// creating the file with a header on first use. status is the terminal
// status the task was settled with; result may be nil when the run never
// produced a stream.
func AppendProgress(path string, task *models.Task, status models.TaskStatus, result *stream.RunResult) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, []byte(progressFileHeader), 0o644); err != nil {
			return fmt.Errorf("failed to create progress file: %w", err)
		}
	}

	var entry strings.Builder
	fmt.Fprintf(&entry, "\n## [%s] %s\n", time.Now().Format("2006-01-02"), task.Title())
	fmt.Fprintf(&entry, "- Status: %s\n", status)
	if result != nil {
		if result.CostUSD > 0 {
			fmt.Fprintf(&entry, "- Cost: $%.4f\n", result.CostUSD)
		}
		if len(result.Errors) > 0 {
			fmt.Fprintf(&entry, "- Errors: %d\n", len(result.Errors))
			errs := result.Errors
			if len(errs) > maxProgressErrors {
				errs = errs[:maxProgressErrors]
			}
			for _, e := range errs {
				fmt.Fprintf(&entry, "  - %s\n", models.Truncate(e, maxProgressErrLen))
			}
		}
	}
	entry.WriteString("\n")

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open progress file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(entry.String()); err != nil {
		return fmt.Errorf("failed to append progress entry: %w", err)
	}
	return nil
}
