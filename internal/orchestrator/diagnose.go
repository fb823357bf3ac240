package orchestrator

import (
	"fmt"
	"strings"

	"github.com/drover/drover/internal/agent/stream"
	"github.com/drover/drover/internal/task/models"
)

// Diagnosis status values.
const (
	DiagnosisOK       = "ok"
	DiagnosisNeedsFix = "needs_fix"
)

const (
	maxDiagnosedErrors = 5
	maxDiagnosedErrLen = 200
	fixPromptTemplate  = "The previous task failed with these errors:\n\n%s\n\nPlease fix these issues. Check %s for any prior notes on similar problems."
)

// Diagnosis is the verdict over one finished run. When Status is
// DiagnosisNeedsFix, FixPrompt is ready to enqueue as a follow-up task.
type Diagnosis struct {
	Status       string
	ErrorSummary string
	FixPrompt    string
}

// Diagnose inspects a run result and decides whether the task needs a
// follow-up fix. Pure: it never touches the store.
//
// Any is_error event in the stream makes the run needs_fix, even when the
// run's final result record claimed success. The summary keeps the first
// five error contents, each capped at 200 characters.
func Diagnose(result *stream.RunResult, progressFile string) Diagnosis {
	var errs []string
	for _, event := range result.Events {
		if event.IsError {
			errs = append(errs, event.Content)
		}
	}
	if len(errs) == 0 {
		return Diagnosis{Status: DiagnosisOK}
	}

	if len(errs) > maxDiagnosedErrors {
		errs = errs[:maxDiagnosedErrors]
	}
	for i, e := range errs {
		errs[i] = models.Truncate(e, maxDiagnosedErrLen)
	}
	summary := strings.Join(errs, "\n")

	return Diagnosis{
		Status:       DiagnosisNeedsFix,
		ErrorSummary: summary,
		FixPrompt:    fmt.Sprintf(fixPromptTemplate, summary, progressFile),
	}
}
