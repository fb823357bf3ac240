package stream

import "strings"

// RunResult aggregates one full agent run.
type RunResult struct {
	// Text is the newline-joined assistant output.
	Text      string
	CostUSD   float64
	TokensIn  int64
	TokensOut int64
	// Errors holds the contents of all error events, in stream order.
	Errors []string
	// Events is the full event list, retained for downstream inspection.
	Events []*Event
}

// Collect folds an event sequence into a RunResult. Metrics come from the
// most recent result event; result events missing a metric leave the prior
// value in place rather than overwriting it with zero. A stream with no
// result event yields zero metrics.
func Collect(events []*Event) *RunResult {
	var texts []string
	var errs []string
	var cost float64
	var tokensIn, tokensOut int64

	for _, e := range events {
		if e.Type == EventTypeAssistant && e.Content != "" {
			texts = append(texts, e.Content)
		}
		if e.IsError && e.Content != "" {
			errs = append(errs, e.Content)
		}
		if e.Type == EventTypeResult {
			if e.CostUSD != 0 {
				cost = e.CostUSD
			}
			if e.TokensIn != 0 {
				tokensIn = e.TokensIn
			}
			if e.TokensOut != 0 {
				tokensOut = e.TokensOut
			}
		}
	}

	return &RunResult{
		Text:      strings.Join(texts, "\n"),
		CostUSD:   cost,
		TokensIn:  tokensIn,
		TokensOut: tokensOut,
		Errors:    errs,
		Events:    events,
	}
}
