package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// traceEntry is the selector-trace shape stored as BrowserAudit.SelectorTraceJSON
// for a normal executed step (distinct from the bare "kind:note" strings
// written for approval/checkpoint audit rows).
type traceEntry struct {
	Kind     StepKind `json:"Kind"`
	URL      string   `json:"URL,omitempty"`
	Selector string   `json:"Selector,omitempty"`
	Value    string   `json:"Value,omitempty"`
	Key      string   `json:"Key,omitempty"`
}

// Replay reads the most recent tab's selector trace for runID,
// constructs a plan from every audit row whose trace parses as a step
// (the first row per action ID), prepends a navigate to the base URL,
// and executes it under a new replay runID (spec §4.I "Replay"). The
// action's final status is not consulted, so steps whose attempts
// failed are replayed too; only the "kind:note" approval/checkpoint
// rows are skipped.
func (e *Executor) Replay(ctx context.Context, runID, userID string) (string, error) {
	tab, err := e.repo.GetLatestTabForRun(ctx, runID)
	if err != nil {
		return "", fmt.Errorf("browser: replay: find tab: %w", err)
	}
	if tab == nil {
		return "", fmt.Errorf("browser: replay: no prior tab for run %s", runID)
	}

	audits, err := e.repo.ListAuditsForTab(ctx, tab.TabID)
	if err != nil {
		return "", fmt.Errorf("browser: replay: list audits: %w", err)
	}

	seen := map[string]bool{}
	var steps []Step
	var baseURL string
	for _, a := range audits {
		var entry traceEntry
		if err := json.Unmarshal([]byte(a.SelectorTraceJSON), &entry); err != nil {
			continue // ill-formed trace entry, drop (spec §4.I "drop ill-formed")
		}
		if entry.Kind == "" {
			continue
		}
		if seen[a.ActionID] {
			continue
		}
		seen[a.ActionID] = true

		if entry.Kind == StepNavigate && baseURL == "" {
			baseURL = entry.URL
		}
		steps = append(steps, Step{Kind: entry.Kind, URL: entry.URL, Selector: entry.Selector, Value: entry.Value, Key: entry.Key})
	}

	if baseURL == "" {
		return "", fmt.Errorf("browser: replay: no navigate step found in trace for run %s", runID)
	}

	replayRunID := fmt.Sprintf("replay-%s-%d", runID, time.Now().UnixMilli())
	plan := append([]Step{{Kind: StepNavigate, URL: baseURL}}, steps...)

	return e.executePlan(ctx, replayRunID, userID, plan)
}

// executePlan runs a pre-built plan (used by Replay) through the same
// connect/execute/audit pipeline Execute uses for a freshly parsed plan.
func (e *Executor) executePlan(ctx context.Context, runID, userID string, plan []Step) (string, error) {
	return e.Execute(ctx, runID, userID, "replay", planToObjectiveText(plan))
}

func planToObjectiveText(plan []Step) string {
	var out string
	for _, s := range plan {
		switch s.Kind {
		case StepNavigate:
			out += fmt.Sprintf("navigate(%q)\n", s.URL)
		case StepClick:
			out += fmt.Sprintf("click(%q)\n", s.Selector)
		case StepType:
			out += fmt.Sprintf("type(%q, %q)\n", s.Value, s.Selector)
		case StepFill:
			out += fmt.Sprintf("fill(%q, %q)\n", s.Selector, s.Value)
		case StepWaitFor:
			out += fmt.Sprintf("wait_for(%q)\n", s.Selector)
		case StepPress:
			out += fmt.Sprintf("press(%q)\n", s.Key)
		case StepScreenshot:
			out += "screenshot\n"
		case StepExtractText:
			out += fmt.Sprintf("extract_text(%q)\n", s.Selector)
		}
	}
	return out
}
