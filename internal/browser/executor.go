package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/google/uuid"

	"github.com/tinyagi/tinyagi/internal/config"
	"github.com/tinyagi/tinyagi/internal/store"
)

// ErrNeedsApproval is returned when a payment-related step requires a
// human approval decision before it can proceed (spec §4.I).
var ErrNeedsApproval = errors.New("browser: step needs approval")

// ErrNeedsInput is returned when a human checkpoint blocks progress.
var ErrNeedsInput = errors.New("browser: human checkpoint detected")

const (
	maxRetries  = 3
	baseBackoff = 350 * time.Millisecond
)

// Executor implements harness.BrowserExecutor.
type Executor struct {
	repo      store.Repository
	cfg       config.BrowserConfig
	auditRoot string
}

// New builds an Executor.
func New(repo store.Repository, cfg config.BrowserConfig, auditRoot string) *Executor {
	return &Executor{repo: repo, cfg: cfg, auditRoot: auditRoot}
}

// Execute plans then runs a browser task, implementing spec §4.I's
// full planning/provider-selection/execution-loop contract.
func (e *Executor) Execute(ctx context.Context, runID, userID, objective, candidateOutput string) (string, error) {
	steps := Parse(objective, candidateOutput)
	if len(steps) == 0 {
		return "", fmt.Errorf("browser: no actionable steps parsed from objective")
	}

	sess, err := Connect(ctx, e.cfg)
	if err != nil {
		return "", fmt.Errorf("browser: connect: %w", err)
	}
	defer sess.Close()

	sessionID := uuid.NewString()
	if err := e.repo.CreateBrowserSession(ctx, &store.BrowserSession{
		SessionID: sessionID, RunID: runID, ProfilePath: sess.ProfilePath, DebuggerURL: sess.DebuggerURL,
		Status: "active", CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}); err != nil {
		return "", err
	}

	tabID := uuid.NewString()
	if err := e.repo.UpsertBrowserTab(ctx, &store.BrowserTab{
		TabID: tabID, RunID: runID, SessionID: sessionID, Status: "active", CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}); err != nil {
		return "", err
	}

	page := sess.Browser.MustPage("")

	var artifacts []string
	var extracted []string

	for i, step := range steps {
		actionID := uuid.NewString()
		if err := e.repo.CreateBrowserAction(ctx, &store.BrowserAction{
			ActionID: actionID, SessionID: sessionID, RunID: runID, Seq: i, Kind: string(step.Kind),
			Selector: step.Selector, Value: step.Value, Risk: store.RiskLow, Status: "pending", CreatedAt: time.Now(),
		}); err != nil {
			return "", err
		}

		if IsPaymentRelated(step) && e.cfg.HardStopPayments {
			requestID := uuid.NewString()
			_ = e.repo.UpdateBrowserAction(ctx, &store.BrowserAction{ActionID: actionID, Status: "needs_approval"})
			_ = e.repo.CreateBrowserApproval(ctx, &store.BrowserApproval{
				ApprovalID: uuid.NewString(), ActionID: actionID, RequestID: requestID, CreatedAt: time.Now(),
			})
			e.audit(ctx, actionID, "approval_required", "")
			_ = e.repo.UpsertBrowserTab(ctx, &store.BrowserTab{TabID: tabID, RunID: runID, SessionID: sessionID, Status: "released", UpdatedAt: time.Now()})
			return "", fmt.Errorf("%w: payment-related step requires approval (request %s)", ErrNeedsApproval, requestID)
		}

		artifact, checkpoint, err := e.runStepWithRetry(ctx, page, actionID, runID, tabID, step)
		if checkpoint {
			_ = e.repo.UpdateBrowserAction(ctx, &store.BrowserAction{ActionID: actionID, Status: "failed"})
			_ = e.repo.UpsertBrowserTab(ctx, &store.BrowserTab{TabID: tabID, RunID: runID, SessionID: sessionID, Status: "error", UpdatedAt: time.Now()})
			return "", fmt.Errorf("%w: sign in or complete verification, then ask me to continue", ErrNeedsInput)
		}
		if err != nil {
			_ = e.repo.UpdateBrowserAction(ctx, &store.BrowserAction{ActionID: actionID, Status: "failed"})
			_ = e.repo.UpsertBrowserTab(ctx, &store.BrowserTab{TabID: tabID, RunID: runID, SessionID: sessionID, Status: "error", UpdatedAt: time.Now()})
			return "", fmt.Errorf("browser: step %d (%s): %w", i, step.Kind, err)
		}

		_ = e.repo.UpdateBrowserAction(ctx, &store.BrowserAction{ActionID: actionID, Status: "completed"})
		if artifact != "" && len(artifacts) < 6 {
			artifacts = append(artifacts, artifact)
		}
		if step.Kind == StepExtractText && len(extracted) < 5 {
			if text, err := extractText(page, step.Selector); err == nil {
				extracted = append(extracted, text)
			}
		}
	}

	_ = e.repo.UpsertBrowserTab(ctx, &store.BrowserTab{TabID: tabID, RunID: runID, SessionID: sessionID, Status: "released", UpdatedAt: time.Now()})
	_ = e.repo.UpdateBrowserSession(ctx, &store.BrowserSession{SessionID: sessionID, Status: "closed", UpdatedAt: time.Now()})

	summary := fmt.Sprintf("completed %d browser step(s).", len(steps))
	if len(extracted) > 0 {
		summary += "\n" + strings.Join(extracted, "\n")
	}
	if len(artifacts) > 0 {
		summary += "\nartifacts: " + strings.Join(artifacts, ", ")
	}
	return summary, nil
}

// runStepWithRetry executes one step with screenshot-before/execute/
// screenshot-after/re-read-page/detect-checkpoint, retrying up to
// maxRetries times with exponential backoff (spec §4.I "Execution loop").
func (e *Executor) runStepWithRetry(ctx context.Context, page *rod.Page, actionID, runID, tabID string, step Step) (artifact string, checkpoint bool, err error) {
	for attempt := 1; attempt <= maxRetries; attempt++ {
		before := e.screenshotPage(page, runID, tabID, actionID, "before")

		stepErr := executeStep(page, step)

		after := e.screenshotPage(page, runID, tabID, actionID, "after")
		trace, _ := json.Marshal(step)
		e.auditWithScreens(ctx, actionID, before, after, string(trace))

		url := page.MustInfo().URL
		pageText := readPageText(page)
		if DetectCheckpoint(url, pageText) {
			return after, true, nil
		}

		if stepErr == nil {
			return after, false, nil
		}

		if attempt == maxRetries {
			return after, false, stepErr
		}
		select {
		case <-ctx.Done():
			return after, false, ctx.Err()
		case <-time.After(baseBackoff * time.Duration(1<<(attempt-1))):
		}
	}
	return "", false, fmt.Errorf("unreachable")
}

func executeStep(page *rod.Page, step Step) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic executing %s: %v", step.Kind, r)
		}
	}()

	switch step.Kind {
	case StepNavigate:
		page.MustNavigate(step.URL).MustWaitLoad()
	case StepClick:
		page.MustElement(step.Selector).MustClick()
	case StepType:
		page.MustElement(step.Selector).MustInput(step.Value)
	case StepFill:
		el := page.MustElement(step.Selector)
		el.MustSelectAllText()
		el.MustInput(step.Value)
	case StepWaitFor:
		page.MustElement(step.Selector)
	case StepPress:
		page.Keyboard.MustType([]rune(step.Key)...)
	case StepScreenshot:
		// handled by the before/after screenshot capture around every step
	case StepExtractText:
		page.MustElement(step.Selector)
	default:
		return fmt.Errorf("unknown step kind %q", step.Kind)
	}
	return nil
}

func extractText(page *rod.Page, selector string) (string, error) {
	el, err := page.Element(selector)
	if err != nil {
		return "", err
	}
	return el.Text()
}

func readPageText(page *rod.Page) string {
	text, err := page.MustElement("body").Text()
	if err != nil {
		return ""
	}
	return text
}

func (e *Executor) screenshotPage(page *rod.Page, runID, tabID, actionID, phase string) string {
	dir := filepath.Join(e.auditRoot, runID, tabID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ""
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.png", actionID, phase))

	data, err := page.Screenshot(false, nil)
	if err != nil {
		return ""
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return ""
	}
	return path
}

func (e *Executor) audit(ctx context.Context, actionID, kind, note string) {
	_ = e.repo.CreateBrowserAudit(ctx, &store.BrowserAudit{
		AuditID: uuid.NewString(), ActionID: actionID, SelectorTraceJSON: kind + ":" + note, CreatedAt: time.Now(),
	})
}

func (e *Executor) auditWithScreens(ctx context.Context, actionID, before, after, trace string) {
	_ = e.repo.CreateBrowserAudit(ctx, &store.BrowserAudit{
		AuditID: uuid.NewString(), ActionID: actionID, BeforeScreenshot: before, AfterScreenshot: after,
		SelectorTraceJSON: trace, CreatedAt: time.Now(),
	})
}
