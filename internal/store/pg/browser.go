package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tinyagi/tinyagi/internal/store"
)

// CreateBrowserSession inserts a new session row.
func (r *Repository) CreateBrowserSession(ctx context.Context, s *store.BrowserSession) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO browser_sessions (session_id, run_id, profile_path, debugger_url, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (session_id) DO NOTHING`,
		s.SessionID, s.RunID, s.ProfilePath, s.DebuggerURL, s.Status, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create browser session %s: %w", s.SessionID, err)
	}
	return nil
}

// UpdateBrowserSession updates status/debugger-url on an existing row.
func (r *Repository) UpdateBrowserSession(ctx context.Context, s *store.BrowserSession) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE browser_sessions SET status = $1, debugger_url = $2, updated_at = $3 WHERE session_id = $4`,
		s.Status, s.DebuggerURL, s.UpdatedAt, s.SessionID,
	)
	if err != nil {
		return fmt.Errorf("update browser session %s: %w", s.SessionID, err)
	}
	return nil
}

// CreateBrowserAction inserts one planned step row (spec §4.I: "mark an
// action row" before executing each step).
func (r *Repository) CreateBrowserAction(ctx context.Context, a *store.BrowserAction) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO browser_actions (action_id, session_id, run_id, seq, kind, selector, value, risk, requires_approval, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (action_id) DO NOTHING`,
		a.ActionID, a.SessionID, a.RunID, a.Seq, a.Kind, a.Selector, a.Value, a.Risk, a.RequiresApproval, a.Status, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create browser action %s: %w", a.ActionID, err)
	}
	return nil
}

// UpdateBrowserAction updates an action's status after execution.
func (r *Repository) UpdateBrowserAction(ctx context.Context, a *store.BrowserAction) error {
	_, err := r.db.ExecContext(ctx, `UPDATE browser_actions SET status = $1 WHERE action_id = $2`, a.Status, a.ActionID)
	if err != nil {
		return fmt.Errorf("update browser action %s: %w", a.ActionID, err)
	}
	return nil
}

// CreateBrowserApproval inserts a pending approval request row (spec
// §4.I: payment-related steps "create an approval request").
func (r *Repository) CreateBrowserApproval(ctx context.Context, a *store.BrowserApproval) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO browser_approvals (approval_id, action_id, request_id, decision, created_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (approval_id) DO NOTHING`,
		a.ApprovalID, a.ActionID, a.RequestID, a.Decision, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create browser approval %s: %w", a.RequestID, err)
	}
	return nil
}

// DecideBrowserApproval resolves a pending browser approval request.
func (r *Repository) DecideBrowserApproval(ctx context.Context, requestID string, approve bool) error {
	decision := "denied"
	if approve {
		decision = "approved"
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE browser_approvals SET decision = $1, decided_at = now() WHERE request_id = $2`,
		decision, requestID,
	)
	if err != nil {
		return fmt.Errorf("decide browser approval %s: %w", requestID, err)
	}
	return nil
}

// CreateBrowserAudit inserts a before/after evidence row (spec §3:
// "every browser action has at least one audit row").
func (r *Repository) CreateBrowserAudit(ctx context.Context, a *store.BrowserAudit) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO browser_audits (audit_id, action_id, before_screenshot, after_screenshot, selector_trace_json, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (audit_id) DO NOTHING`,
		a.AuditID, a.ActionID, a.BeforeScreenshot, a.AfterScreenshot, a.SelectorTraceJSON, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create browser audit for action %s: %w", a.ActionID, err)
	}
	return nil
}

// UpsertBrowserTab records tab ownership per run (spec §3: "tab status
// transitions active → (error | released)").
func (r *Repository) UpsertBrowserTab(ctx context.Context, t *store.BrowserTab) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO browser_tabs (tab_id, run_id, session_id, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (tab_id) DO UPDATE SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at`,
		t.TabID, t.RunID, t.SessionID, t.Status, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert browser tab %s: %w", t.TabID, err)
	}
	return nil
}

// GetLatestTabForRun returns the most recently updated tab for a run,
// used by replayBrowserRun (spec §4.I).
func (r *Repository) GetLatestTabForRun(ctx context.Context, runID string) (*store.BrowserTab, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT tab_id, run_id, session_id, status, created_at, updated_at
		FROM browser_tabs WHERE run_id = $1 ORDER BY updated_at DESC LIMIT 1`, runID)

	var t store.BrowserTab
	err := row.Scan(&t.TabID, &t.RunID, &t.SessionID, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest tab for run %s: %w", runID, err)
	}
	return &t, nil
}

// ListBrowserSessions returns every session row, newest first, for
// `browser sessions` (spec §6).
func (r *Repository) ListBrowserSessions(ctx context.Context) ([]*store.BrowserSession, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT session_id, run_id, profile_path, debugger_url, status, created_at, updated_at
		FROM browser_sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list browser sessions: %w", err)
	}
	defer rows.Close()

	var out []*store.BrowserSession
	for rows.Next() {
		var s store.BrowserSession
		if err := rows.Scan(&s.SessionID, &s.RunID, &s.ProfilePath, &s.DebuggerURL, &s.Status, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

// ListBrowserTabs returns every tab row for a run (or every tab if
// runID is empty), newest first, for `browser tabs [runId]` (spec §6).
func (r *Repository) ListBrowserTabs(ctx context.Context, runID string) ([]*store.BrowserTab, error) {
	query := `SELECT tab_id, run_id, session_id, status, created_at, updated_at FROM browser_tabs`
	args := []any{}
	if runID != "" {
		query += ` WHERE run_id = $1`
		args = append(args, runID)
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list browser tabs: %w", err)
	}
	defer rows.Close()

	var out []*store.BrowserTab
	for rows.Next() {
		var t store.BrowserTab
		if err := rows.Scan(&t.TabID, &t.RunID, &t.SessionID, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

// ListBrowserApprovals returns pending/decided browser approval
// requests, optionally filtered to runs owned by userID (joined through
// browser_actions.run_id = task_runs.run_id), for `browser approvals
// [userId]` (spec §6).
func (r *Repository) ListBrowserApprovals(ctx context.Context, userID string) ([]*store.BrowserApproval, error) {
	query := `
		SELECT ap.approval_id, ap.action_id, ap.request_id, ap.decision, ap.created_at, ap.decided_at
		FROM browser_approvals ap`
	args := []any{}
	if userID != "" {
		query += `
			JOIN browser_actions act ON act.action_id = ap.action_id
			JOIN task_runs r ON r.run_id = act.run_id
			WHERE r.sender_id = $1`
		args = append(args, userID)
	}
	query += ` ORDER BY ap.created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list browser approvals: %w", err)
	}
	defer rows.Close()

	var out []*store.BrowserApproval
	for rows.Next() {
		var a store.BrowserApproval
		var decidedAt sql.NullTime
		if err := rows.Scan(&a.ApprovalID, &a.ActionID, &a.RequestID, &a.Decision, &a.CreatedAt, &decidedAt); err != nil {
			return nil, err
		}
		if decidedAt.Valid {
			t := decidedAt.Time
			a.DecidedAt = &t
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// ListAuditsForTab returns every audit row for a tab's actions, ordered
// by creation time, used to reconstruct a selector trace for replay.
func (r *Repository) ListAuditsForTab(ctx context.Context, tabID string) ([]*store.BrowserAudit, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.audit_id, a.action_id, a.before_screenshot, a.after_screenshot, a.selector_trace_json, a.created_at
		FROM browser_audits a
		JOIN browser_actions act ON act.action_id = a.action_id
		JOIN browser_tabs t ON t.session_id = act.session_id
		WHERE t.tab_id = $1
		ORDER BY a.created_at ASC`, tabID)
	if err != nil {
		return nil, fmt.Errorf("list audits for tab %s: %w", tabID, err)
	}
	defer rows.Close()

	var out []*store.BrowserAudit
	for rows.Next() {
		var a store.BrowserAudit
		if err := rows.Scan(&a.AuditID, &a.ActionID, &a.BeforeScreenshot, &a.AfterScreenshot, &a.SelectorTraceJSON, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}
