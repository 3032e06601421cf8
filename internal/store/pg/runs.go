package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tinyagi/tinyagi/internal/store"
)

// CreateRun inserts a new TaskRun row.
func (r *Repository) CreateRun(ctx context.Context, run *store.TaskRun) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO task_runs (
			run_id, task_id, channel, sender, sender_id, conversation_id, branch_key,
			objective, risk_level, status, assigned_agent, loop_iteration, max_iterations,
			verifier_outcome, result_text, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (run_id) DO NOTHING`,
		run.RunID, run.TaskID, run.Channel, run.Sender, run.SenderID, nilStr(run.ConversationID), nilStr(run.BranchKey),
		run.Objective, run.RiskLevel, run.Status, nilStr(run.AssignedAgent), run.LoopIteration, run.MaxIterations,
		nilStr(string(run.VerifierOutcome)), run.ResultText, run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create run %s: %w", run.RunID, err)
	}
	return nil
}

// UpdateRun overwrites the mutable fields of an existing TaskRun, the
// teacher's single-big-UPDATE-statement idiom from
// internal/store/pg/sessions.go Save().
func (r *Repository) UpdateRun(ctx context.Context, run *store.TaskRun) error {
	run.UpdatedAt = run.UpdatedAt.UTC()
	_, err := r.db.ExecContext(ctx, `
		UPDATE task_runs SET
			status = $1, assigned_agent = $2, loop_iteration = $3, max_iterations = $4,
			verifier_outcome = $5, result_text = $6, risk_level = $7, updated_at = $8
		WHERE run_id = $9`,
		run.Status, nilStr(run.AssignedAgent), run.LoopIteration, run.MaxIterations,
		nilStr(string(run.VerifierOutcome)), run.ResultText, run.RiskLevel, run.UpdatedAt, run.RunID,
	)
	if err != nil {
		return fmt.Errorf("update run %s: %w", run.RunID, err)
	}
	return nil
}

// GetRun loads one TaskRun by id.
func (r *Repository) GetRun(ctx context.Context, runID string) (*store.TaskRun, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT run_id, task_id, channel, sender, sender_id, conversation_id, branch_key,
			objective, risk_level, status, assigned_agent, loop_iteration, max_iterations,
			verifier_outcome, result_text, created_at, updated_at
		FROM task_runs WHERE run_id = $1`, runID)
	return scanRun(row)
}

// SupersedeNeedsInput implements spec §4.A's supersede_needs_input query.
func (r *Repository) SupersedeNeedsInput(ctx context.Context, channel, senderID string, cutoff time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		UPDATE task_runs SET status = $1, updated_at = now()
		WHERE channel = $2 AND sender_id = $3 AND status = $4 AND created_at < $5
		RETURNING run_id`,
		store.StatusRejected, channel, senderID, store.StatusNeedsInput, cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("supersede needs_input for %s/%s: %w", channel, senderID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListBlockedRunsForOutreach implements spec §4.A's
// list_blocked_runs_for_outreach(minAge) query: only the newest blocked
// run per (channel, senderID), where no newer sibling run exists.
func (r *Repository) ListBlockedRunsForOutreach(ctx context.Context, minAge time.Duration) ([]*store.TaskRun, error) {
	cutoff := time.Now().Add(-minAge)
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT ON (channel, sender_id)
			run_id, task_id, channel, sender, sender_id, conversation_id, branch_key,
			objective, risk_level, status, assigned_agent, loop_iteration, max_iterations,
			verifier_outcome, result_text, created_at, updated_at
		FROM task_runs t
		WHERE status IN ($1, $2) AND created_at < $3
			AND NOT EXISTS (
				SELECT 1 FROM task_runs n
				WHERE n.channel = t.channel AND n.sender_id = t.sender_id
					AND n.created_at > t.created_at
			)
		ORDER BY channel, sender_id, created_at DESC`,
		store.StatusNeedsInput, store.StatusAwaitingApproval, cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("list blocked runs: %w", err)
	}
	defer rows.Close()

	var runs []*store.TaskRun
	for rows.Next() {
		run, err := scanRunRows(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListRecentRuns returns the most recent runs, newest first.
func (r *Repository) ListRecentRuns(ctx context.Context, limit int) ([]*store.TaskRun, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT run_id, task_id, channel, sender, sender_id, conversation_id, branch_key,
			objective, risk_level, status, assigned_agent, loop_iteration, max_iterations,
			verifier_outcome, result_text, created_at, updated_at
		FROM task_runs ORDER BY created_at DESC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list recent runs: %w", err)
	}
	defer rows.Close()

	var runs []*store.TaskRun
	for rows.Next() {
		run, err := scanRunRows(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListActiveSenders implements spec §4.A's distinct-sender digest-targeting
// query: every (channel, senderID) pair with a run created since cutoff,
// regardless of status.
func (r *Repository) ListActiveSenders(ctx context.Context, since time.Time) ([]store.SenderKey, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT channel, sender_id FROM task_runs WHERE created_at >= $1`, since,
	)
	if err != nil {
		return nil, fmt.Errorf("list active senders: %w", err)
	}
	defer rows.Close()

	var out []store.SenderKey
	for rows.Next() {
		var k store.SenderKey
		if err := rows.Scan(&k.Channel, &k.SenderID); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*store.TaskRun, error) {
	var run store.TaskRun
	var conversationID, branchKey, assignedAgent, verifierOutcome sql.NullString
	err := row.Scan(
		&run.RunID, &run.TaskID, &run.Channel, &run.Sender, &run.SenderID, &conversationID, &branchKey,
		&run.Objective, &run.RiskLevel, &run.Status, &assignedAgent, &run.LoopIteration, &run.MaxIterations,
		&verifierOutcome, &run.ResultText, &run.CreatedAt, &run.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	run.ConversationID = conversationID.String
	run.BranchKey = branchKey.String
	run.AssignedAgent = assignedAgent.String
	run.VerifierOutcome = store.VerifierOutcome(verifierOutcome.String)
	return &run, nil
}

func scanRunRows(rows *sql.Rows) (*store.TaskRun, error) {
	return scanRun(rows)
}

// nilStr converts an empty string to SQL NULL, mirroring the teacher's
// nilStr helper in internal/store/pg/sessions.go.
func nilStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
