package pg

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tinyagi/tinyagi/internal/store"
)

// AppendEvent inserts an unconditional append-only TaskEvent row (spec
// §4.A: "inserts for event tables are unconditional").
func (r *Repository) AppendEvent(ctx context.Context, ev *store.TaskEvent) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO task_events (event_id, run_id, kind, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		ev.EventID, ev.RunID, ev.Kind, payload, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append event %s: %w", ev.Kind, err)
	}
	return nil
}

// AppendStep inserts an unconditional append-only TaskStep row.
func (r *Repository) AppendStep(ctx context.Context, step *store.TaskStep) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO task_steps (step_id, run_id, iteration, kind, content, outcome, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		step.StepID, step.RunID, step.Iteration, step.Kind, step.Content, nilStr(string(step.Outcome)), step.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append step %s iter %d: %w", step.Kind, step.Iteration, err)
	}
	return nil
}

// ListEvents returns every event for a run, oldest first.
func (r *Repository) ListEvents(ctx context.Context, runID string) ([]*store.TaskEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT event_id, run_id, kind, payload, created_at
		FROM task_events WHERE run_id = $1 ORDER BY created_at ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("list events for %s: %w", runID, err)
	}
	defer rows.Close()

	var out []*store.TaskEvent
	for rows.Next() {
		var ev store.TaskEvent
		var payload []byte
		if err := rows.Scan(&ev.EventID, &ev.RunID, &ev.Kind, &payload, &ev.CreatedAt); err != nil {
			return nil, err
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &ev.Payload); err != nil {
				return nil, fmt.Errorf("unmarshal event payload: %w", err)
			}
		}
		out = append(out, &ev)
	}
	return out, rows.Err()
}

// ListSteps returns every loop step for a run, oldest first.
func (r *Repository) ListSteps(ctx context.Context, runID string) ([]*store.TaskStep, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT step_id, run_id, iteration, kind, content, outcome, created_at
		FROM task_steps WHERE run_id = $1 ORDER BY created_at ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("list steps for %s: %w", runID, err)
	}
	defer rows.Close()

	var out []*store.TaskStep
	for rows.Next() {
		var step store.TaskStep
		var outcome string
		if err := rows.Scan(&step.StepID, &step.RunID, &step.Iteration, &step.Kind, &step.Content, &outcome, &step.CreatedAt); err != nil {
			return nil, err
		}
		step.Outcome = store.VerifierOutcome(outcome)
		out = append(out, &step)
	}
	return out, rows.Err()
}
