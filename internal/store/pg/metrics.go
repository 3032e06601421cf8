package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/tinyagi/tinyagi/internal/store"
)

// IncrMetric bumps a named counter and appends a metric-event row (spec
// §3: "name → numeric value, plus append-only metric-event rows").
func (r *Repository) IncrMetric(ctx context.Context, name string, delta float64, metadata map[string]any) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin metric tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO metrics (name, value) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET value = metrics.value + EXCLUDED.value`,
		name, delta,
	)
	if err != nil {
		return fmt.Errorf("incr metric %s: %w", name, err)
	}

	payload, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal metric metadata: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO metric_events (event_id, name, delta, metadata, created_at)
		VALUES ($1, $2, $3, $4, now())`,
		uuid.NewString(), name, delta, payload,
	)
	if err != nil {
		return fmt.Errorf("append metric event %s: %w", name, err)
	}

	return tx.Commit()
}

// ListMetrics returns every named counter's current value for the
// `metrics` CLI surface (spec §6).
func (r *Repository) ListMetrics(ctx context.Context) (map[string]float64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name, value FROM metrics`)
	if err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}
	defer rows.Close()

	out := map[string]float64{}
	for rows.Next() {
		var name string
		var value float64
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		out[name] = value
	}
	return out, rows.Err()
}

// GetMetric returns the current value of a named counter, 0 if unset.
func (r *Repository) GetMetric(ctx context.Context, name string) (float64, error) {
	row := r.db.QueryRowContext(ctx, `SELECT value FROM metrics WHERE name = $1`, name)
	var v float64
	err := row.Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get metric %s: %w", name, err)
	}
	return v, nil
}
