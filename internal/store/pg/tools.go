package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tinyagi/tinyagi/internal/store"
)

// GetOrRegisterTool looks up a ToolRegistry row by its name slug, or
// inserts a new `pending` row if this is the first time the tooling
// executor has seen this binary (spec §4.H step 3).
func (r *Repository) GetOrRegisterTool(ctx context.Context, name, source string, trust store.ToolTrustClass) (*store.ToolRegistry, error) {
	toolID := slug(name)

	row := r.db.QueryRowContext(ctx, `
		SELECT tool_id, name, source, trust_class, status, metadata, created_at, updated_at
		FROM tool_registry WHERE tool_id = $1`, toolID)
	tool, err := scanTool(row)
	if err == nil {
		return tool, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lookup tool %s: %w", name, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO tool_registry (tool_id, name, source, trust_class, status, metadata, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,'{}'::jsonb, now(), now())
		ON CONFLICT (tool_id) DO NOTHING`,
		toolID, name, source, trust, store.ToolPending,
	)
	if err != nil {
		return nil, fmt.Errorf("register tool %s: %w", name, err)
	}

	row = r.db.QueryRowContext(ctx, `
		SELECT tool_id, name, source, trust_class, status, metadata, created_at, updated_at
		FROM tool_registry WHERE tool_id = $1`, toolID)
	return scanTool(row)
}

// ListTools returns every registered tool row, newest first, for
// `tools list` (spec §6).
func (r *Repository) ListTools(ctx context.Context) ([]*store.ToolRegistry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT tool_id, name, source, trust_class, status, metadata, created_at, updated_at
		FROM tool_registry ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	defer rows.Close()

	var out []*store.ToolRegistry
	for rows.Next() {
		var t store.ToolRegistry
		var metadata []byte
		if err := rows.Scan(&t.ToolID, &t.Name, &t.Source, &t.TrustClass, &t.Status, &metadata, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

// SetToolStatus updates a tool's approval status for `tools
// approve`/`tools block` (spec §6).
func (r *Repository) SetToolStatus(ctx context.Context, toolID string, status store.ToolStatus) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE tool_registry SET status = $1, updated_at = now() WHERE tool_id = $2`,
		status, toolID,
	)
	if err != nil {
		return fmt.Errorf("set tool status %s: %w", toolID, err)
	}
	return nil
}

func scanTool(row *sql.Row) (*store.ToolRegistry, error) {
	var t store.ToolRegistry
	var metadata []byte
	if err := row.Scan(&t.ToolID, &t.Name, &t.Source, &t.TrustClass, &t.Status, &metadata, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	_ = metadata
	return &t, nil
}

func slug(name string) string {
	out := make([]rune, 0, len(name))
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			out = append(out, c)
		case c >= 'A' && c <= 'Z':
			out = append(out, c-'A'+'a')
		case c == '-' || c == '_' || c == '/':
			out = append(out, '-')
		}
	}
	return string(out)
}
