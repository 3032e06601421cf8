package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tinyagi/tinyagi/internal/store"
)

// GetActivePermission looks up an active Permission row for (user,
// subject, action) — spec §4.H step 4's permission check.
func (r *Repository) GetActivePermission(ctx context.Context, userID, subject, action string) (*store.Permission, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT permission_id, user_id, subject, action, resource, status, request_id, created_at, updated_at
		FROM permissions WHERE user_id = $1 AND subject = $2 AND action = $3 AND status = $4`,
		userID, subject, action, store.PermissionActive,
	)
	var p store.Permission
	var requestID sql.NullString
	err := row.Scan(&p.PermissionID, &p.UserID, &p.Subject, &p.Action, &p.Resource, &p.Status, &requestID, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active permission %s/%s/%s: %w", userID, subject, action, err)
	}
	p.RequestID = requestID.String
	return &p, nil
}

// CreatePendingPermission inserts a new pending-approval permission row
// (spec §4.H step 4: "create a pending permission with fresh requestId").
func (r *Repository) CreatePendingPermission(ctx context.Context, p *store.Permission) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO permissions (permission_id, user_id, subject, action, resource, status, request_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (permission_id) DO NOTHING`,
		p.PermissionID, p.UserID, p.Subject, p.Action, p.Resource, store.PermissionPending, p.RequestID, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create pending permission %s: %w", p.RequestID, err)
	}
	return nil
}

// DecidePermission resolves a pending permission request to active or
// revoked.
func (r *Repository) DecidePermission(ctx context.Context, requestID string, approve bool) error {
	status := store.PermissionRevoked
	if approve {
		status = store.PermissionActive
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE permissions SET status = $1, updated_at = now() WHERE request_id = $2`,
		status, requestID,
	)
	if err != nil {
		return fmt.Errorf("decide permission %s: %w", requestID, err)
	}
	return nil
}

// ListPermissions returns every permission row, optionally filtered to
// one userID, newest first (spec §6: `permission list [userId]`).
func (r *Repository) ListPermissions(ctx context.Context, userID string) ([]*store.Permission, error) {
	query := `SELECT permission_id, user_id, subject, action, resource, status, request_id, created_at, updated_at
		FROM permissions`
	args := []any{}
	if userID != "" {
		query += ` WHERE user_id = $1`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	defer rows.Close()

	var out []*store.Permission
	for rows.Next() {
		var p store.Permission
		var requestID sql.NullString
		if err := rows.Scan(&p.PermissionID, &p.UserID, &p.Subject, &p.Action, &p.Resource, &p.Status, &requestID, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.RequestID = requestID.String
		out = append(out, &p)
	}
	return out, rows.Err()
}

// GrantPermission upserts an active permission row keyed by (user_id,
// subject, action) for `permission grant <userId> <subject> <action>
// [resource]` (spec §6).
func (r *Repository) GrantPermission(ctx context.Context, p *store.Permission) error {
	row := r.db.QueryRowContext(ctx, `
		SELECT permission_id FROM permissions WHERE user_id = $1 AND subject = $2 AND action = $3`,
		p.UserID, p.Subject, p.Action,
	)
	var existingID string
	err := row.Scan(&existingID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = r.db.ExecContext(ctx, `
			INSERT INTO permissions (permission_id, user_id, subject, action, resource, status, request_id, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,NULL,$7,$8)`,
			p.PermissionID, p.UserID, p.Subject, p.Action, p.Resource, store.PermissionActive, p.CreatedAt, p.UpdatedAt,
		)
	case err == nil:
		_, err = r.db.ExecContext(ctx, `
			UPDATE permissions SET status = $1, resource = $2, updated_at = $3 WHERE permission_id = $4`,
			store.PermissionActive, p.Resource, p.UpdatedAt, existingID,
		)
	}
	if err != nil {
		return fmt.Errorf("grant permission %s/%s/%s: %w", p.UserID, p.Subject, p.Action, err)
	}
	return nil
}

// RevokePermission marks a permission row revoked by its id (spec §6:
// `permission revoke <permissionId>`).
func (r *Repository) RevokePermission(ctx context.Context, permissionID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE permissions SET status = $1, updated_at = now() WHERE permission_id = $2`,
		store.PermissionRevoked, permissionID,
	)
	if err != nil {
		return fmt.Errorf("revoke permission %s: %w", permissionID, err)
	}
	return nil
}
