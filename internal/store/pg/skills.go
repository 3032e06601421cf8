package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tinyagi/tinyagi/internal/store"
)

// UpsertSkill upserts by the skill's normalized name (spec §4.K: "Dedup
// by normalized name").
func (r *Repository) UpsertSkill(ctx context.Context, s *store.Skill) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO skills (skill_id, name, status, content_path, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (name) DO UPDATE SET
			status = EXCLUDED.status, content_path = EXCLUDED.content_path, updated_at = EXCLUDED.updated_at`,
		s.SkillID, s.Name, s.Status, s.ContentPath, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert skill %s: %w", s.Name, err)
	}
	return nil
}

// GetSkillByName looks up a skill by its normalized name.
func (r *Repository) GetSkillByName(ctx context.Context, name string) (*store.Skill, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT skill_id, name, status, content_path, created_at, updated_at
		FROM skills WHERE name = $1`, name)

	var s store.Skill
	err := row.Scan(&s.SkillID, &s.Name, &s.Status, &s.ContentPath, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get skill %s: %w", name, err)
	}
	return &s, nil
}

// GetSkillByID looks up a skill by its id.
func (r *Repository) GetSkillByID(ctx context.Context, skillID string) (*store.Skill, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT skill_id, name, status, content_path, created_at, updated_at
		FROM skills WHERE skill_id = $1`, skillID)

	var s store.Skill
	err := row.Scan(&s.SkillID, &s.Name, &s.Status, &s.ContentPath, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get skill by id %s: %w", skillID, err)
	}
	return &s, nil
}

// AddSkillVersion appends an immutable version-history row (spec §3).
func (r *Repository) AddSkillVersion(ctx context.Context, v *store.SkillVersion) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO skill_versions (skill_id, version, content_path, created_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (skill_id, version) DO NOTHING`,
		v.SkillID, v.Version, v.ContentPath, v.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("add skill version %s v%d: %w", v.SkillID, v.Version, err)
	}
	return nil
}

// ListSkillVersions returns every historical version, oldest first.
func (r *Repository) ListSkillVersions(ctx context.Context, skillID string) ([]*store.SkillVersion, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT skill_id, version, content_path, created_at
		FROM skill_versions WHERE skill_id = $1 ORDER BY version ASC`, skillID)
	if err != nil {
		return nil, fmt.Errorf("list skill versions %s: %w", skillID, err)
	}
	defer rows.Close()

	var out []*store.SkillVersion
	for rows.Next() {
		var v store.SkillVersion
		if err := rows.Scan(&v.SkillID, &v.Version, &v.ContentPath, &v.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &v)
	}
	return out, rows.Err()
}

// ListSkills returns every skill row, newest first, for `skills list`
// (spec §6).
func (r *Repository) ListSkills(ctx context.Context) ([]*store.Skill, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT skill_id, name, status, content_path, created_at, updated_at
		FROM skills ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list skills: %w", err)
	}
	defer rows.Close()

	var out []*store.Skill
	for rows.Next() {
		var s store.Skill
		if err := rows.Scan(&s.SkillID, &s.Name, &s.Status, &s.ContentPath, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

// SetSkillContentPath repoints a skill's current content at a prior
// version's path (spec §4.K: "rollback updates the current content
// path to a prior version's path").
func (r *Repository) SetSkillContentPath(ctx context.Context, skillID, contentPath string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE skills SET content_path = $1, updated_at = now() WHERE skill_id = $2`,
		contentPath, skillID,
	)
	if err != nil {
		return fmt.Errorf("set skill content path %s: %w", skillID, err)
	}
	return nil
}
