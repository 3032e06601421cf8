package pg

import (
	"context"
	"fmt"

	"github.com/tinyagi/tinyagi/internal/store"
)

// UpsertMemory upserts by the natural key (user_id, category, key)
// (spec §3: "(user, category, key) is unique; newer ingest with higher
// confidence wins"), the same ON CONFLICT ... DO UPDATE idiom the
// teacher uses for session rows.
func (r *Repository) UpsertMemory(ctx context.Context, rec *store.MemoryRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO memory_records (record_id, user_id, category, key, value, confidence, source_run_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (user_id, category, key) DO UPDATE SET
			value = CASE WHEN EXCLUDED.confidence >= memory_records.confidence THEN EXCLUDED.value ELSE memory_records.value END,
			confidence = GREATEST(memory_records.confidence, EXCLUDED.confidence),
			source_run_id = EXCLUDED.source_run_id,
			updated_at = EXCLUDED.updated_at`,
		rec.RecordID, rec.UserID, rec.Category, rec.Key, rec.Value, rec.Confidence, nilStr(rec.SourceRunID), rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert memory %s/%s/%s: %w", rec.UserID, rec.Category, rec.Key, err)
	}
	return nil
}

// ListMemory returns every memory record for a user, used by the
// retrieval scorer (spec §4.J).
func (r *Repository) ListMemory(ctx context.Context, userID string) ([]*store.MemoryRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT record_id, user_id, category, key, value, confidence, source_run_id, created_at, updated_at
		FROM memory_records WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("list memory for %s: %w", userID, err)
	}
	defer rows.Close()

	var out []*store.MemoryRecord
	for rows.Next() {
		var rec store.MemoryRecord
		var sourceRunID string
		if err := rows.Scan(&rec.RecordID, &rec.UserID, &rec.Category, &rec.Key, &rec.Value, &rec.Confidence, &sourceRunID, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.SourceRunID = sourceRunID
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// ForgetMemory deletes every record for userID whose key or value
// contains topic (case-insensitive), for `memory forget <userId>
// <topic>` (spec §6).
func (r *Repository) ForgetMemory(ctx context.Context, userID, topic string) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM memory_records
		WHERE user_id = $1 AND (key ILIKE '%' || $2 || '%' OR value ILIKE '%' || $2 || '%')`,
		userID, topic,
	)
	if err != nil {
		return 0, fmt.Errorf("forget memory %s/%s: %w", userID, topic, err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}
