package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tinyagi/tinyagi/internal/store"
)

// PutPendingMessage upserts a ChannelPendingMessage row so outgoing
// delivery survives a process restart (spec §3).
func (r *Repository) PutPendingMessage(ctx context.Context, m *store.ChannelPendingMessage) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO channel_pending_messages (message_id, channel, sender, sender_id, chat_ref, reply_ref, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (message_id) DO UPDATE SET
			chat_ref = EXCLUDED.chat_ref, reply_ref = EXCLUDED.reply_ref, expires_at = EXCLUDED.expires_at`,
		m.MessageID, m.Channel, m.Sender, m.SenderID, m.ChatRef, m.ReplyRef, m.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("put pending message %s: %w", m.MessageID, err)
	}
	return nil
}

// GetPendingMessage loads a pending-message handle by id, excluding rows
// past their TTL (spec §8: "a durable pending row whose expires_at < now
// is not returned by read").
func (r *Repository) GetPendingMessage(ctx context.Context, messageID string) (*store.ChannelPendingMessage, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT message_id, channel, sender, sender_id, chat_ref, reply_ref, expires_at
		FROM channel_pending_messages WHERE message_id = $1 AND expires_at >= $2`, messageID, time.Now())

	var m store.ChannelPendingMessage
	err := row.Scan(&m.MessageID, &m.Channel, &m.Sender, &m.SenderID, &m.ChatRef, &m.ReplyRef, &m.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pending message %s: %w", messageID, err)
	}
	return &m, nil
}

// DeletePendingMessage removes a pending-message handle once delivery
// is confirmed.
func (r *Repository) DeletePendingMessage(ctx context.Context, messageID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM channel_pending_messages WHERE message_id = $1`, messageID)
	if err != nil {
		return fmt.Errorf("delete pending message %s: %w", messageID, err)
	}
	return nil
}

// PurgeExpiredPending drops every pending message past its default
// 10-minute TTL (spec §3) and returns how many rows were removed.
func (r *Repository) PurgeExpiredPending(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM channel_pending_messages WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("purge expired pending messages: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}
