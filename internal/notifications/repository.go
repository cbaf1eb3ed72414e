// Package notifications manages live alert subscriptions and the
// starting-soon notification log.
package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pulsecast/live-backend/internal/models"
)

// Repository stores subscriptions and notifications.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a notifications repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Subscribe adds a live alert subscription. Subscribing twice is a no-op.
func (r *Repository) Subscribe(ctx context.Context, broadcasterID, userID uuid.UUID) error {
	const q = `
		INSERT INTO live_alert_subscriptions (broadcaster_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (broadcaster_id, user_id) DO NOTHING`
	if _, err := r.pool.Exec(ctx, q, broadcasterID, userID); err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

// Unsubscribe removes a live alert subscription.
func (r *Repository) Unsubscribe(ctx context.Context, broadcasterID, userID uuid.UUID) error {
	const q = `
		DELETE FROM live_alert_subscriptions
		WHERE broadcaster_id = $1 AND user_id = $2`
	if _, err := r.pool.Exec(ctx, q, broadcasterID, userID); err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}

// ListSubscriberIDs returns every user subscribed to a broadcaster's alerts.
func (r *Repository) ListSubscriberIDs(ctx context.Context, broadcasterID uuid.UUID) ([]uuid.UUID, error) {
	const q = `
		SELECT user_id FROM live_alert_subscriptions
		WHERE broadcaster_id = $1`
	rows, err := r.pool.Query(ctx, q, broadcasterID)
	if err != nil {
		return nil, fmt.Errorf("query subscribers: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// BulkInsertStartingSoon records a starting-soon notification for each user.
// The unique (stream, user, type) constraint absorbs repeats, so the
// returned count only covers rows actually created.
func (r *Repository) BulkInsertStartingSoon(ctx context.Context, streamID uuid.UUID, userIDs []uuid.UUID) (int64, error) {
	const q = `
		INSERT INTO stream_notifications (stream_id, user_id, type)
		SELECT $1, uid, $3 FROM unnest($2::uuid[]) AS uid
		ON CONFLICT (stream_id, user_id, type) DO NOTHING`
	tag, err := r.pool.Exec(ctx, q, streamID, userIDs, models.NotificationStartingSoon)
	if err != nil {
		return 0, fmt.Errorf("insert notifications: %w", err)
	}
	return tag.RowsAffected(), nil
}

// MarkSentByStream stamps sent_at on every unsent notification of a stream
// and returns how many were stamped.
func (r *Repository) MarkSentByStream(ctx context.Context, streamID uuid.UUID) (int64, error) {
	const q = `
		UPDATE stream_notifications
		SET sent_at = NOW()
		WHERE stream_id = $1 AND sent_at IS NULL`
	tag, err := r.pool.Exec(ctx, q, streamID)
	if err != nil {
		return 0, fmt.Errorf("mark sent: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListForUser returns a user's notifications, newest first.
func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error) {
	const q = `
		SELECT id, stream_id, user_id, type, sent_at, created_at
		FROM stream_notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`
	rows, err := r.pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.StreamID, &n.UserID, &n.Type, &n.SentAt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
