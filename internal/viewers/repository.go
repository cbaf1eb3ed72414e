// Package viewers persists viewing sessions. One row per session; the open
// row (is_currently_watching, no left_at) is unique per (stream, user) and
// is the durable truth behind the fast viewer counter.
package viewers

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pulsecast/live-backend/internal/models"
)

// Repository handles stream_viewers persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a viewers repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Open creates an open viewing session for (stream, user) unless one already
// exists. Returns true when a new row was created.
func (r *Repository) Open(ctx context.Context, streamID, userID uuid.UUID) (bool, error) {
	const q = `INSERT INTO stream_viewers (stream_id, user_id, joined_at, is_currently_watching)
		SELECT $1, $2, NOW(), TRUE
		WHERE NOT EXISTS (
			SELECT 1 FROM stream_viewers
			WHERE stream_id = $1 AND user_id = $2 AND is_currently_watching AND left_at IS NULL
		)
		ON CONFLICT DO NOTHING`
	tag, err := r.pool.Exec(ctx, q, streamID, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Close ends the open session for (stream, user): sets left_at, computes
// watch_seconds from joined_at, and clears the watching flag.
func (r *Repository) Close(ctx context.Context, streamID, userID uuid.UUID) error {
	const q = `UPDATE stream_viewers v
		SET left_at = NOW(),
		    watch_seconds = GREATEST(0, EXTRACT(EPOCH FROM (NOW() - v.joined_at))::BIGINT),
		    is_currently_watching = FALSE
		FROM (
			SELECT id FROM stream_viewers
			WHERE stream_id = $1 AND user_id = $2 AND is_currently_watching AND left_at IS NULL
			ORDER BY joined_at DESC LIMIT 1
		) AS open
		WHERE v.id = open.id`
	_, err := r.pool.Exec(ctx, q, streamID, userID)
	return err
}

// CloseAll force-closes every open session for a stream, used at finalization
// so presence bookkeeping cannot outlive the stream. Returns the number of
// rows closed.
func (r *Repository) CloseAll(ctx context.Context, streamID uuid.UUID) (int64, error) {
	const q = `UPDATE stream_viewers
		SET left_at = NOW(),
		    watch_seconds = GREATEST(0, EXTRACT(EPOCH FROM (NOW() - joined_at))::BIGINT),
		    is_currently_watching = FALSE
		WHERE stream_id = $1 AND is_currently_watching AND left_at IS NULL`
	tag, err := r.pool.Exec(ctx, q, streamID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CountWatching counts open sessions for a stream. This is the counter
// store's authoritative fallback.
func (r *Repository) CountWatching(ctx context.Context, streamID uuid.UUID) (int, error) {
	const q = `SELECT COUNT(*) FROM stream_viewers
		WHERE stream_id = $1 AND is_currently_watching`
	var n int
	if err := r.pool.QueryRow(ctx, q, streamID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// DistinctUsers counts distinct users across all sessions of a stream.
func (r *Repository) DistinctUsers(ctx context.Context, streamID uuid.UUID) (int, error) {
	const q = `SELECT COUNT(DISTINCT user_id) FROM stream_viewers WHERE stream_id = $1`
	var n int
	if err := r.pool.QueryRow(ctx, q, streamID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// ListByStream returns a stream's viewing sessions, open sessions first,
// then by most recent join.
func (r *Repository) ListByStream(ctx context.Context, streamID uuid.UUID) ([]models.Viewer, error) {
	const q = `SELECT id, stream_id, user_id, joined_at, left_at, watch_seconds, is_currently_watching
		FROM stream_viewers
		WHERE stream_id = $1
		ORDER BY is_currently_watching DESC, joined_at DESC`
	rows, err := r.pool.Query(ctx, q, streamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Viewer
	for rows.Next() {
		var v models.Viewer
		if err := rows.Scan(&v.ID, &v.StreamID, &v.UserID, &v.JoinedAt, &v.LeftAt, &v.WatchSeconds, &v.IsCurrentlyWatching); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// AverageWatchSeconds returns the mean watch duration over all closed
// sessions of a stream, 0 when there are none.
func (r *Repository) AverageWatchSeconds(ctx context.Context, streamID uuid.UUID) (float64, error) {
	const q = `SELECT COALESCE(AVG(watch_seconds), 0) FROM stream_viewers
		WHERE stream_id = $1 AND left_at IS NOT NULL`
	var avg float64
	if err := r.pool.QueryRow(ctx, q, streamID).Scan(&avg); err != nil {
		return 0, err
	}
	return avg, nil
}
