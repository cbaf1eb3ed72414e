package analytics

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pulsecast/live-backend/internal/models"
)

// Repository handles stream_snapshots persistence. Snapshots are append-only
// and never mutated.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a snapshots repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert appends one snapshot row. data may be nil for periodic samples.
func (r *Repository) Insert(ctx context.Context, streamID uuid.UUID, viewersCount int, engagementRate float64, data json.RawMessage) error {
	const q = `INSERT INTO stream_snapshots (id, stream_id, viewers_count, engagement_rate, data)
		VALUES (gen_random_uuid(), $1, $2, $3, $4)`
	_, err := r.pool.Exec(ctx, q, streamID, viewersCount, engagementRate, data)
	return err
}

// ListByStream returns a stream's snapshots in chronological order.
func (r *Repository) ListByStream(ctx context.Context, streamID uuid.UUID) ([]models.Snapshot, error) {
	const q = `SELECT id, stream_id, viewers_count, engagement_rate, data, created_at
		FROM stream_snapshots WHERE stream_id = $1 ORDER BY created_at`
	rows, err := r.pool.Query(ctx, q, streamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Snapshot
	for rows.Next() {
		var s models.Snapshot
		if err := rows.Scan(&s.ID, &s.StreamID, &s.ViewersCount, &s.EngagementRate, &s.Data, &s.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// GetFinal returns the final summary snapshot for a stream, or (nil, nil)
// when the stream has not been finalized yet.
func (r *Repository) GetFinal(ctx context.Context, streamID uuid.UUID) (*models.Snapshot, error) {
	const q = `SELECT id, stream_id, viewers_count, engagement_rate, data, created_at
		FROM stream_snapshots
		WHERE stream_id = $1 AND data->>'type' = 'final'
		ORDER BY created_at DESC LIMIT 1`
	var s models.Snapshot
	err := r.pool.QueryRow(ctx, q, streamID).Scan(&s.ID, &s.StreamID, &s.ViewersCount, &s.EngagementRate, &s.Data, &s.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}
