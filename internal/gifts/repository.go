// Package gifts stores gifts sent to live streams.
package gifts

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pulsecast/live-backend/internal/models"
)

// Catalog maps gift types to their value in the platform's smallest
// currency unit.
var Catalog = map[string]int64{
	"rose":    10,
	"heart":   25,
	"diamond": 100,
	"rocket":  500,
	"castle":  2000,
}

// Repository stores gifts.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a gifts repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a gift and fills its generated fields.
func (r *Repository) Create(ctx context.Context, g *models.Gift) error {
	const q = `
		INSERT INTO stream_gifts (stream_id, user_id, gift_type, value)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`
	if err := r.pool.QueryRow(ctx, q, g.StreamID, g.UserID, g.GiftType, g.Value).Scan(&g.ID, &g.CreatedAt); err != nil {
		return fmt.Errorf("insert gift: %w", err)
	}
	return nil
}

// ListByStream returns a stream's gifts, newest first.
func (r *Repository) ListByStream(ctx context.Context, streamID uuid.UUID, limit int) ([]models.Gift, error) {
	const q = `
		SELECT id, stream_id, user_id, gift_type, value, created_at
		FROM stream_gifts
		WHERE stream_id = $1
		ORDER BY created_at DESC
		LIMIT $2`
	rows, err := r.pool.Query(ctx, q, streamID, limit)
	if err != nil {
		return nil, fmt.Errorf("query gifts: %w", err)
	}
	defer rows.Close()

	var out []models.Gift
	for rows.Next() {
		var g models.Gift
		if err := rows.Scan(&g.ID, &g.StreamID, &g.UserID, &g.GiftType, &g.Value, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan gift: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
