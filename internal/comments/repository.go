// Package comments stores and serves live stream comments.
package comments

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pulsecast/live-backend/internal/models"
)

// Repository stores comments.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a comments repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a comment and fills its generated fields.
func (r *Repository) Create(ctx context.Context, c *models.Comment) error {
	const q = `
		INSERT INTO stream_comments (stream_id, user_id, content)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`
	if err := r.pool.QueryRow(ctx, q, c.StreamID, c.UserID, c.Content).Scan(&c.ID, &c.CreatedAt); err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

// ListByStream returns a stream's comments, newest first.
func (r *Repository) ListByStream(ctx context.Context, streamID uuid.UUID, limit int) ([]models.Comment, error) {
	const q = `
		SELECT id, stream_id, user_id, content, created_at
		FROM stream_comments
		WHERE stream_id = $1
		ORDER BY created_at DESC
		LIMIT $2`
	rows, err := r.pool.Query(ctx, q, streamID, limit)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	var out []models.Comment
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.StreamID, &c.UserID, &c.Content, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
