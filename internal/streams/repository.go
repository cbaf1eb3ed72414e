package streams

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pulsecast/live-backend/internal/models"
)

const streamColumns = `id, user_id, title, description, status,
	scheduled_at, pre_live_started_at, started_at, ended_at, duration,
	viewers_count, peak_viewers, total_viewers, unique_viewers,
	likes_count, comments_count, shares_count, gifts_count, gifts_value,
	reaction_counts, created_at, updated_at`

// Repository handles streams persistence. Lifecycle transitions are
// status-guarded so that a stale or concurrent caller becomes a no-op
// instead of moving a stream backwards.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a streams repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanStream(row pgx.Row) (*models.Stream, error) {
	var s models.Stream
	err := row.Scan(&s.ID, &s.UserID, &s.Title, &s.Description, &s.Status,
		&s.ScheduledAt, &s.PreLiveStartedAt, &s.StartedAt, &s.EndedAt, &s.Duration,
		&s.ViewersCount, &s.PeakViewers, &s.TotalViewers, &s.UniqueViewers,
		&s.LikesCount, &s.CommentsCount, &s.SharesCount, &s.GiftsCount, &s.GiftsValue,
		&s.ReactionCounts, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserts a stream. When s.ScheduledAt is set the stream starts in
// "scheduled"; otherwise it goes live immediately with started_at = NOW().
func (r *Repository) Create(ctx context.Context, s *models.Stream) error {
	if s.ScheduledAt != nil {
		s.Status = models.StatusScheduled
		const q = `INSERT INTO streams (id, user_id, title, description, status, scheduled_at)
			VALUES (gen_random_uuid(), $1, $2, $3, $4, $5)
			RETURNING id, reaction_counts, created_at, updated_at`
		return r.pool.QueryRow(ctx, q, s.UserID, s.Title, s.Description, s.Status, s.ScheduledAt).
			Scan(&s.ID, &s.ReactionCounts, &s.CreatedAt, &s.UpdatedAt)
	}
	s.Status = models.StatusLive
	const q = `INSERT INTO streams (id, user_id, title, description, status, started_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, NOW())
		RETURNING id, started_at, reaction_counts, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, s.UserID, s.Title, s.Description, s.Status).
		Scan(&s.ID, &s.StartedAt, &s.ReactionCounts, &s.CreatedAt, &s.UpdatedAt)
}

// GetByID returns a stream by ID, or (nil, nil) when not found.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Stream, error) {
	s, err := scanStream(r.pool.QueryRow(ctx, `SELECT `+streamColumns+` FROM streams WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// ListByStatus returns all streams in the given status.
func (r *Repository) ListByStatus(ctx context.Context, status models.StreamStatus) ([]*models.Stream, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+streamColumns+` FROM streams WHERE status = $1 ORDER BY created_at DESC`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Stream
	for rows.Next() {
		s, err := scanStream(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// ListScheduledWithin returns scheduled streams whose scheduled_at is still
// in the future and falls within the next window.
func (r *Repository) ListScheduledWithin(ctx context.Context, window time.Duration) ([]*models.Stream, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+streamColumns+` FROM streams
		 WHERE status = $1 AND scheduled_at > NOW() AND scheduled_at <= NOW() + make_interval(secs => $2)
		 ORDER BY scheduled_at`, models.StatusScheduled, window.Seconds())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Stream
	for rows.Next() {
		s, err := scanStream(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// ListEndingBefore returns streams in "ending" whose last update is at or
// before cutoff, i.e. past the finalization grace window.
func (r *Repository) ListEndingBefore(ctx context.Context, cutoff time.Time) ([]*models.Stream, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+streamColumns+` FROM streams
		 WHERE status = $1 AND updated_at <= $2
		 ORDER BY updated_at`, models.StatusEnding, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Stream
	for rows.Next() {
		s, err := scanStream(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// MarkPreLive moves a scheduled stream into pre_live. Returns false when the
// stream already left "scheduled", making repeated ticks idempotent.
func (r *Repository) MarkPreLive(ctx context.Context, id uuid.UUID) (bool, error) {
	const q = `UPDATE streams
		SET status = $2, pre_live_started_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = $3`
	tag, err := r.pool.Exec(ctx, q, id, models.StatusPreLive, models.StatusScheduled)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Start moves a scheduled or pre_live stream into live.
func (r *Repository) Start(ctx context.Context, id uuid.UUID) (bool, error) {
	const q = `UPDATE streams
		SET status = $2, started_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status IN ($3, $4)`
	tag, err := r.pool.Exec(ctx, q, id, models.StatusLive, models.StatusScheduled, models.StatusPreLive)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// End moves a live stream into ending, opening the grace window before
// finalization.
func (r *Repository) End(ctx context.Context, id uuid.UUID) (bool, error) {
	const q = `UPDATE streams SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3`
	tag, err := r.pool.Exec(ctx, q, id, models.StatusEnding, models.StatusLive)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Finalize moves an ending stream into ended, setting ended_at and duration.
// Returns false when the stream was already finalized by another tick.
func (r *Repository) Finalize(ctx context.Context, id uuid.UUID, duration int64) (bool, error) {
	const q = `UPDATE streams
		SET status = $2, ended_at = NOW(), duration = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4`
	tag, err := r.pool.Exec(ctx, q, id, models.StatusEnded, duration, models.StatusEnding)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// IncrementTotalViewers bumps the cumulative join counter.
func (r *Repository) IncrementTotalViewers(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE streams SET total_viewers = total_viewers + 1, updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id)
	return err
}

// IncrementLikes bumps likes_count.
func (r *Repository) IncrementLikes(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE streams SET likes_count = likes_count + 1, updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id)
	return err
}

// IncrementComments bumps comments_count.
func (r *Repository) IncrementComments(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE streams SET comments_count = comments_count + 1, updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id)
	return err
}

// IncrementShares bumps shares_count.
func (r *Repository) IncrementShares(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE streams SET shares_count = shares_count + 1, updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id)
	return err
}

// AddGift bumps gifts_count and adds value to gifts_value.
func (r *Repository) AddGift(ctx context.Context, id uuid.UUID, value int64) error {
	const q = `UPDATE streams SET gifts_count = gifts_count + 1, gifts_value = gifts_value + $2, updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id, value)
	return err
}

// IncrementReaction bumps the per-kind reaction counter inside the
// reaction_counts JSONB map.
func (r *Repository) IncrementReaction(ctx context.Context, id uuid.UUID, kind string) error {
	const q = `UPDATE streams
		SET reaction_counts = jsonb_set(
			COALESCE(reaction_counts, '{}'::jsonb),
			ARRAY[$2],
			(COALESCE((reaction_counts->>$2)::int, 0) + 1)::text::jsonb
		), updated_at = NOW()
		WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id, kind)
	return err
}

// SetViewerCounts persists a reconciled viewers_count and raises
// peak_viewers if exceeded.
func (r *Repository) SetViewerCounts(ctx context.Context, id uuid.UUID, current int) error {
	const q = `UPDATE streams
		SET viewers_count = $2, peak_viewers = GREATEST(peak_viewers, $2), updated_at = NOW()
		WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id, current)
	return err
}

// PersistPeak raises the stored peak_viewers to peak. GREATEST keeps the
// write monotone under concurrent callers.
func (r *Repository) PersistPeak(ctx context.Context, id uuid.UUID, peak int) error {
	const q = `UPDATE streams SET peak_viewers = GREATEST(peak_viewers, $2), updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id, peak)
	return err
}

// SetUniqueViewers persists the distinct-user count computed at stream end.
func (r *Repository) SetUniqueViewers(ctx context.Context, id uuid.UUID, unique int) error {
	const q = `UPDATE streams SET unique_viewers = $2, updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id, unique)
	return err
}
