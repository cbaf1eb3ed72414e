package scheduler

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulsecast/live-backend/internal/models"
)

// LiveStreams lists live streams and persists their viewer counts.
type LiveStreams interface {
	ListByStatus(ctx context.Context, status models.StreamStatus) ([]*models.Stream, error)
	SetViewerCounts(ctx context.Context, id uuid.UUID, current int) error
}

// WatchingCounter recounts open viewer sessions from the durable store.
type WatchingCounter interface {
	CountWatching(ctx context.Context, streamID uuid.UUID) (int, error)
}

// CountCache overwrites the fast counter with the authoritative recount.
type CountCache interface {
	Reconcile(ctx context.Context, streamID uuid.UUID, current int) error
}

// Sampler appends a periodic analytics snapshot for a live stream.
type Sampler interface {
	Snapshot(ctx context.Context, s *models.Stream) error
}

// CountEvents pushes refreshed counts to connected clients.
type CountEvents interface {
	ViewerCount(ctx context.Context, streamID uuid.UUID, current, peak int) error
}

// ViewerCountJob reconciles viewer counts for every live stream: the durable
// viewer table is recounted, the fast counter and the stream record are
// overwritten with the result, a snapshot is sampled, and the refreshed
// count is broadcast.
type ViewerCountJob struct {
	streams  LiveStreams
	watching WatchingCounter
	cache    CountCache
	sampler  Sampler
	events   CountEvents
	logger   *zap.Logger
}

// NewViewerCountJob creates the viewer count job.
func NewViewerCountJob(streams LiveStreams, watching WatchingCounter, cache CountCache, sampler Sampler, events CountEvents, logger *zap.Logger) *ViewerCountJob {
	return &ViewerCountJob{
		streams:  streams,
		watching: watching,
		cache:    cache,
		sampler:  sampler,
		events:   events,
		logger:   logger,
	}
}

// Run refreshes every live stream. A failure on one stream does not stop
// the others.
func (j *ViewerCountJob) Run(ctx context.Context) error {
	live, err := j.streams.ListByStatus(ctx, models.StatusLive)
	if err != nil {
		return fmt.Errorf("list live streams: %w", err)
	}

	for _, s := range live {
		if err := j.refresh(ctx, s); err != nil {
			j.logger.Error("viewer count refresh failed",
				zap.String("stream_id", s.ID.String()), zap.Error(err))
		}
	}
	return nil
}

func (j *ViewerCountJob) refresh(ctx context.Context, s *models.Stream) error {
	current, err := j.watching.CountWatching(ctx, s.ID)
	if err != nil {
		return fmt.Errorf("count watching: %w", err)
	}

	if err := j.cache.Reconcile(ctx, s.ID, current); err != nil {
		j.logger.Warn("counter reconcile failed",
			zap.String("stream_id", s.ID.String()), zap.Error(err))
	}

	if err := j.streams.SetViewerCounts(ctx, s.ID, current); err != nil {
		return fmt.Errorf("persist viewer counts: %w", err)
	}

	s.ViewersCount = current
	if current > s.PeakViewers {
		s.PeakViewers = current
	}
	if err := j.sampler.Snapshot(ctx, s); err != nil {
		j.logger.Warn("snapshot failed",
			zap.String("stream_id", s.ID.String()), zap.Error(err))
	}

	_ = j.events.ViewerCount(ctx, s.ID, current, s.PeakViewers)
	return nil
}
