package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulsecast/live-backend/internal/analytics"
	"github.com/pulsecast/live-backend/internal/models"
)

// EndingStreams lists streams waiting out the ending grace and completes
// their transition to ended.
type EndingStreams interface {
	ListEndingBefore(ctx context.Context, cutoff time.Time) ([]*models.Stream, error)
	Finalize(ctx context.Context, id uuid.UUID, duration int64) (bool, error)
}

// SessionCloser force-closes every still-open viewer session of a stream.
type SessionCloser interface {
	CloseAll(ctx context.Context, streamID uuid.UUID) (int64, error)
}

// Summarizer produces the final analytics summary for an ended stream.
type Summarizer interface {
	Final(ctx context.Context, s *models.Stream) (*analytics.FinalSummary, error)
}

// EndedEvents tells connected clients the stream is over.
type EndedEvents interface {
	StreamEnded(ctx context.Context, streamID uuid.UUID, duration int64) error
}

// FinalizeJob completes the ending -> ended transition once the grace
// period has passed: it closes leftover viewer sessions, zeroes the fast
// counter, writes the final summary, and broadcasts stream_ended.
type FinalizeJob struct {
	streams    EndingStreams
	sessions   SessionCloser
	cache      CountCache
	summarizer Summarizer
	events     EndedEvents
	grace      time.Duration
	logger     *zap.Logger

	now func() time.Time // test hook
}

// NewFinalizeJob creates the finalize job.
func NewFinalizeJob(streams EndingStreams, sessions SessionCloser, cache CountCache, summarizer Summarizer, events EndedEvents, grace time.Duration, logger *zap.Logger) *FinalizeJob {
	return &FinalizeJob{
		streams:    streams,
		sessions:   sessions,
		cache:      cache,
		summarizer: summarizer,
		events:     events,
		grace:      grace,
		logger:     logger,
		now:        time.Now,
	}
}

// Run finalizes every stream whose grace has elapsed. A failure on one
// stream does not stop the others.
func (j *FinalizeJob) Run(ctx context.Context) error {
	cutoff := j.now().Add(-j.grace)
	ending, err := j.streams.ListEndingBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list ending streams: %w", err)
	}

	for _, s := range ending {
		if err := j.finalize(ctx, s); err != nil {
			j.logger.Error("finalize failed",
				zap.String("stream_id", s.ID.String()), zap.Error(err))
		}
	}
	return nil
}

func (j *FinalizeJob) finalize(ctx context.Context, s *models.Stream) error {
	duration := j.duration(s)

	// The status-guarded update is the once-only gate: when another run
	// already moved the stream to ended, every side effect below is skipped.
	moved, err := j.streams.Finalize(ctx, s.ID, duration)
	if err != nil {
		return fmt.Errorf("finalize stream: %w", err)
	}
	if !moved {
		return nil
	}

	closed, err := j.sessions.CloseAll(ctx, s.ID)
	if err != nil {
		j.logger.Warn("close sessions failed",
			zap.String("stream_id", s.ID.String()), zap.Error(err))
	}

	if err := j.cache.Reconcile(ctx, s.ID, 0); err != nil {
		j.logger.Warn("counter reset failed",
			zap.String("stream_id", s.ID.String()), zap.Error(err))
	}

	s.Duration = duration
	s.ViewersCount = 0
	if _, err := j.summarizer.Final(ctx, s); err != nil {
		j.logger.Error("final summary failed",
			zap.String("stream_id", s.ID.String()), zap.Error(err))
	}

	_ = j.events.StreamEnded(ctx, s.ID, duration)

	j.logger.Info("stream finalized",
		zap.String("stream_id", s.ID.String()),
		zap.Int64("duration", duration),
		zap.Int64("sessions_closed", closed))
	return nil
}

// duration computes seconds between start and end. A stream ended before
// going live has duration 0.
func (j *FinalizeJob) duration(s *models.Stream) int64 {
	if s.StartedAt == nil {
		return 0
	}
	end := j.now()
	if s.EndedAt != nil {
		end = *s.EndedAt
	}
	secs := int64(end.Sub(*s.StartedAt).Seconds())
	if secs < 0 {
		return 0
	}
	return secs
}
