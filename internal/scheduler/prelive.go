package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulsecast/live-backend/internal/models"
	"github.com/pulsecast/live-backend/pkg/queue"
)

// PreLiveStreams lists and advances streams approaching their scheduled time.
type PreLiveStreams interface {
	ListScheduledWithin(ctx context.Context, window time.Duration) ([]*models.Stream, error)
	MarkPreLive(ctx context.Context, id uuid.UUID) (bool, error)
}

// AlertSubscribers resolves followers subscribed to a broadcaster's live
// alerts and records the starting-soon notifications.
type AlertSubscribers interface {
	ListSubscriberIDs(ctx context.Context, broadcasterID uuid.UUID) ([]uuid.UUID, error)
	BulkInsertStartingSoon(ctx context.Context, streamID uuid.UUID, userIDs []uuid.UUID) (int64, error)
}

// AlertQueue hands notification delivery off to the worker.
type AlertQueue interface {
	EnqueueLiveAlert(ctx context.Context, payload queue.LiveAlertPayload) error
}

// StatusEvents publishes lifecycle transitions to connected clients.
type StatusEvents interface {
	StatusChanged(ctx context.Context, streamID uuid.UUID, oldStatus, newStatus string) error
}

// PreLiveJob moves scheduled streams into pre_live once they are within the
// warm-up window, and fans out starting-soon alerts exactly once per stream.
type PreLiveJob struct {
	streams     PreLiveStreams
	subscribers AlertSubscribers
	alerts      AlertQueue
	events      StatusEvents
	window      time.Duration
	logger      *zap.Logger
}

// NewPreLiveJob creates the pre-live job.
func NewPreLiveJob(streams PreLiveStreams, subscribers AlertSubscribers, alerts AlertQueue, events StatusEvents, window time.Duration, logger *zap.Logger) *PreLiveJob {
	return &PreLiveJob{
		streams:     streams,
		subscribers: subscribers,
		alerts:      alerts,
		events:      events,
		window:      window,
		logger:      logger,
	}
}

// Run advances every due scheduled stream. A failure on one stream does not
// stop the others.
func (j *PreLiveJob) Run(ctx context.Context) error {
	due, err := j.streams.ListScheduledWithin(ctx, j.window)
	if err != nil {
		return fmt.Errorf("list scheduled streams: %w", err)
	}

	for _, s := range due {
		if err := j.advance(ctx, s); err != nil {
			j.logger.Error("pre-live advance failed",
				zap.String("stream_id", s.ID.String()), zap.Error(err))
		}
	}
	return nil
}

func (j *PreLiveJob) advance(ctx context.Context, s *models.Stream) error {
	// The status-guarded update makes this job safe to re-run: a stream
	// already advanced past scheduled produces no second round of alerts.
	moved, err := j.streams.MarkPreLive(ctx, s.ID)
	if err != nil {
		return fmt.Errorf("mark pre_live: %w", err)
	}
	if !moved {
		return nil
	}

	_ = j.events.StatusChanged(ctx, s.ID, string(models.StatusScheduled), string(models.StatusPreLive))

	subscriberIDs, err := j.subscribers.ListSubscriberIDs(ctx, s.UserID)
	if err != nil {
		return fmt.Errorf("list subscribers: %w", err)
	}
	if len(subscriberIDs) == 0 {
		return nil
	}

	inserted, err := j.subscribers.BulkInsertStartingSoon(ctx, s.ID, subscriberIDs)
	if err != nil {
		return fmt.Errorf("insert notifications: %w", err)
	}
	if inserted == 0 {
		return nil
	}

	if err := j.alerts.EnqueueLiveAlert(ctx, queue.LiveAlertPayload{
		StreamID:          s.ID,
		BroadcasterID:     s.UserID,
		NotificationCount: inserted,
	}); err != nil {
		return fmt.Errorf("enqueue alert: %w", err)
	}

	j.logger.Info("stream moved to pre_live",
		zap.String("stream_id", s.ID.String()),
		zap.Int64("notifications", inserted))
	return nil
}
