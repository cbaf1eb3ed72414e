// Package analytics samples live stream metrics into an append-only time
// series and produces the one final summary at stream end.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulsecast/live-backend/internal/models"
)

// SnapshotStore appends snapshot rows.
type SnapshotStore interface {
	Insert(ctx context.Context, streamID uuid.UUID, viewersCount int, engagementRate float64, data json.RawMessage) error
}

// ViewerStats aggregates viewer sessions for the final summary.
type ViewerStats interface {
	DistinctUsers(ctx context.Context, streamID uuid.UUID) (int, error)
	AverageWatchSeconds(ctx context.Context, streamID uuid.UUID) (float64, error)
}

// StreamSink persists summary-derived fields onto the stream record.
type StreamSink interface {
	SetUniqueViewers(ctx context.Context, id uuid.UUID, unique int) error
}

// Archiver stores the final summary JSON externally. Optional.
type Archiver interface {
	ArchiveSummary(ctx context.Context, streamID uuid.UUID, body []byte) (string, error)
}

// FinalSummary is the payload of the final snapshot row, identified by
// Type == "final".
type FinalSummary struct {
	Type                string  `json:"type"`
	TotalViewers        int     `json:"total_viewers"`
	UniqueViewers       int     `json:"unique_viewers"`
	PeakViewers         int     `json:"peak_viewers"`
	AverageWatchSeconds float64 `json:"average_watch_seconds"`
	LikesCount          int     `json:"likes_count"`
	CommentsCount       int     `json:"comments_count"`
	SharesCount         int     `json:"shares_count"`
	GiftsCount          int     `json:"gifts_count"`
	GiftsValue          int64   `json:"gifts_value"`
	Duration            int64   `json:"duration"`
}

// Snapshotter writes periodic and final analytics snapshots.
type Snapshotter struct {
	snapshots SnapshotStore
	viewers   ViewerStats
	streams   StreamSink
	archive   Archiver // nil when no archive is configured
	logger    *zap.Logger
}

// NewSnapshotter creates a snapshotter. archive may be nil.
func NewSnapshotter(snapshots SnapshotStore, viewers ViewerStats, streams StreamSink, archive Archiver, logger *zap.Logger) *Snapshotter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Snapshotter{snapshots: snapshots, viewers: viewers, streams: streams, archive: archive, logger: logger}
}

// EngagementRate computes the periodic engagement formula:
// (likes + comments + gifts) / total_viewers * 100, 0 for no viewers.
// The final summary intentionally reports a fuller set of totals instead of
// folding shares or gift value into this rate.
func EngagementRate(s *models.Stream) float64 {
	if s.TotalViewers == 0 {
		return 0
	}
	return float64(s.LikesCount+s.CommentsCount+s.GiftsCount) / float64(s.TotalViewers) * 100
}

// Snapshot appends one periodic sample for a live stream.
func (sn *Snapshotter) Snapshot(ctx context.Context, s *models.Stream) error {
	if err := sn.snapshots.Insert(ctx, s.ID, s.ViewersCount, EngagementRate(s), nil); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// Final writes the end-of-stream summary: computes unique viewers and
// average watch time, persists unique_viewers onto the stream, and appends
// one snapshot row with viewers_count = 0 and the summary payload. The
// caller guarantees single invocation per stream via the status-guarded
// ending -> ended transition.
func (sn *Snapshotter) Final(ctx context.Context, s *models.Stream) (*FinalSummary, error) {
	unique, err := sn.viewers.DistinctUsers(ctx, s.ID)
	if err != nil {
		return nil, fmt.Errorf("distinct users: %w", err)
	}
	avg, err := sn.viewers.AverageWatchSeconds(ctx, s.ID)
	if err != nil {
		return nil, fmt.Errorf("average watch time: %w", err)
	}
	if err := sn.streams.SetUniqueViewers(ctx, s.ID, unique); err != nil {
		return nil, fmt.Errorf("persist unique viewers: %w", err)
	}

	summary := &FinalSummary{
		Type:                "final",
		TotalViewers:        s.TotalViewers,
		UniqueViewers:       unique,
		PeakViewers:         s.PeakViewers,
		AverageWatchSeconds: avg,
		LikesCount:          s.LikesCount,
		CommentsCount:       s.CommentsCount,
		SharesCount:         s.SharesCount,
		GiftsCount:          s.GiftsCount,
		GiftsValue:          s.GiftsValue,
		Duration:            s.Duration,
	}
	data, err := json.Marshal(summary)
	if err != nil {
		return nil, fmt.Errorf("marshal summary: %w", err)
	}
	if err := sn.snapshots.Insert(ctx, s.ID, 0, EngagementRate(s), data); err != nil {
		return nil, fmt.Errorf("insert final snapshot: %w", err)
	}

	if sn.archive != nil {
		if _, aerr := sn.archive.ArchiveSummary(ctx, s.ID, data); aerr != nil {
			sn.logger.Warn("summary archive failed",
				zap.String("stream_id", s.ID.String()), zap.Error(aerr))
		}
	}
	return summary, nil
}
