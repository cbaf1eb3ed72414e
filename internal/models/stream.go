package models

import (
	"time"

	"github.com/google/uuid"
)

// StreamStatus is the lifecycle state of a stream. Transitions are
// monotonic: a stream never moves back to an earlier status.
type StreamStatus string

const (
	StatusScheduled StreamStatus = "scheduled"
	StatusPreLive   StreamStatus = "pre_live"
	StatusLive      StreamStatus = "live"
	StatusEnding    StreamStatus = "ending"
	StatusEnded     StreamStatus = "ended"
)

var statusRank = map[StreamStatus]int{
	StatusScheduled: 0,
	StatusPreLive:   1,
	StatusLive:      2,
	StatusEnding:    3,
	StatusEnded:     4,
}

// CanAdvanceTo reports whether moving from s to next is a forward transition.
func (s StreamStatus) CanAdvanceTo(next StreamStatus) bool {
	a, ok1 := statusRank[s]
	b, ok2 := statusRank[next]
	return ok1 && ok2 && b > a
}

// AcceptsViewers reports whether clients may connect to the stream.
func (s StreamStatus) AcceptsViewers() bool {
	return s == StatusPreLive || s == StatusLive
}

// Stream is one live stream with its lifecycle timestamps and counters.
// Counters hold the invariant viewers_count <= peak_viewers <= total_viewers.
type Stream struct {
	ID               uuid.UUID    `json:"id"`
	UserID           uuid.UUID    `json:"user_id"`
	Title            string       `json:"title"`
	Description      string       `json:"description"`
	Status           StreamStatus `json:"status"`
	ScheduledAt      *time.Time   `json:"scheduled_at,omitempty"`
	PreLiveStartedAt *time.Time   `json:"pre_live_started_at,omitempty"`
	StartedAt        *time.Time   `json:"started_at,omitempty"`
	EndedAt          *time.Time   `json:"ended_at,omitempty"`
	Duration         int64        `json:"duration"` // seconds, set at end
	ViewersCount     int          `json:"viewers_count"`
	PeakViewers      int          `json:"peak_viewers"`
	TotalViewers     int          `json:"total_viewers"`
	UniqueViewers    int          `json:"unique_viewers"`
	LikesCount       int          `json:"likes_count"`
	CommentsCount    int          `json:"comments_count"`
	SharesCount      int          `json:"shares_count"`
	GiftsCount       int          `json:"gifts_count"`
	GiftsValue       int64        `json:"gifts_value"`
	ReactionCounts   map[string]int `json:"reaction_counts"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}
