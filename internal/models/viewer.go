package models

import (
	"time"

	"github.com/google/uuid"
)

// Viewer is one viewing session of a user on a stream. A user can have
// multiple historical rows per stream (one per session), but at most one
// open row (is_currently_watching and no left_at) at a time.
type Viewer struct {
	ID                  uuid.UUID  `json:"id"`
	StreamID            uuid.UUID  `json:"stream_id"`
	UserID              uuid.UUID  `json:"user_id"`
	JoinedAt            time.Time  `json:"joined_at"`
	LeftAt              *time.Time `json:"left_at,omitempty"`
	WatchSeconds        int64      `json:"watch_seconds"`
	IsCurrentlyWatching bool       `json:"is_currently_watching"`
}
