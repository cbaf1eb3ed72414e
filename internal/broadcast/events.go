package broadcast

import "github.com/google/uuid"

// Server-to-client event names. These are the wire contract shared with the
// WebSocket edge layer and must not change without coordinating there.
const (
	EventError         = "error"
	EventPong          = "pong"
	EventViewerCount   = "viewer_count_updated"
	EventReaction      = "reaction"
	EventNewComment    = "new_comment"
	EventGiftSent      = "gift_sent"
	EventStatusChanged = "status_changed"
	EventStreamEnded   = "stream_ended"
)

// ViewerCountPayload is the data for viewer_count_updated events.
type ViewerCountPayload struct {
	CurrentViewers int `json:"current_viewers"`
	PeakViewers    int `json:"peak_viewers"`
}

// ReactionPayload is the data for reaction events. UserID is empty for
// anonymous viewers.
type ReactionPayload struct {
	UserID       string `json:"user_id,omitempty"`
	ReactionType string `json:"reaction_type"`
}

// StatusChangedPayload is the data for status_changed events.
type StatusChangedPayload struct {
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
}

// StreamEndedPayload is the data for stream_ended events.
type StreamEndedPayload struct {
	StreamID uuid.UUID `json:"stream_id"`
	Duration int64     `json:"duration"`
}
