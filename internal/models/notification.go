package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationStartingSoon is the type for pre-live "starting soon" notices.
const NotificationStartingSoon = "starting_soon"

// Notification is a deduplicating log row of a live alert for one subscriber.
// At most one row exists per (stream, user, type).
type Notification struct {
	ID        uuid.UUID  `json:"id"`
	StreamID  uuid.UUID  `json:"stream_id"`
	UserID    uuid.UUID  `json:"user_id"`
	Type      string     `json:"type"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
