package models

import (
	"time"

	"github.com/google/uuid"
)

// Comment is one comment posted on a live stream.
type Comment struct {
	ID        uuid.UUID `json:"id"`
	StreamID  uuid.UUID `json:"stream_id"`
	UserID    uuid.UUID `json:"user_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
