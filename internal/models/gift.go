package models

import (
	"time"

	"github.com/google/uuid"
)

// Gift is one gift sent to a stream. Value is in the platform's smallest
// currency unit; charging the sender is handled outside this service.
type Gift struct {
	ID        uuid.UUID `json:"id"`
	StreamID  uuid.UUID `json:"stream_id"`
	UserID    uuid.UUID `json:"user_id"`
	GiftType  string    `json:"gift_type"`
	Value     int64     `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}
