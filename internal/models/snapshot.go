package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Snapshot is an append-only analytics sample for a stream. Periodic rows
// carry no data payload; the one final row written at stream end carries a
// JSON payload with "type":"final" and the full summary.
type Snapshot struct {
	ID             uuid.UUID       `json:"id"`
	StreamID       uuid.UUID       `json:"stream_id"`
	ViewersCount   int             `json:"viewers_count"`
	EngagementRate float64         `json:"engagement_rate"`
	Data           json.RawMessage `json:"data,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}
