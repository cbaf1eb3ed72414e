// Package counter provides the shared live viewer counter for streams.
//
// The production implementation is Redis-backed; the durable viewer table
// remains the source of truth and every read degrades to a recount from it
// when Redis is unavailable.
package counter

import (
	"context"

	"github.com/google/uuid"
)

// Store is the viewer counter abstraction. Implementations must be safe for
// concurrent use per stream: increments, decrements and peak raises are
// atomic, and a decrement at zero stays at zero.
type Store interface {
	// Increment adjusts the live count by +1 and returns the new count.
	Increment(ctx context.Context, streamID uuid.UUID) (int, error)
	// Decrement adjusts the live count by -1, flooring at 0, and returns
	// the new count.
	Decrement(ctx context.Context, streamID uuid.UUID) (int, error)
	// Get returns the current live count.
	Get(ctx context.Context, streamID uuid.UUID) (int, error)
	// RaisePeak raises the stored peak to current if current exceeds it,
	// atomically, and returns the resulting peak (old or new). A raised
	// peak is also persisted onto the stream record.
	RaisePeak(ctx context.Context, streamID uuid.UUID, current int) (int, error)
	// Reconcile overwrites the live count with an authoritative recount.
	Reconcile(ctx context.Context, streamID uuid.UUID, current int) error
}

// Recounter recounts live viewers from the durable store. Used as the
// fallback when the fast store is unavailable.
type Recounter interface {
	CountWatching(ctx context.Context, streamID uuid.UUID) (int, error)
}

// PeakSink persists a raised peak onto the durable stream record.
type PeakSink interface {
	PersistPeak(ctx context.Context, streamID uuid.UUID, peak int) error
}
