// Package broadcast publishes stream events to per-stream Redis channels.
// A WebSocket edge layer (the in-process gateway hub, or other instances of
// it) subscribes and fans events out to connected clients. Delivery is
// best-effort: a dropped event must never fail the business operation that
// triggered it.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix  = "stream:"
	publishTimeout = 5 * time.Second
)

// envelope is the message published to Redis. Data is the event payload as
// sent to clients; At records publish time.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	At    int64           `json:"at"`
}

// Broadcaster publishes stream events over Redis pub/sub.
type Broadcaster struct {
	client *redis.Client
	logger *zap.Logger
}

// NewBroadcaster creates a Redis-backed event broadcaster.
func NewBroadcaster(client *redis.Client, logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{client: client, logger: logger}
}

// Channel returns the Redis channel for a stream.
func Channel(streamID uuid.UUID) string {
	return channelPrefix + streamID.String()
}

// Publish serializes {event, data} and publishes it to the stream's channel.
// Callers treat the returned error as best-effort: log and discard.
func (b *Broadcaster) Publish(ctx context.Context, streamID uuid.UUID, event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	body, err := json.Marshal(envelope{Event: event, Data: data, At: time.Now().Unix()})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := b.client.Publish(ctx, Channel(streamID), body).Err(); err != nil {
		b.logger.Warn("publish failed",
			zap.String("stream_id", streamID.String()),
			zap.String("event", event),
			zap.Error(err))
		return err
	}
	return nil
}

// ViewerCount broadcasts a viewer_count_updated event.
func (b *Broadcaster) ViewerCount(ctx context.Context, streamID uuid.UUID, current, peak int) error {
	return b.Publish(ctx, streamID, EventViewerCount, ViewerCountPayload{CurrentViewers: current, PeakViewers: peak})
}

// Reaction broadcasts a reaction event with the acting user and kind.
func (b *Broadcaster) Reaction(ctx context.Context, streamID uuid.UUID, userID *uuid.UUID, kind string) error {
	p := ReactionPayload{ReactionType: kind}
	if userID != nil {
		p.UserID = userID.String()
	}
	return b.Publish(ctx, streamID, EventReaction, p)
}

// NewComment broadcasts a new_comment event.
func (b *Broadcaster) NewComment(ctx context.Context, streamID uuid.UUID, payload interface{}) error {
	return b.Publish(ctx, streamID, EventNewComment, payload)
}

// GiftSent broadcasts a gift_sent event.
func (b *Broadcaster) GiftSent(ctx context.Context, streamID uuid.UUID, payload interface{}) error {
	return b.Publish(ctx, streamID, EventGiftSent, payload)
}

// StatusChanged broadcasts a status_changed event.
func (b *Broadcaster) StatusChanged(ctx context.Context, streamID uuid.UUID, oldStatus, newStatus string) error {
	return b.Publish(ctx, streamID, EventStatusChanged, StatusChangedPayload{OldStatus: oldStatus, NewStatus: newStatus})
}

// StreamEnded broadcasts a stream_ended event.
func (b *Broadcaster) StreamEnded(ctx context.Context, streamID uuid.UUID, duration int64) error {
	return b.Publish(ctx, streamID, EventStreamEnded, StreamEndedPayload{StreamID: streamID, Duration: duration})
}

// SubscribeStream subscribes to a stream's channel and calls handler for
// each incoming event. Returns a cancel function to stop the subscription.
func (b *Broadcaster) SubscribeStream(streamID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	pubsub := b.client.Subscribe(ctx, Channel(streamID))
	if _, err := pubsub.Receive(ctx); err != nil {
		cancelCtx()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var e envelope
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					continue
				}
				handler(e.Event, e.Data)
			}
		}
	}()
	return cancelCtx, nil
}
