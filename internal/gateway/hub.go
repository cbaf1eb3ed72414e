package gateway

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Subscriber subscribes to a stream's event channel, so events published by
// REST handlers, the scheduler, or other instances reach local clients.
type Subscriber interface {
	SubscribeStream(streamID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// Hub maintains streamID -> set of connections and fans events out to them.
// The first client on a stream opens the pub/sub subscription; the last one
// leaving closes it.
type Hub struct {
	streams map[uuid.UUID]map[string]*Client
	subs    map[uuid.UUID]func()
	mu      sync.RWMutex
	sub     Subscriber
	logger  *zap.Logger
}

// NewHub creates a WebSocket hub.
func NewHub(sub Subscriber, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		streams: make(map[uuid.UUID]map[string]*Client),
		subs:    make(map[uuid.UUID]func()),
		sub:     sub,
		logger:  logger,
	}
}

// Register adds a client to a stream's subscriber set, starting the pub/sub
// subscription when it is the first client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.streams[c.StreamID] == nil {
		h.streams[c.StreamID] = make(map[string]*Client)
		if h.sub != nil {
			streamID := c.StreamID
			cancel, err := h.sub.SubscribeStream(streamID, func(event string, payload []byte) {
				h.Fanout(streamID, event, payload)
			})
			if err != nil {
				h.logger.Warn("stream subscription failed",
					zap.String("stream_id", streamID.String()), zap.Error(err))
			} else {
				h.subs[streamID] = cancel
			}
		}
	}
	h.streams[c.StreamID][c.ID] = c
	h.logger.Debug("client joined stream",
		zap.String("client_id", c.ID), zap.String("stream_id", c.StreamID.String()))
}

// Unregister removes a client, cancelling the pub/sub subscription when the
// last client leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m, ok := h.streams[c.StreamID]; ok {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.streams, c.StreamID)
			if cancel, ok := h.subs[c.StreamID]; ok {
				cancel()
				delete(h.subs, c.StreamID)
			}
		}
	}
	h.logger.Debug("client left stream",
		zap.String("client_id", c.ID), zap.String("stream_id", c.StreamID.String()))
}

// Fanout sends an event to all local clients on a stream. Clients with a
// full send buffer are skipped rather than blocked on.
func (h *Hub) Fanout(streamID uuid.UUID, event string, payload []byte) {
	msg := WSMessage{Event: event, Data: payload}

	h.mu.RLock()
	clients := h.streams[streamID]
	targets := make([]*Client, 0, len(clients))
	for _, c := range clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- msg:
		default:
		}
	}
}

// SendToClient sends an event to a single client (pong replies).
func (h *Hub) SendToClient(streamID uuid.UUID, clientID, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	h.mu.RLock()
	c := h.streams[streamID][clientID]
	h.mu.RUnlock()
	if c == nil {
		return
	}
	select {
	case c.send <- WSMessage{Event: event, Data: data}:
	default:
	}
}

// ClientCount returns the number of connected clients on a stream.
func (h *Hub) ClientCount(streamID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.streams[streamID])
}
