package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pulsecast/live-backend/internal/broadcast"
)

const (
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origin enforcement happens at the edge proxy
	},
}

// WSMessage is the WebSocket message envelope for both directions.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// reactionMessage is the client payload for reaction events.
type reactionMessage struct {
	ReactionType string `json:"reaction_type"`
}

// pongPayload is the reply to client pings.
type pongPayload struct {
	Timestamp int64 `json:"timestamp"`
}

// errorPayload is sent before closing a rejected connection.
type errorPayload struct {
	Message string `json:"message"`
}

// Client is one WebSocket connection on a stream. The connection context
// (stream, optional user) lives here, owned by the gateway, not attached to
// the transport handle.
type Client struct {
	ID       string
	StreamID uuid.UUID
	UserID   *uuid.UUID // nil for anonymous viewers
	hub      *Hub
	svc      *Service
	conn     *websocket.Conn
	send     chan WSMessage
	logger   *zap.Logger
}

// TokenValidator resolves a client token to a user ID.
type TokenValidator func(token string) (uuid.UUID, error)

// ServeWs handles the WebSocket upgrade and runs the client loop. The
// stream_id query parameter is required; token is optional (anonymous
// viewing is allowed).
func ServeWs(hub *Hub, svc *Service, validate TokenValidator, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		streamID, err := uuid.Parse(c.Query("stream_id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid stream_id"})
			return
		}

		var userID *uuid.UUID
		if token := c.Query("token"); token != "" {
			uid, err := validate(token)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
				return
			}
			userID = &uid
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		ctx := c.Request.Context()
		if err := svc.Validate(ctx, streamID, userID); err != nil {
			rejectAndClose(conn, err)
			return
		}

		client := &Client{
			ID:       uuid.New().String(),
			StreamID: streamID,
			UserID:   userID,
			hub:      hub,
			svc:      svc,
			conn:     conn,
			send:     make(chan WSMessage, 256),
			logger:   logger,
		}
		hub.Register(client)
		if _, _, err := svc.Join(ctx, streamID, userID); err != nil {
			logger.Warn("join bookkeeping failed", zap.String("stream_id", streamID.String()), zap.Error(err))
		}
		go client.writePump()
		client.readPump()
	}
}

// rejectAndClose sends an error event and closes a connection refused during
// validation.
func rejectAndClose(conn *websocket.Conn, err error) {
	msg := "connection rejected"
	if errors.Is(err, ErrStreamNotFound) || errors.Is(err, ErrStreamNotLive) || errors.Is(err, ErrUnknownUser) {
		msg = err.Error()
	}
	data, _ := json.Marshal(errorPayload{Message: msg})
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteJSON(WSMessage{Event: broadcast.EventError, Data: data})
	_ = conn.Close()
}

func (c *Client) readPump() {
	defer func() {
		// Teardown is unconditional: the hub entry and the counter must not
		// outlive the transport even if persistence fails mid-leave.
		c.hub.Unregister(c)
		c.svc.Leave(context.Background(), c.StreamID, c.UserID)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		switch msg.Event {
		case "ping":
			// liveness only, not broadcast
			c.hub.SendToClient(c.StreamID, c.ID, broadcast.EventPong, pongPayload{Timestamp: time.Now().Unix()})
		case "reaction":
			var r reactionMessage
			if err := json.Unmarshal(msg.Data, &r); err != nil {
				continue
			}
			if err := c.svc.React(context.Background(), c.StreamID, c.UserID, r.ReactionType); err != nil {
				// unknown kinds and transient failures are dropped silently
				c.logger.Debug("reaction dropped",
					zap.String("stream_id", c.StreamID.String()),
					zap.String("reaction_type", r.ReactionType),
					zap.Error(err))
			}
		default:
			// unknown events are ignored
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
