package gifts

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulsecast/live-backend/internal/broadcast"
	"github.com/pulsecast/live-backend/internal/middleware"
	"github.com/pulsecast/live-backend/internal/models"
	"github.com/pulsecast/live-backend/internal/streams"
	"github.com/pulsecast/live-backend/pkg/response"
)

const defaultListLimit = 100

// SendRequest is the body for POST /streams/:id/gifts.
type SendRequest struct {
	GiftType string `json:"gift_type" binding:"required"`
}

// Handler handles gift HTTP endpoints.
type Handler struct {
	repo    *Repository
	streams *streams.Repository
	events  *broadcast.Broadcaster
	logger  *zap.Logger
}

// NewHandler creates a gifts handler.
func NewHandler(repo *Repository, streamsRepo *streams.Repository, events *broadcast.Broadcaster, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, streams: streamsRepo, events: events, logger: logger}
}

// Send handles POST /streams/:id/gifts.
func (h *Handler) Send(c *gin.Context) {
	streamID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid stream id")
		return
	}
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	value, known := Catalog[req.GiftType]
	if !known {
		response.BadRequest(c, "unknown gift type")
		return
	}
	userID, _ := c.Get(middleware.ContextUserID)
	uid, ok := userID.(uuid.UUID)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}

	stream, err := h.streams.GetByID(c.Request.Context(), streamID)
	if err != nil {
		h.logger.Error("get stream", zap.Error(err))
		response.Internal(c, "failed to load stream")
		return
	}
	if stream == nil {
		response.NotFound(c, "stream not found")
		return
	}
	if stream.Status != models.StatusLive {
		response.Conflict(c, "stream is not live")
		return
	}

	gift := &models.Gift{StreamID: streamID, UserID: uid, GiftType: req.GiftType, Value: value}
	if err := h.repo.Create(c.Request.Context(), gift); err != nil {
		h.logger.Error("create gift", zap.Error(err))
		response.Internal(c, "failed to send gift")
		return
	}
	if err := h.streams.AddGift(c.Request.Context(), streamID, value); err != nil {
		h.logger.Warn("add gift counters", zap.Error(err))
	}
	_ = h.events.GiftSent(c.Request.Context(), streamID, gift)

	response.Created(c, gift)
}

// List handles GET /streams/:id/gifts.
func (h *Handler) List(c *gin.Context) {
	streamID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid stream id")
		return
	}
	list, err := h.repo.ListByStream(c.Request.Context(), streamID, defaultListLimit)
	if err != nil {
		h.logger.Error("list gifts", zap.Error(err))
		response.Internal(c, "failed to list gifts")
		return
	}
	response.OK(c, list)
}
