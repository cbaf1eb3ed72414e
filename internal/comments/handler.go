package comments

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

// CreateRequest is the body for POST /streams/:id/comments.
type CreateRequest struct {
	Content string `json:"content" binding:"required,max=500"`
}

// Handler handles comment HTTP endpoints.
type Handler struct {
	repo    *Repository
	streams *streams.Repository
	events  *broadcast.Broadcaster
	logger  *zap.Logger
}

// NewHandler creates a comments handler.
func NewHandler(repo *Repository, streamsRepo *streams.Repository, events *broadcast.Broadcaster, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, streams: streamsRepo, events: events, logger: logger}
}

// Create handles POST /streams/:id/comments.
func (h *Handler) Create(c *gin.Context) {
	streamID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid stream id")
		return
	}
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
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
	if !stream.Status.AcceptsViewers() {
		response.Conflict(c, "stream is not accepting comments")
		return
	}

	comment := &models.Comment{StreamID: streamID, UserID: uid, Content: req.Content}
	if err := h.repo.Create(c.Request.Context(), comment); err != nil {
		h.logger.Error("create comment", zap.Error(err))
		response.Internal(c, "failed to create comment")
		return
	}
	if err := h.streams.IncrementComments(c.Request.Context(), streamID); err != nil {
		h.logger.Warn("increment comments", zap.Error(err))
	}
	_ = h.events.NewComment(c.Request.Context(), streamID, comment)

	response.Created(c, comment)
}

// List handles GET /streams/:id/comments.
func (h *Handler) List(c *gin.Context) {
	streamID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid stream id")
		return
	}
	list, err := h.repo.ListByStream(c.Request.Context(), streamID, defaultListLimit)
	if err != nil {
		h.logger.Error("list comments", zap.Error(err))
		response.Internal(c, "failed to list comments")
		return
	}
	response.OK(c, list)
}
