package streams

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulsecast/live-backend/internal/broadcast"
	"github.com/pulsecast/live-backend/internal/gateway"
	"github.com/pulsecast/live-backend/internal/middleware"
	"github.com/pulsecast/live-backend/internal/models"
	"github.com/pulsecast/live-backend/pkg/response"
)

// Presence is the slice of the gateway service the REST join/leave/reaction
// endpoints drive. REST and WebSocket joins share it so counts stay
// consistent across both paths.
type Presence interface {
	Validate(ctx context.Context, streamID uuid.UUID, userID *uuid.UUID) error
	Join(ctx context.Context, streamID uuid.UUID, userID *uuid.UUID) (current, peak int, err error)
	Leave(ctx context.Context, streamID uuid.UUID, userID *uuid.UUID)
	React(ctx context.Context, streamID uuid.UUID, userID *uuid.UUID, kind string) error
}

// CreateRequest is the body for POST /streams. Omitting scheduled_at starts
// the stream live immediately.
type CreateRequest struct {
	Title       string     `json:"title" binding:"required,max=200"`
	Description string     `json:"description" binding:"max=2000"`
	ScheduledAt *time.Time `json:"scheduled_at"`
}

// ReactRequest is the body for POST /streams/:id/reactions.
type ReactRequest struct {
	ReactionType string `json:"reaction_type" binding:"required"`
}

// JoinResponse returns the counts after a join.
type JoinResponse struct {
	CurrentViewers int `json:"current_viewers"`
	PeakViewers    int `json:"peak_viewers"`
}

// Handler handles stream HTTP endpoints.
type Handler struct {
	repo     *Repository
	presence Presence
	events   *broadcast.Broadcaster
	logger   *zap.Logger
}

// NewHandler creates a streams handler.
func NewHandler(repo *Repository, presence Presence, events *broadcast.Broadcaster, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, presence: presence, events: events, logger: logger}
}

func callerID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(middleware.ContextUserID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

func isAdmin(c *gin.Context) bool {
	role, _ := c.Get(middleware.ContextUserRole)
	return role == "admin"
}

func streamID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid stream id")
		return uuid.Nil, false
	}
	return id, true
}

// Create handles POST /streams.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID, ok := callerID(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}
	if req.ScheduledAt != nil && req.ScheduledAt.Before(time.Now()) {
		response.BadRequest(c, "scheduled_at must be in the future")
		return
	}

	s := &models.Stream{
		UserID:      userID,
		Title:       req.Title,
		Description: req.Description,
		ScheduledAt: req.ScheduledAt,
	}
	if err := h.repo.Create(c.Request.Context(), s); err != nil {
		h.logger.Error("create stream", zap.Error(err))
		response.Internal(c, "failed to create stream")
		return
	}
	response.Created(c, s)
}

// Get handles GET /streams/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := streamID(c)
	if !ok {
		return
	}
	s, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get stream", zap.Error(err))
		response.Internal(c, "failed to load stream")
		return
	}
	if s == nil {
		response.NotFound(c, "stream not found")
		return
	}
	response.OK(c, s)
}

// List handles GET /streams?status=live.
func (h *Handler) List(c *gin.Context) {
	status := models.StreamStatus(c.DefaultQuery("status", string(models.StatusLive)))
	switch status {
	case models.StatusScheduled, models.StatusPreLive, models.StatusLive, models.StatusEnding, models.StatusEnded:
	default:
		response.BadRequest(c, "unknown status")
		return
	}
	list, err := h.repo.ListByStatus(c.Request.Context(), status)
	if err != nil {
		h.logger.Error("list streams", zap.Error(err))
		response.Internal(c, "failed to list streams")
		return
	}
	response.OK(c, list)
}

// loadOwned loads the stream and checks the caller owns it or is admin.
// Returns nil after writing the error response.
func (h *Handler) loadOwned(c *gin.Context) *models.Stream {
	id, ok := streamID(c)
	if !ok {
		return nil
	}
	s, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get stream", zap.Error(err))
		response.Internal(c, "failed to load stream")
		return nil
	}
	if s == nil {
		response.NotFound(c, "stream not found")
		return nil
	}
	userID, _ := callerID(c)
	if s.UserID != userID && !isAdmin(c) {
		response.Forbidden(c, "not the broadcaster")
		return nil
	}
	return s
}

// Start handles POST /streams/:id/start. Only a forward transition
// succeeds; anything else is a conflict.
func (h *Handler) Start(c *gin.Context) {
	s := h.loadOwned(c)
	if s == nil {
		return
	}
	moved, err := h.repo.Start(c.Request.Context(), s.ID)
	if err != nil {
		h.logger.Error("start stream", zap.Error(err))
		response.Internal(c, "failed to start stream")
		return
	}
	if !moved {
		response.Conflict(c, "stream cannot start from status "+string(s.Status))
		return
	}
	_ = h.events.StatusChanged(c.Request.Context(), s.ID, string(s.Status), string(models.StatusLive))

	updated, err := h.repo.GetByID(c.Request.Context(), s.ID)
	if err != nil || updated == nil {
		response.OK(c, s)
		return
	}
	response.OK(c, updated)
}

// End handles POST /streams/:id/end. The stream moves to ending; the
// finalize job completes the transition after the grace window.
func (h *Handler) End(c *gin.Context) {
	s := h.loadOwned(c)
	if s == nil {
		return
	}
	moved, err := h.repo.End(c.Request.Context(), s.ID)
	if err != nil {
		h.logger.Error("end stream", zap.Error(err))
		response.Internal(c, "failed to end stream")
		return
	}
	if !moved {
		response.Conflict(c, "stream cannot end from status "+string(s.Status))
		return
	}
	_ = h.events.StatusChanged(c.Request.Context(), s.ID, string(s.Status), string(models.StatusEnding))
	response.OK(c, gin.H{"status": models.StatusEnding})
}

// presenceUserID resolves the optional authenticated caller for presence
// calls. Anonymous viewers join with a nil user.
func presenceUserID(c *gin.Context) *uuid.UUID {
	id, ok := callerID(c)
	if !ok {
		return nil
	}
	return &id
}

// Join handles POST /streams/:id/join.
func (h *Handler) Join(c *gin.Context) {
	id, ok := streamID(c)
	if !ok {
		return
	}
	uid := presenceUserID(c)
	if err := h.presence.Validate(c.Request.Context(), id, uid); err != nil {
		h.writePresenceError(c, err)
		return
	}
	current, peak, err := h.presence.Join(c.Request.Context(), id, uid)
	if err != nil {
		h.logger.Error("join stream", zap.Error(err))
		response.Internal(c, "failed to join stream")
		return
	}
	response.OK(c, JoinResponse{CurrentViewers: current, PeakViewers: peak})
}

// Leave handles POST /streams/:id/leave.
func (h *Handler) Leave(c *gin.Context) {
	id, ok := streamID(c)
	if !ok {
		return
	}
	h.presence.Leave(c.Request.Context(), id, presenceUserID(c))
	response.NoContent(c)
}

// React handles POST /streams/:id/reactions.
func (h *Handler) React(c *gin.Context) {
	id, ok := streamID(c)
	if !ok {
		return
	}
	var req ReactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := h.presence.React(c.Request.Context(), id, presenceUserID(c), req.ReactionType); err != nil {
		h.writePresenceError(c, err)
		return
	}
	response.NoContent(c)
}

// Like handles POST /streams/:id/like.
func (h *Handler) Like(c *gin.Context) {
	id, ok := streamID(c)
	if !ok {
		return
	}
	if err := h.repo.IncrementLikes(c.Request.Context(), id); err != nil {
		h.logger.Error("increment likes", zap.Error(err))
		response.Internal(c, "failed to like stream")
		return
	}
	response.NoContent(c)
}

// Share handles POST /streams/:id/share.
func (h *Handler) Share(c *gin.Context) {
	id, ok := streamID(c)
	if !ok {
		return
	}
	if err := h.repo.IncrementShares(c.Request.Context(), id); err != nil {
		h.logger.Error("increment shares", zap.Error(err))
		response.Internal(c, "failed to record share")
		return
	}
	response.NoContent(c)
}

func (h *Handler) writePresenceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, gateway.ErrStreamNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, gateway.ErrStreamNotLive):
		response.Conflict(c, err.Error())
	case errors.Is(err, gateway.ErrUnknownUser):
		response.Unauthorized(c, err.Error())
	case errors.Is(err, gateway.ErrUnknownReaction):
		response.BadRequest(c, err.Error())
	default:
		h.logger.Error("presence call failed", zap.Error(err))
		response.Internal(c, "something went wrong")
	}
}
