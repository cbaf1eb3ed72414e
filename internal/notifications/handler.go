package notifications

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulsecast/live-backend/internal/middleware"
	"github.com/pulsecast/live-backend/pkg/response"
)

const defaultListLimit = 50

// Handler handles live alert subscription endpoints.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates a notifications handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

func callerID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(middleware.ContextUserID)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return uuid.Nil, false
	}
	return id, true
}

// Subscribe handles POST /broadcasters/:id/alerts.
func (h *Handler) Subscribe(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	broadcasterID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid broadcaster id")
		return
	}
	if broadcasterID == userID {
		response.BadRequest(c, "cannot subscribe to yourself")
		return
	}
	if err := h.repo.Subscribe(c.Request.Context(), broadcasterID, userID); err != nil {
		h.logger.Error("subscribe", zap.Error(err))
		response.Internal(c, "failed to subscribe")
		return
	}
	response.NoContent(c)
}

// Unsubscribe handles DELETE /broadcasters/:id/alerts.
func (h *Handler) Unsubscribe(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	broadcasterID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid broadcaster id")
		return
	}
	if err := h.repo.Unsubscribe(c.Request.Context(), broadcasterID, userID); err != nil {
		h.logger.Error("unsubscribe", zap.Error(err))
		response.Internal(c, "failed to unsubscribe")
		return
	}
	response.NoContent(c)
}

// ListMine handles GET /notifications.
func (h *Handler) ListMine(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	list, err := h.repo.ListForUser(c.Request.Context(), userID, defaultListLimit)
	if err != nil {
		h.logger.Error("list notifications", zap.Error(err))
		response.Internal(c, "failed to list notifications")
		return
	}
	response.OK(c, list)
}
