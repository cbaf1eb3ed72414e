package viewers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pulsecast/live-backend/pkg/response"
)

// Handler handles GET /streams/:id/viewers.
type Handler struct {
	repo *Repository
}

// NewHandler creates a viewers handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// ListByStream handles GET /streams/:id/viewers (broadcaster/admin: session
// list with join times and watch durations).
func (h *Handler) ListByStream(c *gin.Context) {
	streamID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid stream id")
		return
	}
	list, err := h.repo.ListByStream(c.Request.Context(), streamID)
	if err != nil {
		response.Internal(c, "failed to list viewers")
		return
	}
	response.OK(c, gin.H{"viewers": list})
}
