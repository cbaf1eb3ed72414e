package analytics

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulsecast/live-backend/internal/middleware"
	"github.com/pulsecast/live-backend/internal/models"
	"github.com/pulsecast/live-backend/internal/streams"
	"github.com/pulsecast/live-backend/pkg/response"
)

// SummaryPresigner issues a time-limited download URL for an archived
// summary. Optional.
type SummaryPresigner interface {
	PresignSummaryURL(ctx context.Context, streamID uuid.UUID) (string, error)
}

// Handler handles analytics HTTP endpoints.
type Handler struct {
	repo    *Repository
	streams *streams.Repository
	presign SummaryPresigner // nil when no archive is configured
	logger  *zap.Logger
}

// NewHandler creates an analytics handler. presign may be nil.
func NewHandler(repo *Repository, streamsRepo *streams.Repository, presign SummaryPresigner, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, streams: streamsRepo, presign: presign, logger: logger}
}

// authorizeStream loads the stream and checks that the caller owns it or
// holds the admin role. Returns nil after writing the error response.
func (h *Handler) authorizeStream(c *gin.Context) *models.Stream {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid stream id")
		return nil
	}
	stream, err := h.streams.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get stream", zap.Error(err))
		response.Internal(c, "failed to load stream")
		return nil
	}
	if stream == nil {
		response.NotFound(c, "stream not found")
		return nil
	}
	userID, _ := c.Get(middleware.ContextUserID)
	role, _ := c.Get(middleware.ContextUserRole)
	if stream.UserID != userID && role != "admin" {
		response.Forbidden(c, "not allowed to view analytics for this stream")
		return nil
	}
	return stream
}

// ListSnapshots handles GET /streams/:id/analytics/snapshots.
func (h *Handler) ListSnapshots(c *gin.Context) {
	stream := h.authorizeStream(c)
	if stream == nil {
		return
	}
	snapshots, err := h.repo.ListByStream(c.Request.Context(), stream.ID)
	if err != nil {
		h.logger.Error("list snapshots", zap.Error(err))
		response.Internal(c, "failed to list snapshots")
		return
	}
	response.OK(c, snapshots)
}

// GetSummary handles GET /streams/:id/analytics/summary. Returns the final
// summary snapshot, plus a presigned archive URL when archiving is on.
func (h *Handler) GetSummary(c *gin.Context) {
	stream := h.authorizeStream(c)
	if stream == nil {
		return
	}
	final, err := h.repo.GetFinal(c.Request.Context(), stream.ID)
	if err != nil {
		h.logger.Error("get final summary", zap.Error(err))
		response.Internal(c, "failed to load summary")
		return
	}
	if final == nil {
		response.NotFound(c, "summary not available yet")
		return
	}

	out := gin.H{"stream": stream, "summary": final}
	if h.presign != nil {
		url, perr := h.presign.PresignSummaryURL(c.Request.Context(), stream.ID)
		if perr != nil {
			h.logger.Warn("presign summary url", zap.Error(perr))
		} else {
			out["archive_url"] = url
		}
	}
	response.OK(c, out)
}
