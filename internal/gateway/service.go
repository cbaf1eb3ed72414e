// Package gateway handles the WebSocket viewer lifecycle: connect
// validation, presence bookkeeping, and client-sent events. The REST join/
// leave/reaction endpoints drive the same Service so both paths produce
// consistent counts.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulsecast/live-backend/internal/counter"
	"github.com/pulsecast/live-backend/internal/models"
)

// Rejection errors surfaced to connecting clients. Infrastructure failures
// never reach this set; they are logged and degraded instead.
var (
	ErrStreamNotFound  = errors.New("stream not found")
	ErrStreamNotLive   = errors.New("stream is not accepting viewers")
	ErrUnknownUser     = errors.New("unknown user")
	ErrUnknownReaction = errors.New("unknown reaction type")
)

// AllowedReactions is the fixed set of reaction kinds clients may send.
var AllowedReactions = map[string]struct{}{
	"heart": {}, "fire": {}, "love": {}, "wow": {}, "clap": {}, "laugh": {},
}

// StreamStore is the slice of the streams repository the gateway needs.
type StreamStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Stream, error)
	IncrementTotalViewers(ctx context.Context, id uuid.UUID) error
	IncrementReaction(ctx context.Context, id uuid.UUID, kind string) error
}

// ViewerStore opens and closes durable viewing sessions.
type ViewerStore interface {
	Open(ctx context.Context, streamID, userID uuid.UUID) (bool, error)
	Close(ctx context.Context, streamID, userID uuid.UUID) error
}

// UserDirectory checks user existence for connecting viewers and reaction
// senders.
type UserDirectory interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// Events is the slice of the broadcaster the gateway publishes through.
type Events interface {
	ViewerCount(ctx context.Context, streamID uuid.UUID, current, peak int) error
	Reaction(ctx context.Context, streamID uuid.UUID, userID *uuid.UUID, kind string) error
}

// Service implements the viewer lifecycle against the durable store, the
// fast counter and the broadcaster.
type Service struct {
	streams StreamStore
	viewers ViewerStore
	users   UserDirectory
	counter counter.Store
	events  Events
	logger  *zap.Logger
}

// NewService creates a gateway service.
func NewService(streams StreamStore, viewers ViewerStore, users UserDirectory, ctr counter.Store, events Events, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{streams: streams, viewers: viewers, users: users, counter: ctr, events: events, logger: logger}
}

// Validate checks that the stream accepts viewers and, when a user is
// supplied, that the user exists. Returns a rejection error otherwise.
func (s *Service) Validate(ctx context.Context, streamID uuid.UUID, userID *uuid.UUID) error {
	st, err := s.streams.GetByID(ctx, streamID)
	if err != nil {
		return fmt.Errorf("load stream: %w", err)
	}
	if st == nil {
		return ErrStreamNotFound
	}
	if !st.Status.AcceptsViewers() {
		return ErrStreamNotLive
	}
	if userID != nil {
		ok, err := s.users.Exists(ctx, *userID)
		if err != nil {
			return fmt.Errorf("check user: %w", err)
		}
		if !ok {
			return ErrUnknownUser
		}
	}
	return nil
}

// Join records a viewer joining: opens the durable session for known users
// (bumping total_viewers on a fresh session), increments the fast counter,
// raises the peak, and broadcasts the new count. Persistence and broadcast
// failures after validation are best-effort.
func (s *Service) Join(ctx context.Context, streamID uuid.UUID, userID *uuid.UUID) (current, peak int, err error) {
	if userID != nil {
		created, oerr := s.viewers.Open(ctx, streamID, *userID)
		if oerr != nil {
			s.logger.Warn("open viewer session failed",
				zap.String("stream_id", streamID.String()), zap.Error(oerr))
		} else if created {
			if ierr := s.streams.IncrementTotalViewers(ctx, streamID); ierr != nil {
				s.logger.Warn("increment total viewers failed",
					zap.String("stream_id", streamID.String()), zap.Error(ierr))
			}
		}
	}

	current, err = s.counter.Increment(ctx, streamID)
	if err != nil {
		s.logger.Warn("viewer counter unavailable",
			zap.String("stream_id", streamID.String()), zap.Error(err))
		return 0, 0, nil
	}
	peak, err = s.counter.RaisePeak(ctx, streamID, current)
	if err != nil || peak < current {
		peak = current
	}
	_ = s.events.ViewerCount(ctx, streamID, current, peak)
	return current, peak, nil
}

// Leave records a viewer leaving: decrements the fast counter, broadcasts
// the new count, and closes the durable session for known users. All steps
// are best-effort; transport teardown must never hang on them.
func (s *Service) Leave(ctx context.Context, streamID uuid.UUID, userID *uuid.UUID) {
	current, err := s.counter.Decrement(ctx, streamID)
	if err != nil {
		s.logger.Warn("viewer counter unavailable",
			zap.String("stream_id", streamID.String()), zap.Error(err))
	} else {
		peak, perr := s.counter.RaisePeak(ctx, streamID, current)
		if perr != nil || peak < current {
			peak = current
		}
		_ = s.events.ViewerCount(ctx, streamID, current, peak)
	}

	if userID != nil {
		if cerr := s.viewers.Close(ctx, streamID, *userID); cerr != nil {
			s.logger.Warn("close viewer session failed",
				zap.String("stream_id", streamID.String()), zap.Error(cerr))
		}
	}
}

// React validates the reaction kind and sender, bumps the stream's per-kind
// reaction counter, and broadcasts the reaction. Unknown kinds and unknown
// users are rejection errors; callers on the WebSocket path drop them
// silently, the REST path surfaces them.
func (s *Service) React(ctx context.Context, streamID uuid.UUID, userID *uuid.UUID, kind string) error {
	if _, ok := AllowedReactions[kind]; !ok {
		return ErrUnknownReaction
	}
	if userID != nil {
		ok, err := s.users.Exists(ctx, *userID)
		if err != nil {
			return fmt.Errorf("check user: %w", err)
		}
		if !ok {
			return ErrUnknownUser
		}
	}
	if err := s.streams.IncrementReaction(ctx, streamID, kind); err != nil {
		return fmt.Errorf("increment reaction: %w", err)
	}
	_ = s.events.Reaction(ctx, streamID, userID, kind)
	return nil
}
