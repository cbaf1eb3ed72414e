package counter

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type counts struct {
	current int
	peak    int
}

// MemoryStore is an in-process viewer counter. Used in tests and available
// as a single-instance fallback when Redis is not configured.
type MemoryStore struct {
	mu    sync.Mutex
	byID  map[uuid.UUID]*counts
	peaks PeakSink // optional
}

// NewMemoryStore creates an in-memory viewer counter.
func NewMemoryStore(peaks PeakSink) *MemoryStore {
	return &MemoryStore{byID: make(map[uuid.UUID]*counts), peaks: peaks}
}

func (s *MemoryStore) entry(streamID uuid.UUID) *counts {
	c, ok := s.byID[streamID]
	if !ok {
		c = &counts{}
		s.byID[streamID] = c
	}
	return c
}

// Increment adds one viewer and returns the new count.
func (s *MemoryStore) Increment(_ context.Context, streamID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.entry(streamID)
	c.current++
	return c.current, nil
}

// Decrement removes one viewer, flooring at 0.
func (s *MemoryStore) Decrement(_ context.Context, streamID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.entry(streamID)
	if c.current > 0 {
		c.current--
	}
	return c.current, nil
}

// Get returns the current count.
func (s *MemoryStore) Get(_ context.Context, streamID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entry(streamID).current, nil
}

// RaisePeak raises the peak to current if exceeded and returns the result.
func (s *MemoryStore) RaisePeak(ctx context.Context, streamID uuid.UUID, current int) (int, error) {
	s.mu.Lock()
	c := s.entry(streamID)
	raised := current > c.peak
	if raised {
		c.peak = current
	}
	peak := c.peak
	s.mu.Unlock()

	if raised && s.peaks != nil {
		_ = s.peaks.PersistPeak(ctx, streamID, peak)
	}
	return peak, nil
}

// Reconcile overwrites the count with an authoritative value.
func (s *MemoryStore) Reconcile(_ context.Context, streamID uuid.UUID, current int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry(streamID).current = current
	return nil
}
