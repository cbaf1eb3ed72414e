package gateway

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsecast/live-backend/internal/counter"
	"github.com/pulsecast/live-backend/internal/models"
)

type fakeStreams struct {
	mu        sync.Mutex
	byID      map[uuid.UUID]*models.Stream
	reactions map[string]int
}

func newFakeStreams(list ...*models.Stream) *fakeStreams {
	f := &fakeStreams{byID: make(map[uuid.UUID]*models.Stream), reactions: make(map[string]int)}
	for _, s := range list {
		f.byID[s.ID] = s
	}
	return f
}

func (f *fakeStreams) GetByID(_ context.Context, id uuid.UUID) (*models.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id], nil
}

func (f *fakeStreams) IncrementTotalViewers(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s := f.byID[id]; s != nil {
		s.TotalViewers++
	}
	return nil
}

func (f *fakeStreams) IncrementReaction(_ context.Context, id uuid.UUID, kind string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions[kind]++
	if s := f.byID[id]; s != nil {
		if s.ReactionCounts == nil {
			s.ReactionCounts = make(map[string]int)
		}
		s.ReactionCounts[kind]++
	}
	return nil
}

type openSession struct {
	joined bool
}

type fakeViewers struct {
	mu   sync.Mutex
	open map[uuid.UUID]map[uuid.UUID]*openSession
	// closed counts sessions that were opened and then closed
	closed int
}

func newFakeViewers() *fakeViewers {
	return &fakeViewers{open: make(map[uuid.UUID]map[uuid.UUID]*openSession)}
}

func (f *fakeViewers) Open(_ context.Context, streamID, userID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.open[streamID] == nil {
		f.open[streamID] = make(map[uuid.UUID]*openSession)
	}
	if _, ok := f.open[streamID][userID]; ok {
		return false, nil
	}
	f.open[streamID][userID] = &openSession{joined: true}
	return true, nil
}

func (f *fakeViewers) Close(_ context.Context, streamID, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.open[streamID][userID]; ok {
		delete(f.open[streamID], userID)
		f.closed++
	}
	return nil
}

type fakeUsers struct {
	known map[uuid.UUID]bool
}

func (f *fakeUsers) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	return f.known[id], nil
}

type publishedEvent struct {
	event   string
	current int
	peak    int
	kind    string
}

type fakeEvents struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (f *fakeEvents) ViewerCount(_ context.Context, _ uuid.UUID, current, peak int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, publishedEvent{event: "viewer_count_updated", current: current, peak: peak})
	return nil
}

func (f *fakeEvents) Reaction(_ context.Context, _ uuid.UUID, _ *uuid.UUID, kind string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, publishedEvent{event: "reaction", kind: kind})
	return nil
}

func (f *fakeEvents) byName(name string) []publishedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []publishedEvent
	for _, e := range f.events {
		if e.event == name {
			out = append(out, e)
		}
	}
	return out
}

func newTestService(t *testing.T, st *models.Stream, users ...uuid.UUID) (*Service, *fakeStreams, *fakeViewers, *fakeEvents) {
	t.Helper()
	streams := newFakeStreams(st)
	viewers := newFakeViewers()
	known := make(map[uuid.UUID]bool)
	for _, u := range users {
		known[u] = true
	}
	events := &fakeEvents{}
	svc := NewService(streams, viewers, &fakeUsers{known: known}, counter.NewMemoryStore(nil), events, nil)
	return svc, streams, viewers, events
}

func liveStream() *models.Stream {
	return &models.Stream{ID: uuid.New(), UserID: uuid.New(), Status: models.StatusLive}
}

func TestValidateRejectsUnknownStream(t *testing.T) {
	svc, _, _, _ := newTestService(t, liveStream())
	err := svc.Validate(context.Background(), uuid.New(), nil)
	assert.ErrorIs(t, err, ErrStreamNotFound)
}

func TestValidateRejectsInactiveStream(t *testing.T) {
	for _, status := range []models.StreamStatus{models.StatusScheduled, models.StatusEnding, models.StatusEnded} {
		st := liveStream()
		st.Status = status
		svc, _, _, _ := newTestService(t, st)
		err := svc.Validate(context.Background(), st.ID, nil)
		assert.ErrorIs(t, err, ErrStreamNotLive, "status %s", status)
	}
}

func TestValidateRejectsUnknownUser(t *testing.T) {
	st := liveStream()
	svc, _, _, _ := newTestService(t, st)
	unknown := uuid.New()
	err := svc.Validate(context.Background(), st.ID, &unknown)
	assert.ErrorIs(t, err, ErrUnknownUser)
}

func TestValidateAllowsAnonymous(t *testing.T) {
	st := liveStream()
	st.Status = models.StatusPreLive
	svc, _, _, _ := newTestService(t, st)
	assert.NoError(t, svc.Validate(context.Background(), st.ID, nil))
}

func TestJoinThenLeave(t *testing.T) {
	ctx := context.Background()
	st := liveStream()
	user := uuid.New()
	svc, streams, viewers, events := newTestService(t, st, user)

	current, peak, err := svc.Join(ctx, st.ID, &user)
	require.NoError(t, err)
	assert.Equal(t, 1, current)
	assert.Equal(t, 1, peak)
	assert.Equal(t, 1, streams.byID[st.ID].TotalViewers)

	svc.Leave(ctx, st.ID, &user)
	assert.Equal(t, 1, viewers.closed)

	updates := events.byName("viewer_count_updated")
	require.Len(t, updates, 2)
	assert.Equal(t, 1, updates[0].current)
	assert.Equal(t, 0, updates[1].current)
	assert.Equal(t, 1, updates[1].peak, "peak must not drop on leave")
}

func TestJoinTwiceDoesNotDoubleCountTotal(t *testing.T) {
	ctx := context.Background()
	st := liveStream()
	user := uuid.New()
	svc, streams, _, _ := newTestService(t, st, user)

	_, _, err := svc.Join(ctx, st.ID, &user)
	require.NoError(t, err)
	_, _, err = svc.Join(ctx, st.ID, &user)
	require.NoError(t, err)

	assert.Equal(t, 1, streams.byID[st.ID].TotalViewers, "open session already exists")
}

func TestThreeJoinsOneLeaveHoldsInvariant(t *testing.T) {
	ctx := context.Background()
	st := liveStream()
	users := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	svc, streams, _, events := newTestService(t, st, users...)

	for _, u := range users {
		u := u
		_, _, err := svc.Join(ctx, st.ID, &u)
		require.NoError(t, err)
	}
	svc.Leave(ctx, st.ID, &users[0])

	s := streams.byID[st.ID]
	assert.Equal(t, 3, s.TotalViewers)

	updates := events.byName("viewer_count_updated")
	require.Len(t, updates, 4)
	last := updates[len(updates)-1]
	assert.Equal(t, 2, last.current)
	assert.Equal(t, 3, last.peak)
	assert.LessOrEqual(t, last.current, last.peak)
	assert.LessOrEqual(t, last.peak, s.TotalViewers)
}

func TestReactAllowedKind(t *testing.T) {
	ctx := context.Background()
	st := liveStream()
	user := uuid.New()
	svc, streams, _, events := newTestService(t, st, user)

	require.NoError(t, svc.React(ctx, st.ID, &user, "fire"))
	assert.Equal(t, 1, streams.reactions["fire"])
	require.Len(t, events.byName("reaction"), 1)
	assert.Equal(t, "fire", events.byName("reaction")[0].kind)
}

func TestReactUnknownKindDropped(t *testing.T) {
	ctx := context.Background()
	st := liveStream()
	user := uuid.New()
	svc, streams, _, events := newTestService(t, st, user)

	err := svc.React(ctx, st.ID, &user, "skull")
	assert.ErrorIs(t, err, ErrUnknownReaction)
	assert.Empty(t, streams.reactions)
	assert.Empty(t, events.byName("reaction"))
}

func TestReactUnknownUserRejected(t *testing.T) {
	ctx := context.Background()
	st := liveStream()
	svc, streams, _, _ := newTestService(t, st)
	unknown := uuid.New()

	err := svc.React(ctx, st.ID, &unknown, "heart")
	assert.ErrorIs(t, err, ErrUnknownUser)
	assert.Empty(t, streams.reactions)
}
