package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pulsecast/live-backend/internal/analytics"
	"github.com/pulsecast/live-backend/internal/models"
	"github.com/pulsecast/live-backend/pkg/queue"
)

// --- pre-live fakes ---

type fakePreLiveStreams struct {
	due      []*models.Stream
	advanced map[uuid.UUID]bool // MarkPreLive result per stream
	marks    []uuid.UUID
	markErr  map[uuid.UUID]error
}

func (f *fakePreLiveStreams) ListScheduledWithin(context.Context, time.Duration) ([]*models.Stream, error) {
	return f.due, nil
}

func (f *fakePreLiveStreams) MarkPreLive(_ context.Context, id uuid.UUID) (bool, error) {
	if err := f.markErr[id]; err != nil {
		return false, err
	}
	f.marks = append(f.marks, id)
	return f.advanced[id], nil
}

type fakeSubscribers struct {
	ids      []uuid.UUID
	inserted int64
	inserts  int
}

func (f *fakeSubscribers) ListSubscriberIDs(context.Context, uuid.UUID) ([]uuid.UUID, error) {
	return f.ids, nil
}

func (f *fakeSubscribers) BulkInsertStartingSoon(_ context.Context, _ uuid.UUID, _ []uuid.UUID) (int64, error) {
	f.inserts++
	return f.inserted, nil
}

type fakeAlertQueue struct {
	payloads []queue.LiveAlertPayload
}

func (f *fakeAlertQueue) EnqueueLiveAlert(_ context.Context, p queue.LiveAlertPayload) error {
	f.payloads = append(f.payloads, p)
	return nil
}

type fakeEvents struct {
	statusChanges int
	viewerCounts  []int
	peaks         []int
	ended         []int64
}

func (f *fakeEvents) StatusChanged(context.Context, uuid.UUID, string, string) error {
	f.statusChanges++
	return nil
}

func (f *fakeEvents) ViewerCount(_ context.Context, _ uuid.UUID, current, peak int) error {
	f.viewerCounts = append(f.viewerCounts, current)
	f.peaks = append(f.peaks, peak)
	return nil
}

func (f *fakeEvents) StreamEnded(_ context.Context, _ uuid.UUID, duration int64) error {
	f.ended = append(f.ended, duration)
	return nil
}

func scheduledStream() *models.Stream {
	return &models.Stream{ID: uuid.New(), UserID: uuid.New(), Status: models.StatusScheduled}
}

func TestPreLiveJobAdvancesAndAlertsOnce(t *testing.T) {
	s := scheduledStream()
	streams := &fakePreLiveStreams{
		due:      []*models.Stream{s},
		advanced: map[uuid.UUID]bool{s.ID: true},
	}
	subs := &fakeSubscribers{ids: []uuid.UUID{uuid.New(), uuid.New()}, inserted: 2}
	alerts := &fakeAlertQueue{}
	events := &fakeEvents{}

	job := NewPreLiveJob(streams, subs, alerts, events, 30*time.Minute, zap.NewNop())
	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, 1, events.statusChanges)
	assert.Equal(t, 1, subs.inserts)
	require.Len(t, alerts.payloads, 1)
	assert.Equal(t, s.ID, alerts.payloads[0].StreamID)
	assert.Equal(t, s.UserID, alerts.payloads[0].BroadcasterID)
	assert.Equal(t, int64(2), alerts.payloads[0].NotificationCount)

	// A second run finds the stream already past scheduled: no second round
	// of status events or notifications.
	streams.advanced[s.ID] = false
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, events.statusChanges)
	assert.Equal(t, 1, subs.inserts)
	assert.Len(t, alerts.payloads, 1)
}

func TestPreLiveJobSkipsAlertWhenNoSubscribers(t *testing.T) {
	s := scheduledStream()
	streams := &fakePreLiveStreams{
		due:      []*models.Stream{s},
		advanced: map[uuid.UUID]bool{s.ID: true},
	}
	subs := &fakeSubscribers{}
	alerts := &fakeAlertQueue{}

	job := NewPreLiveJob(streams, subs, alerts, &fakeEvents{}, 30*time.Minute, zap.NewNop())
	require.NoError(t, job.Run(context.Background()))

	assert.Zero(t, subs.inserts)
	assert.Empty(t, alerts.payloads)
}

func TestPreLiveJobSkipsAlertWhenAllNotificationsDeduped(t *testing.T) {
	s := scheduledStream()
	streams := &fakePreLiveStreams{
		due:      []*models.Stream{s},
		advanced: map[uuid.UUID]bool{s.ID: true},
	}
	subs := &fakeSubscribers{ids: []uuid.UUID{uuid.New()}, inserted: 0}
	alerts := &fakeAlertQueue{}

	job := NewPreLiveJob(streams, subs, alerts, &fakeEvents{}, 30*time.Minute, zap.NewNop())
	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, 1, subs.inserts)
	assert.Empty(t, alerts.payloads)
}

func TestPreLiveJobIsolatesPerStreamFailures(t *testing.T) {
	bad := scheduledStream()
	good := scheduledStream()
	streams := &fakePreLiveStreams{
		due:      []*models.Stream{bad, good},
		advanced: map[uuid.UUID]bool{good.ID: true},
		markErr:  map[uuid.UUID]error{bad.ID: errors.New("db down")},
	}
	subs := &fakeSubscribers{ids: []uuid.UUID{uuid.New()}, inserted: 1}
	alerts := &fakeAlertQueue{}

	job := NewPreLiveJob(streams, subs, alerts, &fakeEvents{}, 30*time.Minute, zap.NewNop())
	require.NoError(t, job.Run(context.Background()))

	// The failing stream did not block the healthy one.
	require.Len(t, alerts.payloads, 1)
	assert.Equal(t, good.ID, alerts.payloads[0].StreamID)
}

// --- viewer count fakes ---

type fakeLiveStreams struct {
	live      []*models.Stream
	setCounts map[uuid.UUID]int
}

func (f *fakeLiveStreams) ListByStatus(context.Context, models.StreamStatus) ([]*models.Stream, error) {
	return f.live, nil
}

func (f *fakeLiveStreams) SetViewerCounts(_ context.Context, id uuid.UUID, current int) error {
	if f.setCounts == nil {
		f.setCounts = map[uuid.UUID]int{}
	}
	f.setCounts[id] = current
	return nil
}

type fakeWatching struct {
	counts map[uuid.UUID]int
	errs   map[uuid.UUID]error
}

func (f *fakeWatching) CountWatching(_ context.Context, id uuid.UUID) (int, error) {
	if err := f.errs[id]; err != nil {
		return 0, err
	}
	return f.counts[id], nil
}

type fakeCache struct {
	reconciled map[uuid.UUID]int
}

func (f *fakeCache) Reconcile(_ context.Context, id uuid.UUID, current int) error {
	if f.reconciled == nil {
		f.reconciled = map[uuid.UUID]int{}
	}
	f.reconciled[id] = current
	return nil
}

type fakeSampler struct {
	samples []*models.Stream
}

func (f *fakeSampler) Snapshot(_ context.Context, s *models.Stream) error {
	copied := *s
	f.samples = append(f.samples, &copied)
	return nil
}

func TestViewerCountJobReconcilesAndBroadcasts(t *testing.T) {
	s := &models.Stream{ID: uuid.New(), Status: models.StatusLive, PeakViewers: 10}
	streams := &fakeLiveStreams{live: []*models.Stream{s}}
	watching := &fakeWatching{counts: map[uuid.UUID]int{s.ID: 17}}
	cache := &fakeCache{}
	sampler := &fakeSampler{}
	events := &fakeEvents{}

	job := NewViewerCountJob(streams, watching, cache, sampler, events, zap.NewNop())
	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, 17, cache.reconciled[s.ID])
	assert.Equal(t, 17, streams.setCounts[s.ID])

	require.Len(t, sampler.samples, 1)
	assert.Equal(t, 17, sampler.samples[0].ViewersCount)

	require.Len(t, events.viewerCounts, 1)
	assert.Equal(t, 17, events.viewerCounts[0])
	// The recount exceeded the stored peak, so the broadcast carries it.
	assert.Equal(t, 17, events.peaks[0])
}

func TestViewerCountJobKeepsHigherStoredPeak(t *testing.T) {
	s := &models.Stream{ID: uuid.New(), Status: models.StatusLive, PeakViewers: 40}
	streams := &fakeLiveStreams{live: []*models.Stream{s}}
	watching := &fakeWatching{counts: map[uuid.UUID]int{s.ID: 5}}
	events := &fakeEvents{}

	job := NewViewerCountJob(streams, watching, &fakeCache{}, &fakeSampler{}, events, zap.NewNop())
	require.NoError(t, job.Run(context.Background()))

	require.Len(t, events.peaks, 1)
	assert.Equal(t, 40, events.peaks[0])
}

func TestViewerCountJobIsolatesPerStreamFailures(t *testing.T) {
	bad := &models.Stream{ID: uuid.New(), Status: models.StatusLive}
	good := &models.Stream{ID: uuid.New(), Status: models.StatusLive}
	streams := &fakeLiveStreams{live: []*models.Stream{bad, good}}
	watching := &fakeWatching{
		counts: map[uuid.UUID]int{good.ID: 3},
		errs:   map[uuid.UUID]error{bad.ID: errors.New("db down")},
	}

	job := NewViewerCountJob(streams, watching, &fakeCache{}, &fakeSampler{}, &fakeEvents{}, zap.NewNop())
	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, 3, streams.setCounts[good.ID])
	_, touched := streams.setCounts[bad.ID]
	assert.False(t, touched)
}

// --- finalize fakes ---

type fakeEndingStreams struct {
	ending    []*models.Stream
	cutoff    time.Time
	finalized map[uuid.UUID]bool // Finalize result per stream
	durations map[uuid.UUID]int64
}

func (f *fakeEndingStreams) ListEndingBefore(_ context.Context, cutoff time.Time) ([]*models.Stream, error) {
	f.cutoff = cutoff
	return f.ending, nil
}

func (f *fakeEndingStreams) Finalize(_ context.Context, id uuid.UUID, duration int64) (bool, error) {
	if f.durations == nil {
		f.durations = map[uuid.UUID]int64{}
	}
	f.durations[id] = duration
	return f.finalized[id], nil
}

type fakeSessions struct {
	closed map[uuid.UUID]int
}

func (f *fakeSessions) CloseAll(_ context.Context, id uuid.UUID) (int64, error) {
	if f.closed == nil {
		f.closed = map[uuid.UUID]int{}
	}
	f.closed[id]++
	return 2, nil
}

type fakeSummarizer struct {
	finals []*models.Stream
}

func (f *fakeSummarizer) Final(_ context.Context, s *models.Stream) (*analytics.FinalSummary, error) {
	copied := *s
	f.finals = append(f.finals, &copied)
	return &analytics.FinalSummary{Type: "final"}, nil
}

func TestFinalizeJobCompletesEndingStream(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ended := started.Add(90 * time.Minute)
	now := ended.Add(10 * time.Second)

	s := &models.Stream{
		ID:        uuid.New(),
		Status:    models.StatusEnding,
		StartedAt: &started,
		EndedAt:   &ended,
	}
	streams := &fakeEndingStreams{
		ending:    []*models.Stream{s},
		finalized: map[uuid.UUID]bool{s.ID: true},
	}
	sessions := &fakeSessions{}
	cache := &fakeCache{}
	summarizer := &fakeSummarizer{}
	events := &fakeEvents{}

	job := NewFinalizeJob(streams, sessions, cache, summarizer, events, 5*time.Second, zap.NewNop())
	job.now = func() time.Time { return now }
	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, now.Add(-5*time.Second), streams.cutoff)
	assert.Equal(t, int64(5400), streams.durations[s.ID])
	assert.Equal(t, 1, sessions.closed[s.ID])
	assert.Equal(t, 0, cache.reconciled[s.ID])

	require.Len(t, summarizer.finals, 1)
	assert.Equal(t, int64(5400), summarizer.finals[0].Duration)
	assert.Zero(t, summarizer.finals[0].ViewersCount)

	require.Len(t, events.ended, 1)
	assert.Equal(t, int64(5400), events.ended[0])
}

func TestFinalizeJobRunsEffectsOnce(t *testing.T) {
	s := &models.Stream{ID: uuid.New(), Status: models.StatusEnding}
	streams := &fakeEndingStreams{
		ending:    []*models.Stream{s},
		finalized: map[uuid.UUID]bool{s.ID: true},
	}
	sessions := &fakeSessions{}
	summarizer := &fakeSummarizer{}
	events := &fakeEvents{}

	job := NewFinalizeJob(streams, sessions, &fakeCache{}, summarizer, events, 5*time.Second, zap.NewNop())
	require.NoError(t, job.Run(context.Background()))

	// The second run loses the status guard and must skip every effect.
	streams.finalized[s.ID] = false
	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, 1, sessions.closed[s.ID])
	assert.Len(t, summarizer.finals, 1)
	assert.Len(t, events.ended, 1)
}

func TestFinalizeJobZeroDurationWhenNeverLive(t *testing.T) {
	s := &models.Stream{ID: uuid.New(), Status: models.StatusEnding}
	streams := &fakeEndingStreams{
		ending:    []*models.Stream{s},
		finalized: map[uuid.UUID]bool{s.ID: true},
	}

	job := NewFinalizeJob(streams, &fakeSessions{}, &fakeCache{}, &fakeSummarizer{}, &fakeEvents{}, 5*time.Second, zap.NewNop())
	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, int64(0), streams.durations[s.ID])
}

func TestSchedulerSkipsOverlappingTicks(t *testing.T) {
	var runs atomic.Int32
	job := &Job{
		Name:     "slow",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			select {
			case <-time.After(60 * time.Millisecond):
			case <-ctx.Done():
			}
			return nil
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	New(zap.NewNop(), job).Run(ctx)

	// Roughly ten ticks fired, but each run holds the lock long enough to
	// swallow most of them.
	count := runs.Load()
	assert.GreaterOrEqual(t, count, int32(1))
	assert.LessOrEqual(t, count, int32(4))
}
