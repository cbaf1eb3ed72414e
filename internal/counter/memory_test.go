package counter

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type peakRecorder struct {
	mu    sync.Mutex
	peaks map[uuid.UUID]int
}

func newPeakRecorder() *peakRecorder {
	return &peakRecorder{peaks: make(map[uuid.UUID]int)}
}

func (p *peakRecorder) PersistPeak(_ context.Context, streamID uuid.UUID, peak int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if peak > p.peaks[streamID] {
		p.peaks[streamID] = peak
	}
	return nil
}

func TestDecrementFloorsAtZero(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(nil)
	id := uuid.New()

	n, err := s.Decrement(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = s.Increment(ctx, id)
	require.NoError(t, err)
	n, err = s.Decrement(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// second decrement is a spurious double-disconnect
	n, err = s.Decrement(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRaisePeakRatchets(t *testing.T) {
	ctx := context.Background()
	rec := newPeakRecorder()
	s := NewMemoryStore(rec)
	id := uuid.New()

	peak, err := s.RaisePeak(ctx, id, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, peak)

	// lower current never lowers peak
	peak, err = s.RaisePeak(ctx, id, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, peak)

	peak, err = s.RaisePeak(ctx, id, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, peak)
	assert.Equal(t, 5, rec.peaks[id])
}

func TestConcurrentIncrementsAndPeak(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(nil)
	id := uuid.New()

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cur, err := s.Increment(ctx, id)
			assert.NoError(t, err)
			_, err = s.RaisePeak(ctx, id, cur)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	cur, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, n, cur)

	peak, err := s.RaisePeak(ctx, id, 0)
	require.NoError(t, err)
	assert.Equal(t, n, peak)
}

func TestReconcileOverwrites(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(nil)
	id := uuid.New()

	_, _ = s.Increment(ctx, id)
	_, _ = s.Increment(ctx, id)
	require.NoError(t, s.Reconcile(ctx, id, 7))

	cur, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 7, cur)
}
