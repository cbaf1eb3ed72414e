package counter

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const opTimeout = 2 * time.Second

// decrFloorScript decrements flooring at 0, so a spurious double-disconnect
// never drives the count negative.
var decrFloorScript = redis.NewScript(`
local v = redis.call('DECR', KEYS[1])
if v < 0 then
  redis.call('SET', KEYS[1], '0')
  v = 0
end
return v
`)

// RedisStore is the Redis-backed viewer counter. Infrastructure failures are
// logged and degraded to a recount from the durable store; they are never
// surfaced to callers as long as the fallback succeeds.
type RedisStore struct {
	client   *redis.Client
	fallback Recounter
	peaks    PeakSink
	group    singleflight.Group
	logger   *zap.Logger
}

// NewRedisStore creates a Redis viewer counter with a durable-store fallback
// and a sink that persists raised peaks onto the stream record.
func NewRedisStore(client *redis.Client, fallback Recounter, peaks PeakSink, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{client: client, fallback: fallback, peaks: peaks, logger: logger}
}

func viewersKey(streamID uuid.UUID) string {
	return "stream:" + streamID.String() + ":viewers"
}

func peakKey(streamID uuid.UUID) string {
	return "stream:" + streamID.String() + ":peak"
}

// Increment adds one viewer. On Redis failure it falls back to a recount of
// open viewer rows (the row for the joining viewer is created before the
// counter is touched, so the recount already includes it).
func (s *RedisStore) Increment(ctx context.Context, streamID uuid.UUID) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	n, err := s.client.Incr(ctx, viewersKey(streamID)).Result()
	if err != nil {
		s.logger.Warn("counter increment failed, falling back to recount",
			zap.String("stream_id", streamID.String()), zap.Error(err))
		return s.recount(ctx, streamID)
	}
	return int(n), nil
}

// Decrement removes one viewer, flooring at 0.
func (s *RedisStore) Decrement(ctx context.Context, streamID uuid.UUID) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	n, err := decrFloorScript.Run(ctx, s.client, []string{viewersKey(streamID)}).Int()
	if err != nil {
		s.logger.Warn("counter decrement failed, falling back to recount",
			zap.String("stream_id", streamID.String()), zap.Error(err))
		return s.recount(ctx, streamID)
	}
	return n, nil
}

// Get returns the current count. A missing key is treated the same as an
// unavailable store: the durable table is recounted and the result seeded
// back, so a flushed cache cannot report zero for a watched stream.
func (s *RedisStore) Get(ctx context.Context, streamID uuid.UUID) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	n, err := s.client.Get(ctx, viewersKey(streamID)).Int()
	if err == nil {
		return n, nil
	}
	if err != redis.Nil {
		s.logger.Warn("counter get failed, falling back to recount",
			zap.String("stream_id", streamID.String()), zap.Error(err))
		return s.recount(ctx, streamID)
	}
	count, rerr := s.recount(ctx, streamID)
	if rerr != nil {
		return 0, rerr
	}
	if serr := s.client.Set(ctx, viewersKey(streamID), count, 0).Err(); serr != nil {
		s.logger.Warn("counter seed failed", zap.String("stream_id", streamID.String()), zap.Error(serr))
	}
	return count, nil
}

// RaisePeak performs a compare-and-set raise of the cached peak when current
// exceeds it, retrying on contention, then persists a raised value onto the
// stream record. Two concurrent connects cannot both settle on a lower peak:
// the WATCH on the peak key aborts the losing transaction.
func (s *RedisStore) RaisePeak(ctx context.Context, streamID uuid.UUID, current int) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	key := peakKey(streamID)

	var result int
	var raised bool
	cas := func(tx *redis.Tx) error {
		peak, err := tx.Get(ctx, key).Int()
		if err != nil && err != redis.Nil {
			return err
		}
		if current <= peak {
			result, raised = peak, false
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, current, 0)
			return nil
		})
		if err == nil {
			result, raised = current, true
		}
		return err
	}

	var err error
	for attempt := 0; attempt < 3; attempt++ {
		err = s.client.Watch(ctx, cas, key)
		if err != redis.TxFailedErr {
			break
		}
	}
	if err != nil {
		// Degrade: the durable write below uses GREATEST, so reporting
		// current as the peak can never lower the stored value.
		s.logger.Warn("peak CAS failed, degrading to durable write",
			zap.String("stream_id", streamID.String()), zap.Error(err))
		result, raised = current, true
	}
	if raised && s.peaks != nil {
		if perr := s.peaks.PersistPeak(ctx, streamID, result); perr != nil {
			s.logger.Warn("peak persist failed",
				zap.String("stream_id", streamID.String()), zap.Error(perr))
		}
	}
	return result, nil
}

// Reconcile overwrites the cached count with an authoritative recount value.
// Called by the periodic viewer-count job, which holds the per-job lock.
func (s *RedisStore) Reconcile(ctx context.Context, streamID uuid.UUID, current int) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return s.client.Set(ctx, viewersKey(streamID), current, 0).Err()
}

// recount reads open viewer rows from the durable store, deduplicating
// concurrent recounts for the same stream.
func (s *RedisStore) recount(ctx context.Context, streamID uuid.UUID) (int, error) {
	v, err, _ := s.group.Do(streamID.String(), func() (interface{}, error) {
		return s.fallback.CountWatching(ctx, streamID)
	})
	if err != nil {
		return 0, fmt.Errorf("recount viewers: %w", err)
	}
	return v.(int), nil
}
