package detection

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Tracker remembers when a session last submitted a batch.
type Tracker interface {
	Record(ctx context.Context, sessionID string, at time.Time) error
	Last(ctx context.Context, sessionID string) (time.Time, bool, error)
}

// MemoryTracker keeps submission times in process memory. Entries older than
// ttl are dropped lazily on Record.
type MemoryTracker struct {
	mu   sync.Mutex
	last map[string]time.Time
	ttl  time.Duration
}

func NewMemoryTracker(ttl time.Duration) *MemoryTracker {
	return &MemoryTracker{last: make(map[string]time.Time), ttl: ttl}
}

func (t *MemoryTracker) Record(_ context.Context, sessionID string, at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ttl > 0 {
		for id, ts := range t.last {
			if at.Sub(ts) > t.ttl {
				delete(t.last, id)
			}
		}
	}
	t.last[sessionID] = at
	return nil
}

func (t *MemoryTracker) Last(_ context.Context, sessionID string) (time.Time, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ts, ok := t.last[sessionID]
	return ts, ok, nil
}

// RedisTracker shares submission times across relay replicas.
type RedisTracker struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewRedisTracker(client redis.Cmdable, prefix string, ttl time.Duration) *RedisTracker {
	if prefix == "" {
		prefix = "passivecaptcha:last:"
	}
	return &RedisTracker{client: client, prefix: prefix, ttl: ttl}
}

// DialRedis connects and pings with a short timeout.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "redis ping %s", addr)
	}
	return rdb, nil
}

func (t *RedisTracker) Record(ctx context.Context, sessionID string, at time.Time) error {
	err := t.client.Set(ctx, t.prefix+sessionID, at.UnixMilli(), t.ttl).Err()
	return errors.Wrap(err, "redis tracker record")
}

func (t *RedisTracker) Last(ctx context.Context, sessionID string) (time.Time, bool, error) {
	v, err := t.client.Get(ctx, t.prefix+sessionID).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, errors.Wrap(err, "redis tracker last")
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false, errors.Wrapf(err, "redis tracker value %q", v)
	}
	return time.UnixMilli(ms), true, nil
}

// analyzeTiming measures the gap since the session's previous submission.
// Tracker errors leave the signals empty.
func analyzeTiming(ctx context.Context, sessionID string, now time.Time, tracker Tracker) TimingSignals {
	var s TimingSignals
	if last, ok, err := tracker.Last(ctx, sessionID); err == nil && ok {
		interval := now.Sub(last)
		s.SubmissionInterval = float64(interval.Nanoseconds()) / 1e6
		s.HasPrevious = true
		s.IntervalPrecision = precisionOf(interval.Milliseconds())
	}
	_ = tracker.Record(ctx, sessionID, now)
	return s
}

// Scripted senders tend to land on round intervals.
func precisionOf(ms int64) int {
	if ms <= 0 {
		return 0
	}
	for _, p := range []int64{1000, 500, 100, 50, 10} {
		if ms%p == 0 {
			return int(p)
		}
	}
	return 0
}
