package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store counts hits per key in fixed windows. Increment starts a new window
// when the key has none or its window has passed.
type Store interface {
	Increment(ctx context.Context, key string, period time.Duration) (count int, resetAt time.Time, err error)
}

type MemoryStore struct {
	mu        sync.Mutex
	data      map[string]*entry
	now       func() time.Time
	nextSweep time.Time
}

type entry struct {
	count     int
	resetTime time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]*entry),
		now:  time.Now,
	}
}

func (s *MemoryStore) Increment(_ context.Context, key string, period time.Duration) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweepLocked(now, period)

	if e, exists := s.data[key]; exists && now.Before(e.resetTime) {
		e.count++
		return e.count, e.resetTime, nil
	}

	e := &entry{count: 1, resetTime: now.Add(period)}
	s.data[key] = e
	return e.count, e.resetTime, nil
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.data)
}

// sweepLocked drops finished windows at most once per period.
func (s *MemoryStore) sweepLocked(now time.Time, period time.Duration) {
	if now.Before(s.nextSweep) {
		return
	}
	for key, e := range s.data {
		if !now.Before(e.resetTime) {
			delete(s.data, key)
		}
	}
	s.nextSweep = now.Add(period)
}

var incrementScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {count, redis.call('PTTL', KEYS[1])}
`)

// RedisStore shares counters between instances.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, now: time.Now}
}

func (s *RedisStore) Increment(ctx context.Context, key string, period time.Duration) (int, time.Time, error) {
	values, err := incrementScript.Run(ctx, s.client, []string{s.prefix + key}, period.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, time.Time{}, err
	}

	ttl := time.Duration(values[1]) * time.Millisecond
	if ttl < 0 {
		ttl = period
	}
	return int(values[0]), s.now().Add(ttl), nil
}
