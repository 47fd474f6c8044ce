package repository

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const rateLimitKeyPrefix = "ratelimit:payment:"

var (
	_ BucketStore = (*MemoryBucketStore)(nil)
	_ BucketStore = (*RedisBucketStore)(nil)
)

// MemoryBucketStore holds fixed-window buckets in process memory.
type MemoryBucketStore struct {
	mu      sync.Mutex
	buckets map[string]*Bucket
}

func NewMemoryBucketStore() *MemoryBucketStore {
	return &MemoryBucketStore{buckets: make(map[string]*Bucket)}
}

func (s *MemoryBucketStore) Hit(_ context.Context, key string, now time.Time, window time.Duration) (Bucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok || now.After(b.ResetAt) {
		b = &Bucket{Count: 0, ResetAt: now.Add(window)}
		s.buckets[key] = b
	}
	b.Count++
	return *b, nil
}

// Sweep drops every bucket whose window ended before now and returns how
// many were removed.
func (s *MemoryBucketStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, b := range s.buckets {
		if now.After(b.ResetAt) {
			delete(s.buckets, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of live buckets.
func (s *MemoryBucketStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *MemoryBucketStore) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Sweep(now)
		}
	}
}

// hitScript increments the window counter, starting the expiry on the first
// hit, and returns the count with the remaining milliseconds.
var hitScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
return {count, ttl}
`)

// RedisBucketStore keeps buckets in Redis so every instance shares one window
// per client. Keys expire with their window.
type RedisBucketStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisBucketStore(client redis.UniversalClient) *RedisBucketStore {
	return &RedisBucketStore{client: client, prefix: rateLimitKeyPrefix}
}

func (s *RedisBucketStore) Hit(ctx context.Context, key string, now time.Time, window time.Duration) (Bucket, error) {
	res, err := hitScript.Run(ctx, s.client, []string{s.prefix + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Bucket{}, err
	}

	ttl := time.Duration(res[1]) * time.Millisecond
	if ttl < 0 {
		ttl = window
	}
	return Bucket{Count: int(res[0]), ResetAt: now.Add(ttl)}, nil
}
