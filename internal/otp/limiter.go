package otp

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

const limiterCacheSize = 10_000

// Limiter throttles code requests per contact with a token bucket each.
// Idle buckets are evicted once the cache is full.
type Limiter struct {
	mu      sync.Mutex
	buckets *lru.Cache[string, *rate.Limiter]
	limit   rate.Limit
	burst   int
}

// NewLimiter allows perMinute requests per contact with the given burst.
func NewLimiter(perMinute float64, burst int) (*Limiter, error) {
	buckets, err := lru.New[string, *rate.Limiter](limiterCacheSize)
	if err != nil {
		return nil, err
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		buckets: buckets,
		limit:   rate.Limit(perMinute / 60),
		burst:   burst,
	}, nil
}

func (l *Limiter) Allow(contact string) bool {
	key := contactKey(contact)

	l.mu.Lock()
	bucket, ok := l.buckets.Get(key)
	if !ok {
		bucket = rate.NewLimiter(l.limit, l.burst)
		l.buckets.Add(key, bucket)
	}
	l.mu.Unlock()

	return bucket.Allow()
}
