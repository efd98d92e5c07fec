package gateway

import (
	"sync"
	"time"
)

// RateLimiter is a per-client token bucket limiter.
// Each client may burst up to limit requests and regains limit tokens per period.
type RateLimiter struct {
	buckets    map[string]*tokenBucket
	bucketsMux sync.RWMutex
	limit      int
	period     time.Duration
	idleTTL    time.Duration
	clock      func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

type tokenBucket struct {
	tokens     float64
	lastRefill time.Time
	mutex      sync.Mutex
}

// NewRateLimiter creates a limiter allowing limit requests per period per client
func NewRateLimiter(limit int, period time.Duration) *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*tokenBucket),
		limit:   limit,
		period:  period,
		idleTTL: 10 * period,
		clock:   time.Now,
		stop:    make(chan struct{}),
	}
}

// Allow takes one token from key's bucket, reporting false when it is empty
func (rl *RateLimiter) Allow(key string) bool {
	bucket := rl.getBucket(key)

	bucket.mutex.Lock()
	defer bucket.mutex.Unlock()

	rl.refill(bucket)
	if bucket.tokens >= 1 {
		bucket.tokens--
		return true
	}
	return false
}

// Remaining returns the whole tokens left in key's bucket
func (rl *RateLimiter) Remaining(key string) int {
	bucket := rl.getBucket(key)

	bucket.mutex.Lock()
	defer bucket.mutex.Unlock()

	rl.refill(bucket)
	return int(bucket.tokens)
}

// Limit returns the bucket capacity
func (rl *RateLimiter) Limit() int {
	return rl.limit
}

// Reset refills key's bucket
func (rl *RateLimiter) Reset(key string) {
	rl.bucketsMux.RLock()
	bucket, exists := rl.buckets[key]
	rl.bucketsMux.RUnlock()

	if exists {
		bucket.mutex.Lock()
		bucket.tokens = float64(rl.limit)
		bucket.lastRefill = rl.clock()
		bucket.mutex.Unlock()
	}
}

// refill must be called with bucket.mutex held
func (rl *RateLimiter) refill(bucket *tokenBucket) {
	now := rl.clock()
	elapsed := now.Sub(bucket.lastRefill)
	if elapsed <= 0 {
		return
	}

	bucket.tokens += elapsed.Seconds() / rl.period.Seconds() * float64(rl.limit)
	if bucket.tokens > float64(rl.limit) {
		bucket.tokens = float64(rl.limit)
	}
	bucket.lastRefill = now
}

func (rl *RateLimiter) getBucket(key string) *tokenBucket {
	rl.bucketsMux.RLock()
	bucket, exists := rl.buckets[key]
	rl.bucketsMux.RUnlock()

	if exists {
		return bucket
	}

	rl.bucketsMux.Lock()
	defer rl.bucketsMux.Unlock()

	// another goroutine may have created it meanwhile
	if bucket, exists := rl.buckets[key]; exists {
		return bucket
	}

	bucket = &tokenBucket{
		tokens:     float64(rl.limit),
		lastRefill: rl.clock(),
	}
	rl.buckets[key] = bucket
	return bucket
}

// cleanup drops buckets idle long enough to have refilled completely
func (rl *RateLimiter) cleanup() {
	cutoff := rl.clock().Add(-rl.idleTTL)

	rl.bucketsMux.Lock()
	defer rl.bucketsMux.Unlock()

	for key, bucket := range rl.buckets {
		bucket.mutex.Lock()
		if bucket.lastRefill.Before(cutoff) {
			delete(rl.buckets, key)
		}
		bucket.mutex.Unlock()
	}
}

// StartCleanup starts periodic cleanup of idle buckets until Stop is called
func (rl *RateLimiter) StartCleanup(interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.cleanup()
			case <-rl.stop:
				return
			}
		}
	}()
}

// Stop ends the cleanup goroutine
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stop)
	})
}
