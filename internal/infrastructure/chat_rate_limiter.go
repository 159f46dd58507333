package infrastructure

import (
	"sync"
	"time"
)

// ChatRateLimiter implements sliding-window rate limiting keyed by session id
// or client IP. A key may make at most `limit` requests per `window`.
type ChatRateLimiter struct {
	mu          sync.Mutex
	buckets     map[string][]time.Time
	limit       int
	window      time.Duration
	cleanupTick time.Duration
}

func NewChatRateLimiter(limit int, window time.Duration) *ChatRateLimiter {
	rl := &ChatRateLimiter{
		buckets:     make(map[string][]time.Time),
		limit:       limit,
		window:      window,
		cleanupTick: 5 * time.Minute,
	}

	// Start cleanup goroutine
	go rl.cleanup()

	return rl
}

// Allow records a request for key and reports whether it is within the limit.
func (rl *ChatRateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rl.window)

	bucket := rl.buckets[key]
	kept := bucket[:0]
	for _, ts := range bucket {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= rl.limit {
		rl.buckets[key] = kept
		return false
	}

	rl.buckets[key] = append(kept, now)
	return true
}

// RetryAfter returns the window length, used for the Retry-After header.
func (rl *ChatRateLimiter) RetryAfter() time.Duration {
	return rl.window
}

// cleanup removes stale buckets periodically
func (rl *ChatRateLimiter) cleanup() {
	ticker := time.NewTicker(rl.cleanupTick)
	for range ticker.C {
		rl.mu.Lock()
		cutoff := time.Now().Add(-rl.window)
		for key, bucket := range rl.buckets {
			live := false
			for _, ts := range bucket {
				if ts.After(cutoff) {
					live = true
					break
				}
			}
			if !live {
				delete(rl.buckets, key)
			}
		}
		rl.mu.Unlock()
	}
}
