package ws

import (
	"sync"
	"time"
)

// rateLimiter is a token bucket: burst capacity, sustained refill per second.
// Excess frames are rejected, never queued.
type rateLimiter struct {
	mu     sync.Mutex
	tokens float64
	burst  float64
	rate   float64
	last   time.Time
	now    func() time.Time
}

func newRateLimiter(burst, perSecond int) *rateLimiter {
	rl := &rateLimiter{
		tokens: float64(burst),
		burst:  float64(burst),
		rate:   float64(perSecond),
		now:    time.Now,
	}
	rl.last = rl.now()
	return rl
}

// allow consumes one token if available.
func (rl *rateLimiter) allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.tokens += now.Sub(rl.last).Seconds() * rl.rate
	if rl.tokens > rl.burst {
		rl.tokens = rl.burst
	}
	rl.last = now

	if rl.tokens < 1 {
		return false
	}
	rl.tokens--
	return true
}
