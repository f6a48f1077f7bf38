package http

import "time"

// rateLimiter caps inbound frames per connection over fixed windows. It is
// owned by the connection's read loop and is not safe for concurrent use.
type rateLimiter struct {
	limit   int
	per     time.Duration
	counter int
	start   time.Time
}

func newRateLimiter(limit int, per time.Duration) *rateLimiter {
	if limit <= 0 {
		return nil
	}
	return &rateLimiter{limit: limit, per: per}
}

func (r *rateLimiter) allow(now time.Time) bool {
	if r == nil {
		return true
	}
	if now.Sub(r.start) >= r.per {
		r.start = now
		r.counter = 0
	}
	r.counter++
	return r.counter <= r.limit
}
