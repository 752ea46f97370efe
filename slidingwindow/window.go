package slidingwindow

import (
	"context"
	"sync"
	"time"
)

// Limiter allows at most max events within any interval long window.
type Limiter struct {
	interval time.Duration
	max      int
	events   []time.Time
	blocked  time.Time
	mu       sync.Mutex
	now      func() time.Time
}

func NewLimiter(interval time.Duration, max int) *Limiter {
	if max < 1 {
		max = 1
	}
	return &Limiter{interval: interval, max: max, events: make([]time.Time, 0, max), now: time.Now}
}

func (lim *Limiter) prune(now time.Time) {
	cut := 0
	for cut < len(lim.events) && now.Sub(lim.events[cut]) >= lim.interval {
		cut++
	}
	if cut > 0 {
		lim.events = append(lim.events[:0], lim.events[cut:]...)
	}
}

// Allow records an event if the window has room. Otherwise it returns false
// and the time until the oldest event leaves the window.
func (lim *Limiter) Allow() (bool, time.Duration) {
	lim.mu.Lock()
	defer lim.mu.Unlock()
	now := lim.now()
	if now.Before(lim.blocked) {
		return false, lim.blocked.Sub(now)
	}
	lim.prune(now)
	if len(lim.events) < lim.max {
		lim.events = append(lim.events, now)
		return true, 0
	}
	return false, lim.interval - now.Sub(lim.events[0])
}

// Check reports whether an event would be allowed without recording it.
func (lim *Limiter) Check() (bool, time.Duration) {
	lim.mu.Lock()
	defer lim.mu.Unlock()
	now := lim.now()
	if now.Before(lim.blocked) {
		return false, lim.blocked.Sub(now)
	}
	lim.prune(now)
	if len(lim.events) < lim.max {
		return true, 0
	}
	return false, lim.interval - now.Sub(lim.events[0])
}

// BlockUntil rejects all events until t, e.g. after a 429 response.
func (lim *Limiter) BlockUntil(t time.Time) {
	lim.mu.Lock()
	defer lim.mu.Unlock()
	if t.After(lim.blocked) {
		lim.blocked = t
	}
}

// Wait blocks until an event is allowed or ctx is done.
func (lim *Limiter) Wait(ctx context.Context) error {
	for {
		ok, wait := lim.Allow()
		if ok {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (lim *Limiter) Interval() time.Duration {
	return lim.interval
}

func (lim *Limiter) Max() int {
	return lim.max
}
