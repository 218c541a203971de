package httpapi

import (
	"sync"
	"time"
)

// SlidingWindowLimiter caps how many times a sensitive operation may run
// inside a rolling time window. A zero window or limit disables the cap.
type SlidingWindowLimiter struct {
	mu     sync.Mutex
	window time.Duration
	limit  int
	now    func() time.Time
	stamps []time.Time
}

// NewSlidingWindowLimiter allows up to limit invocations per window. The
// timeSource defaults to time.Now when nil.
func NewSlidingWindowLimiter(window time.Duration, limit int, timeSource func() time.Time) *SlidingWindowLimiter {
	if timeSource == nil {
		timeSource = time.Now
	}
	return &SlidingWindowLimiter{window: window, limit: limit, now: timeSource}
}

// Allow reports whether another invocation fits in the current window and
// records it when it does.
func (l *SlidingWindowLimiter) Allow() bool {
	if l == nil || l.limit <= 0 || l.window <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	//1.- Stamps are appended in order, so everything before the first live one expires together.
	firstLive := len(l.stamps)
	for i, stamp := range l.stamps {
		if stamp.After(cutoff) {
			firstLive = i
			break
		}
	}
	l.stamps = append(l.stamps[:0], l.stamps[firstLive:]...)

	if len(l.stamps) >= l.limit {
		return false
	}
	l.stamps = append(l.stamps, now)
	return true
}
