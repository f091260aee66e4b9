// Package ratelimit implements a sliding-window rate limiter over an
// in-process map of per-key request timestamps. Entries older than the
// window are purged lazily on each check; keys are never evicted, which
// is acceptable at the cardinality this service sees (one key per
// endpoint on the client side, one per caller address on the server).
package ratelimit

import (
	"sync"
	"time"
)

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter admits at most max requests per key within a sliding window.
type Limiter struct {
	max    int
	window time.Duration

	mu     sync.Mutex
	stamps map[string][]time.Time

	now func() time.Time
}

func New(max int, window time.Duration) *Limiter {
	return &Limiter{
		max:    max,
		window: window,
		stamps: make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Admit decides whether a request under key may proceed. Accepted
// requests consume a slot; rejected ones do not, but the purged window
// is written back so repeated rejections stay cheap.
func (l *Limiter) Admit(key string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	kept := l.stamps[key][:0]
	for _, t := range l.stamps[key] {
		if now.Sub(t) < l.window {
			kept = append(kept, t)
		}
	}

	if len(kept) >= l.max {
		retry := l.window - now.Sub(kept[0])
		if retry < 0 {
			retry = 0
		}
		l.stamps[key] = kept
		return Decision{Allowed: false, RetryAfter: retry}
	}

	l.stamps[key] = append(kept, now)
	return Decision{Allowed: true}
}

// RetryAfterSeconds rounds a retry delay up to whole seconds for
// user-facing messages.
func RetryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 0 {
		return 0
	}
	return secs
}
