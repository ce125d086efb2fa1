// Package throttle guards signal emission against duplicates: an in-memory
// session throttle for the route level and a Redis-backed throttle in front
// of persistence.
package throttle

import (
	"sync"
	"time"
)

const sweepThreshold = 4096

// SessionThrottle tracks last-emission times per key. It is scoped to one
// process; cross-process dedup is the CaptureThrottle's job.
type SessionThrottle struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewSessionThrottle() *SessionThrottle {
	return &SessionThrottle{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// ShouldEmit reports whether key may emit now and, if so, records the
// emission. Exactly one call per key returns true within each cooldown
// window, including calls in the same tick.
func (t *SessionThrottle) ShouldEmit(key string, cooldown time.Duration) bool {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if last, ok := t.entries[key]; ok && now.Sub(last) < cooldown {
		return false
	}
	if len(t.entries) >= sweepThreshold {
		t.sweepLocked(now, cooldown)
	}
	t.entries[key] = now
	return true
}

func (t *SessionThrottle) sweepLocked(now time.Time, cooldown time.Duration) {
	for k, last := range t.entries {
		if now.Sub(last) >= cooldown {
			delete(t.entries, k)
		}
	}
}

// Len reports the number of tracked keys.
func (t *SessionThrottle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
