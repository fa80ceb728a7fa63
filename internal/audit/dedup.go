package audit

import (
	"sync"
	"time"
)

// dedupWindow is a time-boxed set of event identities used to absorb
// at-least-once redelivery. An entry expires after the window passes; a
// duplicate arriving later than the window is written again, which is
// acceptable for an append-only log where readers tolerate rare duplicates.
type dedupWindow struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[string]time.Time
	now    func() time.Time
}

func newDedupWindow(window time.Duration) *dedupWindow {
	return &dedupWindow{
		window: window,
		seen:   make(map[string]time.Time),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// observe records the key and reports whether it was already present within
// the window. Expired entries are pruned lazily on each call.
func (d *dedupWindow) observe(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	cutoff := now.Add(-d.window)
	for k, at := range d.seen {
		if at.Before(cutoff) {
			delete(d.seen, k)
		}
	}

	if at, ok := d.seen[key]; ok && !at.Before(cutoff) {
		return true
	}
	d.seen[key] = now
	return false
}
