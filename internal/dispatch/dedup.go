package dispatch

import (
	"strconv"
	"sync"
	"time"

	"github.com/voicekiosk/voicekiosk/internal/textmatch"
)

const (
	dedupMaxEntries = 200
	dedupPruneAge   = 5 // multiples of the window
)

// Tracker suppresses repeated add requests for the same item within a
// short window. The model occasionally emits the same tool call twice
// in one burst; the second one must not double the cart line.
type Tracker struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[string]time.Time
	now    func() time.Time
}

func NewTracker(window time.Duration) *Tracker {
	return newTrackerAt(window, time.Now)
}

func newTrackerAt(window time.Duration, now func() time.Time) *Tracker {
	return &Tracker{
		window: window,
		seen:   make(map[string]time.Time),
		now:    now,
	}
}

// AddKey builds the identity of an add request. Quantity is part of
// the key so "two colas" right after "one cola" goes through.
func AddKey(item, variant string, qty int) string {
	if qty <= 0 {
		qty = 1
	}
	return textmatch.Squash(item) + "__" + textmatch.Squash(variant) + "__" + strconv.Itoa(qty)
}

// IsDuplicate reports whether key was seen inside the window. A miss
// records the key; a hit leaves the original timestamp untouched so a
// genuine retry after the window still lands.
func (t *Tracker) IsDuplicate(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if last, ok := t.seen[key]; ok && now.Sub(last) < t.window {
		return true
	}
	t.seen[key] = now
	if len(t.seen) > dedupMaxEntries {
		t.pruneLocked(now)
	}
	return false
}

func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-time.Duration(dedupPruneAge) * t.window)
	for k, ts := range t.seen {
		if ts.Before(cutoff) {
			delete(t.seen, k)
		}
	}
}

// Clear drops all recorded keys. Called on session reset.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen = make(map[string]time.Time)
}
