// Package presence tracks participant liveness with a sliding window.
package presence

import (
	"sync"
	"time"
)

// DefaultWindow is the span after which a participant's last activity
// no longer counts as online.
const DefaultWindow = 5 * time.Minute

// Tracker maps participant IDs to their last-active timestamp. Entries
// are overwritten on every touch and never evicted, so memory is bounded
// by the number of distinct participants rather than traffic volume.
//
// Tracker is safe for concurrent use by multiple goroutines.
type Tracker struct {
	mu         sync.RWMutex
	window     time.Duration
	lastActive map[string]time.Time
}

// NewTracker creates a tracker with the given online window. A
// non-positive window falls back to DefaultWindow.
func NewTracker(window time.Duration) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Tracker{
		window:     window,
		lastActive: make(map[string]time.Time),
	}
}

// Touch records activity for a participant as of now.
func (t *Tracker) Touch(userID string) {
	t.TouchAt(userID, time.Now())
}

// TouchAt records activity for a participant at the given time.
func (t *Tracker) TouchAt(userID string, at time.Time) {
	t.mu.Lock()
	t.lastActive[userID] = at
	t.mu.Unlock()
}

// IsOnline reports whether the participant was active within the window
// as of now.
func (t *Tracker) IsOnline(userID string) bool {
	return t.OnlineAt(userID, time.Now())
}

// OnlineAt reports whether the participant was active within the window
// as of the given reference time. A participant with no recorded
// activity is never online.
func (t *Tracker) OnlineAt(userID string, ref time.Time) bool {
	t.mu.RLock()
	last, ok := t.lastActive[userID]
	t.mu.RUnlock()
	return ok && ref.Sub(last) < t.window
}

// LastActive returns the participant's last recorded activity time.
func (t *Tracker) LastActive(userID string) (time.Time, bool) {
	t.mu.RLock()
	last, ok := t.lastActive[userID]
	t.mu.RUnlock()
	return last, ok
}
