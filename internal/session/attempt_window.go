package session

import (
	"sync"
	"time"
)

// DefaultAttemptWindow is the brute-force detection window.
const DefaultAttemptWindow = 5 * time.Minute

// BruteForceThreshold is the attempt count at which the caller should emit
// a brute_force_detected event.
const BruteForceThreshold = 5

// AttemptWindow is a bounded per-identity sliding window of login attempt
// timestamps. It replaces scanning the full event history: each identity
// keeps only the timestamps still inside the window, pruned on every
// Register and Count.
type AttemptWindow struct {
	mu       sync.Mutex
	window   time.Duration
	attempts map[string][]time.Time
}

// NewAttemptWindow creates a window of the given span. A zero span falls
// back to DefaultAttemptWindow.
func NewAttemptWindow(window time.Duration) *AttemptWindow {
	if window <= 0 {
		window = DefaultAttemptWindow
	}
	return &AttemptWindow{
		window:   window,
		attempts: make(map[string][]time.Time),
	}
}

// Register records one attempt at now and returns how many attempts the
// identity has inside the window, including this one.
func (w *AttemptWindow) Register(identity string, now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	kept := w.pruneLocked(identity, now)
	kept = append(kept, now)
	w.attempts[identity] = kept
	return len(kept)
}

// Count returns the number of attempts inside the window ending at now
// without recording a new one.
func (w *AttemptWindow) Count(identity string, now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	kept := w.pruneLocked(identity, now)
	if len(kept) == 0 {
		delete(w.attempts, identity)
	} else {
		w.attempts[identity] = kept
	}
	return len(kept)
}

func (w *AttemptWindow) pruneLocked(identity string, now time.Time) []time.Time {
	cutoff := now.Add(-w.window)
	stamps := w.attempts[identity]
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}
