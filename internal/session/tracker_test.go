package session

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Kaushals112/shadow-aiims-defender/internal/models"
)

func newTestTracker() *Tracker {
	return NewTracker(30*time.Minute, zap.NewNop())
}

func TestStartCreatesActiveSession(t *testing.T) {
	tr := newTestTracker()

	id := tr.Start("", "10.0.0.1")
	require.True(t, strings.HasPrefix(id, "sess_"))

	rec, ok := tr.Get(id)
	require.True(t, ok)
	assert.Equal(t, models.SessionActive, rec.Status)
	assert.Equal(t, models.AnonymousIdentity, rec.IdentityLabel)
	assert.Equal(t, "10.0.0.1", rec.SourceIdentity)
	assert.False(t, rec.StartedAt.IsZero())
	assert.Equal(t, rec.StartedAt, rec.LastActivityAt)
}

func TestStartNeverDeduplicates(t *testing.T) {
	tr := newTestTracker()
	a := tr.Start("anonymous", "10.0.0.1")
	b := tr.Start("anonymous", "10.0.0.1")
	assert.NotEqual(t, a, b)
	assert.Len(t, tr.All(), 2)
}

func TestTouchUnknownSessionIsNoop(t *testing.T) {
	tr := newTestTracker()
	assert.NotPanics(t, func() { tr.Touch("sess_does_not_exist") })
	assert.Empty(t, tr.All())
}

func TestTouchTerminalSessionDoesNotResurrect(t *testing.T) {
	tr := newTestTracker()
	id := tr.Start("anonymous", "")
	tr.End(id, EndReasonLogout)

	tr.Touch(id)

	rec, ok := tr.Get(id)
	require.True(t, ok)
	assert.Equal(t, models.SessionLoggedOut, rec.Status)
}

func TestEndLogout(t *testing.T) {
	tr := newTestTracker()
	id := tr.Start("anonymous", "")

	tr.End(id, EndReasonLogout)

	rec, _ := tr.Get(id)
	assert.Equal(t, models.SessionLoggedOut, rec.Status)
	assert.False(t, rec.EndedAt.IsZero())
	assert.Empty(t, tr.Active())
}

func TestEndIsTerminal(t *testing.T) {
	tr := newTestTracker()
	id := tr.Start("anonymous", "")

	tr.End(id, EndReasonLogout)
	tr.End(id, EndReasonTimeout)

	rec, _ := tr.Get(id)
	assert.Equal(t, models.SessionLoggedOut, rec.Status, "second end must not rewrite the reason")
}

func TestPromoteRelabels(t *testing.T) {
	tr := newTestTracker()
	id := tr.Start("anonymous", "")

	tr.Promote(id, "admin")

	rec, _ := tr.Get(id)
	assert.Equal(t, "admin", rec.IdentityLabel)
}

func TestSweepExpiresIdleSessions(t *testing.T) {
	tr := newTestTracker()
	id := tr.Start("anonymous", "")
	future := time.Now().UTC().Add(time.Hour)

	expired := tr.Sweep(context.Background(), future)
	assert.Equal(t, 1, expired)

	rec, _ := tr.Get(id)
	assert.Equal(t, models.SessionExpired, rec.Status)
	assert.Equal(t, future, rec.EndedAt)
	assert.Empty(t, tr.Active())
}

func TestSweepIsIdempotent(t *testing.T) {
	tr := newTestTracker()
	tr.Start("anonymous", "")
	future := time.Now().UTC().Add(time.Hour)

	assert.Equal(t, 1, tr.Sweep(context.Background(), future))
	assert.Equal(t, 0, tr.Sweep(context.Background(), future))
}

func TestSweepLeavesFreshSessionsAlone(t *testing.T) {
	tr := newTestTracker()
	id := tr.Start("anonymous", "")

	expired := tr.Sweep(context.Background(), time.Now().UTC())
	assert.Equal(t, 0, expired)

	rec, _ := tr.Get(id)
	assert.Equal(t, models.SessionActive, rec.Status)
}

func TestSweepStopsOnCancelledContext(t *testing.T) {
	tr := newTestTracker()
	for i := 0; i < 10; i++ {
		tr.Start("anonymous", "")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	expired := tr.Sweep(ctx, time.Now().UTC().Add(time.Hour))
	assert.Zero(t, expired)
}

func TestSweepConcurrentWithStart(t *testing.T) {
	tr := newTestTracker()
	future := time.Now().UTC().Add(time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				tr.Start("anonymous", "")
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				tr.Sweep(context.Background(), future)
			}
		}()
	}
	wg.Wait()

	// Every session ends up either active or expired, never half-ended.
	for _, rec := range tr.All() {
		if rec.Status == models.SessionExpired {
			assert.False(t, rec.EndedAt.IsZero())
		} else {
			assert.Equal(t, models.SessionActive, rec.Status)
		}
	}
}

func TestAllOrderedByStart(t *testing.T) {
	tr := newTestTracker()
	for i := 0; i < 5; i++ {
		tr.Start("anonymous", "")
	}

	all := tr.All()
	require.Len(t, all, 5)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].StartedAt.Before(all[i-1].StartedAt))
	}
}

func TestAttemptWindowCountsWithinWindow(t *testing.T) {
	w := NewAttemptWindow(5 * time.Minute)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 1; i <= 6; i++ {
		n := w.Register("admin", base.Add(time.Duration(i)*time.Second))
		assert.Equal(t, i, n)
	}
	assert.GreaterOrEqual(t, w.Count("admin", base.Add(time.Minute)), BruteForceThreshold)
}

func TestAttemptWindowPrunesOldEntries(t *testing.T) {
	w := NewAttemptWindow(5 * time.Minute)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		w.Register("admin", base.Add(time.Duration(i)*time.Second))
	}
	assert.Equal(t, 4, w.Count("admin", base.Add(time.Minute)))
	assert.Equal(t, 0, w.Count("admin", base.Add(10*time.Minute)))

	// A new attempt after the gap starts the count over.
	assert.Equal(t, 1, w.Register("admin", base.Add(10*time.Minute)))
}

func TestAttemptWindowPerIdentity(t *testing.T) {
	w := NewAttemptWindow(5 * time.Minute)
	now := time.Now().UTC()

	w.Register("admin", now)
	w.Register("admin", now)
	assert.Equal(t, 1, w.Register("root", now))
}

func TestTrackerRegisterAttempt(t *testing.T) {
	tr := newTestTracker()
	now := time.Now().UTC()

	for i := 1; i <= 5; i++ {
		assert.Equal(t, i, tr.RegisterAttempt("admin", now))
	}
	assert.Equal(t, 5, tr.CountRecentAttempts("admin", now))
}
