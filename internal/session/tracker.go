package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Kaushals112/shadow-aiims-defender/internal/models"
	"github.com/Kaushals112/shadow-aiims-defender/internal/util"
)

// DefaultTimeout is how long a session may stay idle before the sweep
// expires it.
const DefaultTimeout = 30 * time.Minute

// Tracker owns session records for the decoy portal. All mutation goes
// through the tracker mutex, so Start/Touch/End/Sweep are safe to call from
// concurrent request handlers.
//
// Unknown session IDs are deliberately not errors: the portal keeps serving
// whatever the attacker does, and a stale ID just means the interaction is
// untracked.
type Tracker struct {
	mu       sync.RWMutex
	sessions map[string]*models.SessionRecord
	order    []string
	timeout  time.Duration
	window   *AttemptWindow
	logger   *zap.Logger
}

// NewTracker creates a tracker with the given idle timeout. A zero timeout
// falls back to DefaultTimeout.
func NewTracker(timeout time.Duration, logger *zap.Logger) *Tracker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = util.Get()
	}
	return &Tracker{
		sessions: make(map[string]*models.SessionRecord),
		timeout:  timeout,
		window:   NewAttemptWindow(DefaultAttemptWindow),
		logger:   logger,
	}
}

// ConfigureAttemptWindow replaces the login attempt sliding window
// duration. Existing attempt history is discarded.
func (t *Tracker) ConfigureAttemptWindow(d time.Duration) {
	if d <= 0 {
		return
	}
	t.mu.Lock()
	t.window = NewAttemptWindow(d)
	t.mu.Unlock()
}

// Start creates a brand-new active session and returns its ID. A prior
// active session for the same browsing context is not deduplicated; every
// page load that asks for a session gets one.
func (t *Tracker) Start(identityLabel, sourceIdentity string) string {
	if identityLabel == "" {
		identityLabel = models.AnonymousIdentity
	}
	now := time.Now().UTC()
	rec := &models.SessionRecord{
		SessionID:      "sess_" + uuid.NewString(),
		IdentityLabel:  identityLabel,
		SourceIdentity: sourceIdentity,
		StartedAt:      now,
		LastActivityAt: now,
		Status:         models.SessionActive,
	}

	t.mu.Lock()
	t.sessions[rec.SessionID] = rec
	t.order = append(t.order, rec.SessionID)
	t.mu.Unlock()

	t.logger.Debug("session started",
		zap.String("session_id", rec.SessionID),
		zap.String("identity", identityLabel),
		zap.String("source", sourceIdentity),
	)
	return rec.SessionID
}

// Touch bumps last_activity_at for an active session. It is a no-op for
// unknown or terminal sessions.
func (t *Tracker) Touch(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.sessions[sessionID]
	if !ok || rec.Terminal() {
		return
	}
	if now := time.Now().UTC(); now.After(rec.LastActivityAt) {
		rec.LastActivityAt = now
	}
}

// Promote relabels a session after a successful decoy login. No-op for
// unknown or terminal sessions.
func (t *Tracker) Promote(sessionID, identityLabel string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.sessions[sessionID]
	if !ok || rec.Terminal() {
		return
	}
	rec.IdentityLabel = identityLabel
}

// End transitions a session to logged_out (or expired for EndReasonTimeout).
// Ending an unknown or already-terminal session is a no-op, not an error.
func (t *Tracker) End(sessionID string, reason EndReason) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.endLocked(sessionID, reason, time.Now().UTC())
}

// EndReason says why a session ended.
type EndReason string

const (
	EndReasonLogout  EndReason = "logout"
	EndReasonTimeout EndReason = "timeout"
)

func (t *Tracker) endLocked(sessionID string, reason EndReason, now time.Time) {
	rec, ok := t.sessions[sessionID]
	if !ok || rec.Terminal() {
		return
	}
	rec.EndedAt = now
	if reason == EndReasonTimeout {
		rec.Status = models.SessionExpired
	} else {
		rec.Status = models.SessionLoggedOut
	}
	t.logger.Debug("session ended",
		zap.String("session_id", sessionID),
		zap.String("reason", string(reason)),
	)
}

// Sweep expires every active session idle longer than the timeout as of now.
// Applying it twice in a row yields the same statuses as applying it once,
// and it checks ctx between sessions so shutdown never leaves a session
// half-ended.
func (t *Tracker) Sweep(ctx context.Context, now time.Time) int {
	t.mu.RLock()
	var stale []string
	for id, rec := range t.sessions {
		if rec.Status == models.SessionActive && now.Sub(rec.LastActivityAt) > t.timeout {
			stale = append(stale, id)
		}
	}
	t.mu.RUnlock()

	expired := 0
	for _, id := range stale {
		select {
		case <-ctx.Done():
			return expired
		default:
		}
		t.mu.Lock()
		// Re-check under the lock: a Touch may have raced the scan.
		if rec, ok := t.sessions[id]; ok && rec.Status == models.SessionActive &&
			now.Sub(rec.LastActivityAt) > t.timeout {
			t.endLocked(id, EndReasonTimeout, now)
			expired++
		}
		t.mu.Unlock()
	}

	if expired > 0 {
		t.logger.Info("session sweep expired idle sessions", zap.Int("expired", expired))
	}
	return expired
}

// Get returns a copy of the session record, or false if unknown.
func (t *Tracker) Get(sessionID string) (models.SessionRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.sessions[sessionID]
	if !ok {
		return models.SessionRecord{}, false
	}
	return *rec, true
}

// Active returns all sessions still in the active state, oldest first.
func (t *Tracker) Active() []models.SessionRecord {
	return t.list(func(r *models.SessionRecord) bool { return r.Status == models.SessionActive })
}

// All returns every session the tracker has seen, oldest first.
func (t *Tracker) All() []models.SessionRecord {
	return t.list(func(*models.SessionRecord) bool { return true })
}

func (t *Tracker) list(keep func(*models.SessionRecord) bool) []models.SessionRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]models.SessionRecord, 0, len(t.order))
	for _, id := range t.order {
		if rec, ok := t.sessions[id]; ok && keep(rec) {
			out = append(out, *rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// RegisterAttempt records a login attempt for the identity in the
// brute-force window and returns the count of attempts inside the window,
// including this one.
func (t *Tracker) RegisterAttempt(identityLabel string, now time.Time) int {
	return t.window.Register(identityLabel, now)
}

// CountRecentAttempts is the derived brute-force query: how many login
// attempts the identity made inside the sliding window ending at now. The
// tracker only counts; emitting a brute_force_detected event is the
// recorder path's job.
func (t *Tracker) CountRecentAttempts(identityLabel string, now time.Time) int {
	return t.window.Count(identityLabel, now)
}
