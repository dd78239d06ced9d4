package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Kaushals112/shadow-aiims-defender/internal/detector"
	"github.com/Kaushals112/shadow-aiims-defender/internal/hashing"
	"github.com/Kaushals112/shadow-aiims-defender/internal/models"
	"github.com/Kaushals112/shadow-aiims-defender/internal/recorder"
	"github.com/Kaushals112/shadow-aiims-defender/internal/session"
	"github.com/Kaushals112/shadow-aiims-defender/internal/token"
	"github.com/Kaushals112/shadow-aiims-defender/internal/util"
)

var (
	// ErrInvalidCredentials is surfaced to the login caller; everything the
	// attacker did is still recorded before this is returned.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// SessionMirror receives session records after state transitions, for
// write-through caches and archives. Mirror failures are logged and
// swallowed.
type SessionMirror interface {
	MirrorSession(ctx context.Context, rec models.SessionRecord) error
}

// AttemptCounter counts login attempts per identity inside a sliding
// window. A distributed implementation lets multiple decoy instances see
// the same brute-force picture.
type AttemptCounter interface {
	Register(ctx context.Context, identity string, now time.Time) (int, error)
}

// DecoyService orchestrates the portal flows: it classifies user input,
// correlates it to a session, and records the resulting events. Every flow
// is fail-open: a classifier or recorder problem never blocks the decoy UI
// from responding.
type DecoyService struct {
	tracker   *session.Tracker
	recorder  *recorder.Recorder
	issuer    *token.Issuer
	hasher    *hashing.Hasher
	threshold int
	logger    *zap.Logger
	mirrors   []SessionMirror
	attempts  AttemptCounter
}

// NewDecoyService wires the service. A threshold <= 0 falls back to the
// standard brute-force threshold.
func NewDecoyService(tracker *session.Tracker, rec *recorder.Recorder, issuer *token.Issuer,
	hasher *hashing.Hasher, threshold int, logger *zap.Logger, mirrors ...SessionMirror) *DecoyService {
	if threshold <= 0 {
		threshold = session.BruteForceThreshold
	}
	if logger == nil {
		logger = util.Get()
	}
	return &DecoyService{
		tracker:   tracker,
		recorder:  rec,
		issuer:    issuer,
		hasher:    hasher,
		threshold: threshold,
		logger:    logger,
		mirrors:   mirrors,
	}
}

// UseAttemptCounter swaps the in-process attempt window for a shared one.
// The local window stays as the fallback when the shared one errors.
func (s *DecoyService) UseAttemptCounter(counter AttemptCounter) {
	s.attempts = counter
}

// StartSession creates a fresh tracked session for a browsing context.
func (s *DecoyService) StartSession(ctx context.Context, sourceIdentity string) string {
	id := s.tracker.Start(models.AnonymousIdentity, sourceIdentity)
	s.mirror(ctx, id)
	return id
}

// SubmitField runs the classifier over a labeled input field and records
// one event per fired tag, plus the activity event the field implies
// (search_performed for searches, report_submission for report content).
func (s *DecoyService) SubmitField(ctx context.Context, sessionID, field, value string) []models.EventKind {
	s.tracker.Touch(sessionID)

	tags := detector.ClassifyText(value)
	for _, tag := range tags {
		s.record(ctx, sessionID, tag, value, map[string]interface{}{
			"field": field,
		})
	}

	switch field {
	case "search_query":
		s.record(ctx, sessionID, models.EventSearchPerformed, value, map[string]interface{}{
			"field": field,
		})
	case "report_content":
		s.record(ctx, sessionID, models.EventReportSubmission, "", map[string]interface{}{
			"field":          field,
			"content_length": len(value),
		})
	}
	return tags
}

// SubmitFile records an upload attempt and, for blocklisted filenames, a
// malicious_file_upload event. The file body never reaches the core; only
// metadata is inspected.
func (s *DecoyService) SubmitFile(ctx context.Context, sessionID, filename, declaredMIME string, size int64) []models.EventKind {
	s.tracker.Touch(sessionID)

	fileContext := map[string]interface{}{
		"filename":  filename,
		"file_type": declaredMIME,
		"file_size": size,
	}
	s.record(ctx, sessionID, models.EventFileUploadAttempt, "", fileContext)

	tags := detector.ClassifyFilename(filename, declaredMIME, size)
	for _, tag := range tags {
		s.record(ctx, sessionID, tag, filename, fileContext)
	}
	return tags
}

// LoginResult is what the decoy login flow reports back to the portal.
type LoginResult struct {
	Authenticated bool
	Token         string
	Claim         models.AuthClaim
	AttemptCount  int
	BruteForce    bool
}

// Login runs the full decoy login flow: capture the attempt verbatim, flag
// quoted credential fields as SQL injection, track the brute-force window,
// and authenticate only the fixed decoy pair. Reaching the brute-force
// threshold records a critical event but does NOT lock anything; the
// absence of a lockout is part of the lure.
func (s *DecoyService) Login(ctx context.Context, sessionID, username, password string) (*LoginResult, error) {
	s.tracker.Touch(sessionID)
	now := time.Now().UTC()

	attempts := s.registerAttempt(ctx, username, now)
	s.record(ctx, sessionID, models.EventLoginAttempt, "", map[string]interface{}{
		"username":       username,
		"password":       password,
		"attempt_number": attempts,
	})

	if detector.HasQuote(username) {
		s.record(ctx, sessionID, models.EventSQLInjectionAttempt, username, map[string]interface{}{
			"field": "username",
		})
	} else if detector.HasQuote(password) {
		s.record(ctx, sessionID, models.EventSQLInjectionAttempt, password, map[string]interface{}{
			"field": "password",
		})
	}

	result := &LoginResult{AttemptCount: attempts}
	if attempts >= s.threshold {
		result.BruteForce = true
		s.record(ctx, sessionID, models.EventBruteForceDetected, "", map[string]interface{}{
			"username":      username,
			"attempt_count": attempts,
			"timeframe":     "5_minutes",
		})
	}

	if !s.hasher.VerifyDecoyCredentials(username, password) {
		s.record(ctx, sessionID, models.EventLoginFailure, "", map[string]interface{}{
			"username": username,
			"reason":   "invalid_credentials",
		})
		return result, ErrInvalidCredentials
	}

	tok, claim, err := s.issuer.Issue(username, "admin", sessionID)
	if err != nil {
		// Token construction failing is the one hard error in the flow.
		s.logger.Error("failed to issue decoy token", zap.Error(err))
		return result, err
	}

	s.tracker.Promote(sessionID, username)
	s.mirror(ctx, sessionID)
	s.record(ctx, sessionID, models.EventLoginSuccess, "", map[string]interface{}{
		"username": username,
	})

	result.Authenticated = true
	result.Token = tok
	result.Claim = claim
	return result, nil
}

// Logout records the event and ends the session. Unknown sessions are
// recorded but otherwise a no-op.
func (s *DecoyService) Logout(ctx context.Context, sessionID string) {
	s.record(ctx, sessionID, models.EventLogout, "", nil)
	s.tracker.End(sessionID, session.EndReasonLogout)
	s.mirror(ctx, sessionID)
}

// ValidateToken checks a presented bearer token. Anything but a valid
// claim is treated as logged-out by the caller.
func (s *DecoyService) ValidateToken(tokenString string) (*models.AuthClaim, token.Status) {
	return s.issuer.Validate(tokenString)
}

// RefreshToken reissues a still-valid token.
func (s *DecoyService) RefreshToken(tokenString string) (string, models.AuthClaim, error) {
	return s.issuer.Refresh(tokenString)
}

// TrackPageVisit records navigation, with dashboard entry recorded as its
// own kind.
func (s *DecoyService) TrackPageVisit(ctx context.Context, sessionID, page, referrer string) {
	s.tracker.Touch(sessionID)

	kind := models.EventPageVisit
	if page == "/dashboard" || page == "dashboard" {
		kind = models.EventDashboardAccess
	}
	s.record(ctx, sessionID, kind, "", map[string]interface{}{
		"page":     page,
		"referrer": referrer,
	})
}

func (s *DecoyService) registerAttempt(ctx context.Context, username string, now time.Time) int {
	if s.attempts != nil {
		n, err := s.attempts.Register(ctx, username, now)
		if err == nil {
			return n
		}
		s.logger.Warn("shared attempt window unavailable, using local window",
			zap.Error(err))
	}
	return s.tracker.RegisterAttempt(username, now)
}

func (s *DecoyService) record(ctx context.Context, sessionID string, kind models.EventKind, payload string, eventContext map[string]interface{}) {
	source := ""
	if rec, ok := s.tracker.Get(sessionID); ok {
		source = rec.SourceIdentity
	}
	_, err := s.recorder.Record(ctx, models.AttackEvent{
		SessionID:      sessionID,
		SourceIdentity: source,
		EventKind:      kind,
		Payload:        payload,
		Context:        eventContext,
	})
	if err != nil {
		// Already logged by the recorder; the flow continues regardless.
		return
	}
}

func (s *DecoyService) mirror(ctx context.Context, sessionID string) {
	if len(s.mirrors) == 0 {
		return
	}
	rec, ok := s.tracker.Get(sessionID)
	if !ok {
		return
	}
	for _, m := range s.mirrors {
		if err := m.MirrorSession(ctx, rec); err != nil {
			s.logger.Warn("session mirror failed",
				zap.String("session_id", sessionID),
				zap.Error(err))
		}
	}
}
