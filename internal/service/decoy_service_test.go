package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Kaushals112/shadow-aiims-defender/internal/hashing"
	"github.com/Kaushals112/shadow-aiims-defender/internal/models"
	"github.com/Kaushals112/shadow-aiims-defender/internal/recorder"
	"github.com/Kaushals112/shadow-aiims-defender/internal/session"
	"github.com/Kaushals112/shadow-aiims-defender/internal/token"
)

type recordingMirror struct {
	mu      sync.Mutex
	records []models.SessionRecord
	fail    bool
}

func (m *recordingMirror) MirrorSession(_ context.Context, rec models.SessionRecord) error {
	if m.fail {
		return errors.New("mirror down")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func newTestService(t *testing.T, mirrors ...SessionMirror) (*DecoyService, recorder.EventStore) {
	t.Helper()
	store := recorder.NewMemoryStore()
	tracker := session.NewTracker(30*time.Minute, zap.NewNop())
	rec := recorder.New(store, zap.NewNop())
	issuer := token.NewIssuer()
	svc := NewDecoyService(tracker, rec, issuer, hashing.NewHasher(), 0, zap.NewNop(), mirrors...)
	return svc, store
}

func kindsOf(t *testing.T, store recorder.EventStore, sessionID string) []models.EventKind {
	t.Helper()
	events, err := store.EventsForSession(context.Background(), sessionID)
	require.NoError(t, err)
	kinds := make([]models.EventKind, 0, len(events))
	for _, e := range events {
		kinds = append(kinds, e.EventKind)
	}
	return kinds
}

func TestLoginSuccessOnlyWithDecoyCredentials(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	id := svc.StartSession(ctx, "10.0.0.1")

	result, err := svc.Login(ctx, id, "admin", "admin123")
	require.NoError(t, err)
	assert.True(t, result.Authenticated)
	assert.NotEmpty(t, result.Token)
	assert.Equal(t, "admin", result.Claim.Username)
	assert.Equal(t, "AIIMS_ADMIN", result.Claim.Department)

	kinds := kindsOf(t, store, id)
	assert.Contains(t, kinds, models.EventLoginAttempt)
	assert.Contains(t, kinds, models.EventLoginSuccess)
	assert.NotContains(t, kinds, models.EventLoginFailure)
}

func TestLoginFailureRecordsAndRejects(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	id := svc.StartSession(ctx, "10.0.0.1")

	result, err := svc.Login(ctx, id, "admin", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.False(t, result.Authenticated)

	kinds := kindsOf(t, store, id)
	assert.Contains(t, kinds, models.EventLoginAttempt)
	assert.Contains(t, kinds, models.EventLoginFailure)
	assert.NotContains(t, kinds, models.EventLoginSuccess)
}

func TestLoginQuotedUsernameFlagsSQLInjection(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	id := svc.StartSession(ctx, "10.0.0.1")

	_, err := svc.Login(ctx, id, `admin' OR '1'='1`, "x")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	events, err := store.EventsByKind(ctx, models.EventSQLInjectionAttempt)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "username", events[0].Context["field"])
}

func TestLoginQuotedPasswordFlagsSQLInjection(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	id := svc.StartSession(ctx, "10.0.0.1")

	_, err := svc.Login(ctx, id, "admin", `pass' --`)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	events, err := store.EventsByKind(ctx, models.EventSQLInjectionAttempt)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "password", events[0].Context["field"])
}

func TestBruteForceDetectedWithoutLockout(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	id := svc.StartSession(ctx, "10.0.0.1")

	for i := 0; i < 4; i++ {
		result, err := svc.Login(ctx, id, "admin", "wrong")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
		assert.False(t, result.BruteForce)
	}

	result, err := svc.Login(ctx, id, "admin", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.True(t, result.BruteForce)
	assert.Equal(t, 5, result.AttemptCount)

	bruteEvents, err := store.EventsByKind(ctx, models.EventBruteForceDetected)
	require.NoError(t, err)
	require.Len(t, bruteEvents, 1)
	assert.Equal(t, "5_minutes", bruteEvents[0].Context["timeframe"])

	// The flag never locks anyone out: the next correct attempt succeeds.
	result, err = svc.Login(ctx, id, "admin", "admin123")
	require.NoError(t, err)
	assert.True(t, result.Authenticated)
	assert.True(t, result.BruteForce, "still flagged inside the window")
}

func TestSubmitFieldSearchQuery(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	id := svc.StartSession(ctx, "10.0.0.1")

	tags := svc.SubmitField(ctx, id, "search_query", `' OR 1=1 --`)
	assert.Contains(t, tags, models.EventSQLInjectionAttempt)

	kinds := kindsOf(t, store, id)
	assert.Contains(t, kinds, models.EventSQLInjectionAttempt)
	assert.Contains(t, kinds, models.EventSearchPerformed)
}

func TestSubmitFieldBenignStillRecordsActivity(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	id := svc.StartSession(ctx, "10.0.0.1")

	tags := svc.SubmitField(ctx, id, "report_content", "monthly ward statistics")
	assert.Empty(t, tags)

	kinds := kindsOf(t, store, id)
	assert.Contains(t, kinds, models.EventReportSubmission)
	assert.NotContains(t, kinds, models.EventSQLInjectionAttempt)
	assert.NotContains(t, kinds, models.EventXSSAttempt)
}

func TestSubmitFieldXSS(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	id := svc.StartSession(ctx, "10.0.0.1")

	tags := svc.SubmitField(ctx, id, "search_query", `<img src=x onerror=alert(1)>`)
	assert.Contains(t, tags, models.EventXSSAttempt)

	events, err := store.EventsByKind(ctx, models.EventXSSAttempt)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, `<img src=x onerror=alert(1)>`, events[0].Payload)
}

func TestSubmitFileAlwaysRecordsUploadAttempt(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	id := svc.StartSession(ctx, "10.0.0.1")

	tags := svc.SubmitFile(ctx, id, "report.pdf", "application/pdf", 2048)
	assert.Empty(t, tags)

	kinds := kindsOf(t, store, id)
	assert.Contains(t, kinds, models.EventFileUploadAttempt)
	assert.NotContains(t, kinds, models.EventMaliciousFileUpload)
}

func TestSubmitFileMalicious(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	id := svc.StartSession(ctx, "10.0.0.1")

	tags := svc.SubmitFile(ctx, id, "shell.php.pdf", "application/pdf", 2048)
	assert.Contains(t, tags, models.EventMaliciousFileUpload)

	kinds := kindsOf(t, store, id)
	assert.Contains(t, kinds, models.EventFileUploadAttempt)
	assert.Contains(t, kinds, models.EventMaliciousFileUpload)
}

func TestLogoutEndsSession(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	id := svc.StartSession(ctx, "10.0.0.1")

	svc.Logout(ctx, id)

	kinds := kindsOf(t, store, id)
	assert.Contains(t, kinds, models.EventLogout)
}

func TestTrackPageVisit(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	id := svc.StartSession(ctx, "10.0.0.1")

	svc.TrackPageVisit(ctx, id, "/reports", "/")
	svc.TrackPageVisit(ctx, id, "/dashboard", "/login")

	visits, err := store.EventsByKind(ctx, models.EventPageVisit)
	require.NoError(t, err)
	assert.Len(t, visits, 1)

	dashboard, err := store.EventsByKind(ctx, models.EventDashboardAccess)
	require.NoError(t, err)
	require.Len(t, dashboard, 1)
	assert.Equal(t, "/login", dashboard[0].Context["referrer"])
}

func TestEventsCarrySourceIdentity(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	id := svc.StartSession(ctx, "203.0.113.7")

	svc.TrackPageVisit(ctx, id, "/", "")

	events, err := store.EventsForSession(ctx, id)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, "203.0.113.7", events[0].SourceIdentity)
}

func TestUnknownSessionStillRecords(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	tags := svc.SubmitField(ctx, "sess_stale", "search_query", `<script>x</script>`)
	assert.Contains(t, tags, models.EventXSSAttempt)

	events, err := store.EventsForSession(ctx, "sess_stale")
	require.NoError(t, err)
	assert.NotEmpty(t, events)
}

func TestMirrorsReceiveTransitions(t *testing.T) {
	mirror := &recordingMirror{}
	svc, _ := newTestService(t, mirror)
	ctx := context.Background()

	id := svc.StartSession(ctx, "10.0.0.1")
	_, err := svc.Login(ctx, id, "admin", "admin123")
	require.NoError(t, err)
	svc.Logout(ctx, id)

	require.Len(t, mirror.records, 3)
	assert.Equal(t, models.SessionActive, mirror.records[0].Status)
	assert.Equal(t, "admin", mirror.records[1].IdentityLabel)
	assert.Equal(t, models.SessionLoggedOut, mirror.records[2].Status)
}

func TestFailingMirrorDoesNotBreakFlows(t *testing.T) {
	mirror := &recordingMirror{fail: true}
	svc, _ := newTestService(t, mirror)
	ctx := context.Background()

	id := svc.StartSession(ctx, "10.0.0.1")
	result, err := svc.Login(ctx, id, "admin", "admin123")
	require.NoError(t, err)
	assert.True(t, result.Authenticated)
}

type stubCounter struct{ n int }

func (c *stubCounter) Register(context.Context, string, time.Time) (int, error) {
	c.n++
	return c.n, nil
}

func TestSharedAttemptCounterPreferred(t *testing.T) {
	svc, _ := newTestService(t)
	counter := &stubCounter{n: 3}
	svc.UseAttemptCounter(counter)
	ctx := context.Background()
	id := svc.StartSession(ctx, "10.0.0.1")

	result, err := svc.Login(ctx, id, "admin", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, 4, result.AttemptCount)
}

type erroringCounter struct{}

func (erroringCounter) Register(context.Context, string, time.Time) (int, error) {
	return 0, errors.New("redis down")
}

func TestSharedAttemptCounterFallsBackLocally(t *testing.T) {
	svc, _ := newTestService(t)
	svc.UseAttemptCounter(erroringCounter{})
	ctx := context.Background()
	id := svc.StartSession(ctx, "10.0.0.1")

	result, err := svc.Login(ctx, id, "admin", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, 1, result.AttemptCount, "local window takes over")
}

func TestValidateAndRefreshToken(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	id := svc.StartSession(ctx, "10.0.0.1")

	result, err := svc.Login(ctx, id, "admin", "admin123")
	require.NoError(t, err)

	claim, status := svc.ValidateToken(result.Token)
	require.Equal(t, token.StatusValid, status)
	assert.Equal(t, id, claim.SessionID)

	fresh, refreshed, err := svc.RefreshToken(result.Token)
	require.NoError(t, err)
	assert.NotEmpty(t, fresh)
	assert.Equal(t, id, refreshed.SessionID)
}
