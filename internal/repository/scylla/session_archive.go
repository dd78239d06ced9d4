package scylla

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"github.com/Kaushals112/shadow-aiims-defender/internal/models"
	"github.com/Kaushals112/shadow-aiims-defender/internal/util"
)

// SessionArchive persists every tracked session to Scylla so session
// history survives restarts and is queryable across decoy instances. The
// in-process tracker is still authoritative for live state; the archive is
// a write-through record.
type SessionArchive struct {
	client *ScyllaClient
}

// NewSessionArchive creates the archive over an established client.
func NewSessionArchive(client *ScyllaClient) *SessionArchive {
	return &SessionArchive{client: client}
}

// MirrorSession satisfies the service mirror contract.
func (a *SessionArchive) MirrorSession(_ context.Context, rec models.SessionRecord) error {
	return a.Upsert(rec)
}

// Upsert writes the full session row. Called on start, promote, end, and
// sweep transitions; last-writer-wins matches the tracker's semantics.
func (a *SessionArchive) Upsert(rec models.SessionRecord) error {
	err := a.client.Session.Query(`
        INSERT INTO decoy_sessions
            (session_id, identity_label, source_identity, started_at,
             last_activity_at, ended_at, status)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.IdentityLabel, rec.SourceIdentity, rec.StartedAt,
		rec.LastActivityAt, rec.EndedAt, string(rec.Status),
	).Exec()
	if err != nil {
		util.Error("failed to archive session",
			zap.String("session_id", rec.SessionID),
			zap.Error(err))
		return fmt.Errorf("failed to archive session: %w", err)
	}
	return nil
}

// Get fetches one archived session.
func (a *SessionArchive) Get(sessionID string) (*models.SessionRecord, error) {
	var rec models.SessionRecord
	var status string
	err := a.client.Session.Query(`
        SELECT session_id, identity_label, source_identity, started_at,
               last_activity_at, ended_at, status
        FROM decoy_sessions WHERE session_id = ?`, sessionID).
		Scan(&rec.SessionID, &rec.IdentityLabel, &rec.SourceIdentity,
			&rec.StartedAt, &rec.LastActivityAt, &rec.EndedAt, &status)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, fmt.Errorf("session not archived: %s", sessionID)
		}
		return nil, fmt.Errorf("failed to read archived session: %w", err)
	}
	rec.Status = models.SessionStatus(status)
	return &rec, nil
}

// ListByStatus scans archived sessions with a given status.
func (a *SessionArchive) ListByStatus(status models.SessionStatus) ([]models.SessionRecord, error) {
	iter := a.client.Session.Query(`
        SELECT session_id, identity_label, source_identity, started_at,
               last_activity_at, ended_at, status
        FROM decoy_sessions WHERE status = ? ALLOW FILTERING`, string(status)).Iter()

	var out []models.SessionRecord
	var rec models.SessionRecord
	var st string
	for iter.Scan(&rec.SessionID, &rec.IdentityLabel, &rec.SourceIdentity,
		&rec.StartedAt, &rec.LastActivityAt, &rec.EndedAt, &st) {
		rec.Status = models.SessionStatus(st)
		out = append(out, rec)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list archived sessions: %w", err)
	}
	return out, nil
}
