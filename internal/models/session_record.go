package models

import "time"

// SessionStatus is the lifecycle state of a tracked browsing session.
// Active is the only non-terminal state: a session moves to expired on
// timeout sweep or to logged_out on explicit end, and never back.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionExpired   SessionStatus = "expired"
	SessionLoggedOut SessionStatus = "logged_out"
)

// AnonymousIdentity labels a session with no authenticated username.
const AnonymousIdentity = "anonymous"

// SessionRecord tracks one browsing session of a (presumed) attacker.
type SessionRecord struct {
	SessionID      string        `json:"session_id" db:"session_id"`
	IdentityLabel  string        `json:"identity_label" db:"identity_label"`
	SourceIdentity string        `json:"source_identity" db:"source_identity"`
	StartedAt      time.Time     `json:"started_at" db:"started_at"`
	LastActivityAt time.Time     `json:"last_activity_at" db:"last_activity_at"`
	EndedAt        time.Time     `json:"ended_at,omitzero" db:"ended_at"`
	Status         SessionStatus `json:"status" db:"status"`
}

// Terminal reports whether the session can no longer change state.
func (s *SessionRecord) Terminal() bool {
	return s.Status == SessionExpired || s.Status == SessionLoggedOut
}
