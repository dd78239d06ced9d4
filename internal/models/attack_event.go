package models

import "time"

// EventKind classifies a tracked interaction with the decoy portal.
type EventKind string

const (
	EventSQLInjectionAttempt EventKind = "sql_injection_attempt"
	EventXSSAttempt          EventKind = "xss_attempt"
	EventMaliciousFileUpload EventKind = "malicious_file_upload"
	EventFileUploadAttempt   EventKind = "file_upload_attempt"
	EventBruteForceDetected  EventKind = "brute_force_detected"
	EventLoginAttempt        EventKind = "login_attempt"
	EventLoginSuccess        EventKind = "login_success"
	EventLoginFailure        EventKind = "login_failure"
	EventSearchPerformed     EventKind = "search_performed"
	EventReportSubmission    EventKind = "report_submission"
	EventPageVisit           EventKind = "page_visit"
	EventDashboardAccess     EventKind = "dashboard_access"
	EventLogout              EventKind = "logout"
)

// Severity is the coarse triage bucket derived from an event kind.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// AttackEvent is one classified interaction, always bound to exactly one
// session. Payload is stored verbatim; display truncation is the consumer's
// concern.
type AttackEvent struct {
	EventID        string                 `json:"event_id" db:"event_id"`
	SessionID      string                 `json:"session_id" db:"session_id"`
	SourceIdentity string                 `json:"source_identity" db:"source_identity"`
	EventKind      EventKind              `json:"event_kind" db:"event_kind"`
	Payload        string                 `json:"payload,omitempty" db:"payload"`
	OccurredAt     time.Time              `json:"occurred_at" db:"occurred_at"`
	Context        map[string]interface{} `json:"context,omitempty" db:"context"`
}

// KnownKinds lists every valid event kind.
var KnownKinds = []EventKind{
	EventSQLInjectionAttempt,
	EventXSSAttempt,
	EventMaliciousFileUpload,
	EventFileUploadAttempt,
	EventBruteForceDetected,
	EventLoginAttempt,
	EventLoginSuccess,
	EventLoginFailure,
	EventSearchPerformed,
	EventReportSubmission,
	EventPageVisit,
	EventDashboardAccess,
	EventLogout,
}

// IsValidKind reports whether k is a member of the fixed event kind set.
func IsValidKind(k EventKind) bool {
	for _, known := range KnownKinds {
		if k == known {
			return true
		}
	}
	return false
}

// SeverityOf maps an event kind to its triage bucket. Kinds outside the
// critical and warning sets are informational.
func SeverityOf(k EventKind) Severity {
	switch k {
	case EventSQLInjectionAttempt, EventBruteForceDetected, EventMaliciousFileUpload:
		return SeverityCritical
	case EventXSSAttempt, EventLoginAttempt:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}
