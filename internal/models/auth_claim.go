package models

import "time"

// AuthClaim is the decoy bearer credential handed out by the login flow.
// It asserts an identity and expiry; it is deliberately not a real security
// boundary (see internal/token).
type AuthClaim struct {
	Username   string    `json:"username"`
	Role       string    `json:"role"`
	SessionID  string    `json:"session_id"`
	Department string    `json:"department,omitempty"`
	EmployeeID string    `json:"employee_id,omitempty"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the claim's validity window has passed at now.
func (c *AuthClaim) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
