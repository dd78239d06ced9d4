package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Kaushals112/shadow-aiims-defender/internal/models"
)

// The decoy portal hands out JWTs signed with the "none" algorithm. That is
// intentional: the original portal shipped a fake signature, and upgrading
// it to real signing would change observable behavior the honeypot relies
// on (a curious attacker who decodes the token should find it forgeable).
// The claim is a lure, not a security boundary.

// DefaultValidity is the claim validity window of the decoy portal.
const DefaultValidity = 8 * time.Hour

// Status is the outcome of validating a token.
type Status string

const (
	StatusValid     Status = "valid"
	StatusExpired   Status = "expired"
	StatusMalformed Status = "malformed"
)

var (
	// ErrInvalidClaim covers expired and structurally broken tokens.
	ErrInvalidClaim = errors.New("invalid claim")
)

// Claims is the JWT payload the decoy issues, mirroring the portal's
// employee-flavored fields.
type Claims struct {
	Username   string `json:"username"`
	Role       string `json:"role"`
	SessionID  string `json:"session_id"`
	Department string `json:"department,omitempty"`
	EmployeeID string `json:"employee_id,omitempty"`
	jwt.RegisteredClaims
}

// Issuer constructs and validates decoy bearer tokens. It does not persist
// anything; the caller owns token storage.
type Issuer struct {
	validity   time.Duration
	department string
	now        func() time.Time
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithValidity overrides the validity window.
func WithValidity(d time.Duration) Option {
	return func(i *Issuer) {
		if d > 0 {
			i.validity = d
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// NewIssuer creates an issuer with the decoy defaults.
func NewIssuer(opts ...Option) *Issuer {
	i := &Issuer{
		validity:   DefaultValidity,
		department: "AIIMS_ADMIN",
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Issue produces a token bound to the session with a fixed validity window.
func (i *Issuer) Issue(username, role, sessionID string) (string, models.AuthClaim, error) {
	if role == "" {
		role = "admin"
	}
	issuedAt := i.now().UTC()
	expiresAt := issuedAt.Add(i.validity)

	claims := Claims{
		Username:   username,
		Role:       role,
		SessionID:  sessionID,
		Department: i.department,
		EmployeeID: "EMP_" + strings.ToUpper(uuid.NewString()[:8]),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	signed, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		return "", models.AuthClaim{}, fmt.Errorf("failed to sign decoy token: %w", err)
	}

	return signed, models.AuthClaim{
		Username:   username,
		Role:       role,
		SessionID:  sessionID,
		Department: claims.Department,
		EmployeeID: claims.EmployeeID,
		IssuedAt:   issuedAt,
		ExpiresAt:  expiresAt,
	}, nil
}

// Validate parses the token and reports whether it is valid, expired, or
// malformed. Expired tokens still return their claims so callers can log
// who presented them.
func (i *Issuer) Validate(tokenString string) (*models.AuthClaim, Status) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodNone.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	var claims Claims
	_, err := parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (interface{}, error) {
		return jwt.UnsafeAllowNoneSignatureType, nil
	})
	if err != nil {
		return nil, StatusMalformed
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil || claims.Username == "" {
		return nil, StatusMalformed
	}

	claim := &models.AuthClaim{
		Username:   claims.Username,
		Role:       claims.Role,
		SessionID:  claims.SessionID,
		Department: claims.Department,
		EmployeeID: claims.EmployeeID,
		IssuedAt:   claims.IssuedAt.Time,
		ExpiresAt:  claims.ExpiresAt.Time,
	}
	if claim.Expired(i.now()) {
		return claim, StatusExpired
	}
	return claim, StatusValid
}

// Refresh issues a new token for the same identity and session, but only if
// the presented token still validates.
func (i *Issuer) Refresh(tokenString string) (string, models.AuthClaim, error) {
	claim, status := i.Validate(tokenString)
	if status != StatusValid {
		return "", models.AuthClaim{}, fmt.Errorf("%w: %s", ErrInvalidClaim, status)
	}
	return i.Issue(claim.Username, claim.Role, claim.SessionID)
}

// SessionFromToken extracts the session binding of a valid token, or "" if
// the token does not validate.
func (i *Issuer) SessionFromToken(tokenString string) string {
	claim, status := i.Validate(tokenString)
	if status != StatusValid {
		return ""
	}
	return claim.SessionID
}
