package hashing

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

// The decoy portal accepts exactly one credential pair (admin / admin123).
// The pair is intentionally weak: it is bait, not a credential store.
const (
	decoyUsername = "admin"
	decoyPassword = "admin123"
)

// Hasher verifies decoy credentials and fingerprints captured payloads.
// The decoy password is hashed once at construction so login comparisons go
// through bcrypt rather than string equality.
type Hasher struct {
	username     string
	passwordHash []byte
}

// NewHasher creates a hasher bound to the portal's fixed decoy credentials.
func NewHasher() *Hasher {
	hash, err := bcrypt.GenerateFromPassword([]byte(decoyPassword), bcrypt.DefaultCost)
	if err != nil {
		// Only reachable on an invalid cost parameter.
		panic("failed to hash decoy password: " + err.Error())
	}
	return &Hasher{
		username:     decoyUsername,
		passwordHash: hash,
	}
}

// VerifyDecoyCredentials reports whether the pair is the portal's single
// accepted login. Username comparison is constant-time alongside the bcrypt
// check so timing does not leak which half was wrong.
func (h *Hasher) VerifyDecoyCredentials(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(h.username)) == 1
	passOK := bcrypt.CompareHashAndPassword(h.passwordHash, []byte(password)) == nil
	return userOK && passOK
}

// FingerprintPayload returns a stable hex digest of a captured payload,
// used as a dedup key when indexing events.
func (h *Hasher) FingerprintPayload(payload string) string {
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
