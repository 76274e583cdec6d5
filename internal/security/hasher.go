// Package security provides the credential hasher used for account passwords
// and the helpers that generate and digest opaque token secrets.
package security

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrEmptySecret is returned when hashing an empty password.
	ErrEmptySecret = errors.New("secret cannot be empty")
	// ErrSecretTooLong is returned for passwords bcrypt cannot hash.
	ErrSecretTooLong = errors.New("secret exceeds 72 bytes")
	// ErrMalformedDigest means a stored digest is not a bcrypt hash. It points at
	// storage corruption and must be treated as an internal failure.
	ErrMalformedDigest = errors.New("malformed password digest")
)

// MaxSecretBytes is the longest password bcrypt accepts.
const MaxSecretBytes = 72

// BcryptHasher hashes and verifies passwords with bcrypt.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a hasher using cost, clamped to bcrypt's valid range.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash returns a salted bcrypt digest of secret.
func (h *BcryptHasher) Hash(secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	if len(secret) > MaxSecretBytes {
		return "", ErrSecretTooLong
	}
	b, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify compares secret against digest in constant time. A mismatch is
// (false, nil); only an unparseable digest yields an error.
func (h *BcryptHasher) Verify(secret, digest string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(secret))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, ErrMalformedDigest
	}
}
