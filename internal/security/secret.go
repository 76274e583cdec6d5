package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// SecretBytes is the entropy of generated opaque secrets (64 hex chars).
const SecretBytes = 32

// NewSecret returns a hex-encoded string generated from n bytes of
// cryptographically secure random data.
func NewSecret(n int) (string, error) {
	if n <= 0 {
		n = SecretBytes
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Digest returns the hex SHA-256 of an opaque secret. Secrets are high
// entropy, so a fast deterministic digest is enough and lets the stores look
// records up by it; only the digest is ever persisted.
func Digest(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// EqualDigest compares two digests in constant time.
func EqualDigest(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
