package model

import (
	"time"

	"github.com/google/uuid"
)

// Purpose scopes a single-use token to the flow that issued it.
type Purpose string

const (
	PurposeVerifyEmail   Purpose = "VERIFY_EMAIL"
	PurposeResetPassword Purpose = "RESET_PASSWORD"
)

// SingleUseToken models an entry in the `single_use_tokens` table. Only the
// SHA-256 digest of the secret is stored; the plaintext is handed out once
// in an email link.
//
// Fields:
//
//	ID         – primary key.
//	UserID     – owner of the token.
//	TokenHash  – hex SHA-256 digest of the secret.
//	Purpose    – VERIFY_EMAIL or RESET_PASSWORD.
//	ExpiresAt  – expiry timestamp; never extended.
//	ConsumedAt – set exactly once when the token is used (null until then).
type SingleUseToken struct {
	ID         uuid.UUID  // single_use_tokens.id
	UserID     uuid.UUID  // single_use_tokens.user_id
	TokenHash  string     // single_use_tokens.token_hash
	Purpose    Purpose    // single_use_tokens.purpose
	ExpiresAt  time.Time  // single_use_tokens.expires_at
	ConsumedAt *time.Time // single_use_tokens.consumed_at (nullable)
	CreatedAt  time.Time  // single_use_tokens.created_at
}

// UsableAt reports whether the token can still be consumed at now.
func (t SingleUseToken) UsableAt(now time.Time) bool {
	return t.ConsumedAt == nil && now.Before(t.ExpiresAt)
}
