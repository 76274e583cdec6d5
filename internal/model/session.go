package model

import (
	"time"

	"github.com/google/uuid"
)

// RefreshSession models an entry in the `refresh_sessions` table: one
// active refresh grant. A rotation revokes the record it was presented
// with and inserts a successor.
//
// Fields:
//
//	JTI       – token identifier embedded in the refresh token (primary key).
//	UserID    – owner of the session.
//	TokenHash – hex SHA-256 digest of the full refresh token.
//	ExpiresAt – expiry timestamp.
//	RevokedAt – when the session was revoked or rotated (null while valid).
//	CreatedAt – timestamp of creation.
type RefreshSession struct {
	JTI       uuid.UUID  // refresh_sessions.jti
	UserID    uuid.UUID  // refresh_sessions.user_id
	TokenHash string     // refresh_sessions.token_hash
	ExpiresAt time.Time  // refresh_sessions.expires_at
	RevokedAt *time.Time // refresh_sessions.revoked_at (nullable)
	CreatedAt time.Time  // refresh_sessions.created_at
}

// ValidAt reports whether the session is neither revoked nor expired at now.
func (s RefreshSession) ValidAt(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// SessionRef is what a presented refresh token claims about its record.
type SessionRef struct {
	JTI       uuid.UUID
	UserID    uuid.UUID
	TokenHash string
}
