package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"

	"github.com/iliyamo/eldercare-auth/internal/model"
)

// SessionRepo persists refresh sessions in 'refresh_sessions'. Only the
// SHA-256 digest of the signed refresh token is stored.
type SessionRepo struct{ DB *sql.DB }

func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{DB: db} }

const (
	insertSessionSQL = "INSERT INTO refresh_sessions (jti, user_id, token_hash, expires_at, created_at) VALUES (?,?,?,?,?)"
	revokeSessionSQL = "UPDATE refresh_sessions SET revoked_at=? WHERE jti=? AND user_id=? AND token_hash=? AND revoked_at IS NULL AND expires_at > ?"
)

// Create inserts a refresh session row.
func (r *SessionRepo) Create(ctx context.Context, s model.RefreshSession) error {
	_, err := r.DB.ExecContext(ctx, insertSessionSQL, s.JTI, s.UserID, s.TokenHash, s.ExpiresAt, s.CreatedAt)
	return pkgerrors.Wrap(err, "insert refresh session")
}

// Rotate revokes old and inserts next in one transaction. The revoke is
// conditional, so of two concurrent rotations of the same token only one
// sees a matched row; the other gets ErrNotFound and inserts nothing.
func (r *SessionRepo) Rotate(ctx context.Context, old model.SessionRef, at time.Time, next model.RefreshSession) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return pkgerrors.Wrap(err, "begin rotate")
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx, revokeSessionSQL, at, old.JTI, old.UserID, old.TokenHash, at)
	if err != nil {
		return pkgerrors.Wrap(err, "revoke presented session")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return pkgerrors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, insertSessionSQL,
		next.JTI, next.UserID, next.TokenHash, next.ExpiresAt, next.CreatedAt); err != nil {
		return pkgerrors.Wrap(err, "insert rotated session")
	}
	return pkgerrors.Wrap(tx.Commit(), "commit rotate")
}

// Revoke marks the matching session revoked. It reports whether a row changed.
func (r *SessionRepo) Revoke(ctx context.Context, ref model.SessionRef, at time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_sessions SET revoked_at=? WHERE jti=? AND user_id=? AND token_hash=? AND revoked_at IS NULL",
		at, ref.JTI, ref.UserID, ref.TokenHash)
	if err != nil {
		return false, pkgerrors.Wrap(err, "revoke refresh session")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, pkgerrors.Wrap(err, "rows affected")
	}
	return n > 0, nil
}

// RevokeAllForUser revokes all of the user's active sessions.
func (r *SessionRepo) RevokeAllForUser(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_sessions SET revoked_at=? WHERE user_id=? AND revoked_at IS NULL",
		at, userID)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "revoke user sessions")
	}
	return res.RowsAffected()
}

// PurgeExpired deletes sessions that expired before before.
func (r *SessionRepo) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM refresh_sessions WHERE expires_at < ?", before)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "purge refresh sessions")
	}
	return res.RowsAffected()
}
