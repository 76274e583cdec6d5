package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"

	"github.com/iliyamo/eldercare-auth/internal/model"
)

// SingleUseTokenRepo persists verification and reset tokens in
// 'single_use_tokens'.
type SingleUseTokenRepo struct{ DB *sql.DB }

func NewSingleUseTokenRepo(db *sql.DB) *SingleUseTokenRepo { return &SingleUseTokenRepo{DB: db} }

// Create inserts t.
func (r *SingleUseTokenRepo) Create(ctx context.Context, t model.SingleUseToken) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO single_use_tokens (id, user_id, token_hash, purpose, expires_at, created_at) VALUES (?,?,?,?,?,?)",
		t.ID, t.UserID, t.TokenHash, string(t.Purpose), t.ExpiresAt, t.CreatedAt)
	return pkgerrors.Wrap(err, "insert single-use token")
}

// Consume marks the token consumed if it is still usable at at and returns
// the updated row. The check and the mark are one UPDATE statement, which is
// what makes concurrent consumption safe.
func (r *SingleUseTokenRepo) Consume(ctx context.Context, tokenHash string, purpose model.Purpose, at time.Time) (model.SingleUseToken, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE single_use_tokens SET consumed_at=? WHERE token_hash=? AND purpose=? AND consumed_at IS NULL AND expires_at > ?",
		at, tokenHash, string(purpose), at)
	if err != nil {
		return model.SingleUseToken{}, pkgerrors.Wrap(err, "consume single-use token")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.SingleUseToken{}, pkgerrors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return model.SingleUseToken{}, ErrNotFound
	}

	var (
		t          model.SingleUseToken
		p          string
		consumedAt sql.NullTime
	)
	err = r.DB.QueryRowContext(ctx,
		"SELECT id, user_id, token_hash, purpose, expires_at, consumed_at, created_at FROM single_use_tokens WHERE token_hash=? LIMIT 1",
		tokenHash).Scan(&t.ID, &t.UserID, &t.TokenHash, &p, &t.ExpiresAt, &consumedAt, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SingleUseToken{}, ErrNotFound
	}
	if err != nil {
		return model.SingleUseToken{}, pkgerrors.Wrap(err, "load consumed token")
	}
	t.Purpose = model.Purpose(p)
	if consumedAt.Valid {
		ts := consumedAt.Time
		t.ConsumedAt = &ts
	}
	return t, nil
}

// InvalidateForUser consumes every outstanding token of the user for purpose.
func (r *SingleUseTokenRepo) InvalidateForUser(ctx context.Context, userID uuid.UUID, purpose model.Purpose, at time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE single_use_tokens SET consumed_at=? WHERE user_id=? AND purpose=? AND consumed_at IS NULL",
		at, userID, string(purpose))
	if err != nil {
		return 0, pkgerrors.Wrap(err, "invalidate single-use tokens")
	}
	return res.RowsAffected()
}

// PurgeExpired deletes tokens that expired before before.
func (r *SingleUseTokenRepo) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM single_use_tokens WHERE expires_at < ?", before)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "purge single-use tokens")
	}
	return res.RowsAffected()
}
