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

const userColumns = "id,first_name,last_name,email,password_hash,role,is_active,is_email_verified,created_at,updated_at"

// UserRepo reads and writes the 'users' table.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// Create inserts u. Email is normalized before insert; a duplicate key
// returns ErrEmailExists.
func (r *UserRepo) Create(ctx context.Context, u model.User) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO users ("+userColumns+") VALUES (?,?,?,?,?,?,?,?,?,?)",
		u.ID, u.FirstName, u.LastName, model.NormalizeEmail(u.Email), u.PasswordHash, string(u.Role),
		u.IsActive, u.IsEmailVerified, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isDuplicate(err) {
			return ErrEmailExists
		}
		return pkgerrors.Wrap(err, "insert user")
	}
	return nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", model.NormalizeEmail(email))
	return scanUser(row)
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
	return scanUser(row)
}

// MarkEmailVerified activates the account and flags its email as verified.
func (r *UserRepo) MarkEmailVerified(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET is_active=TRUE, is_email_verified=TRUE, updated_at=? WHERE id=?", at, id)
	if err != nil {
		return pkgerrors.Wrap(err, "verify user email")
	}
	return expectRow(res)
}

// UpdatePassword replaces the password digest.
func (r *UserRepo) UpdatePassword(ctx context.Context, id uuid.UUID, hash string, at time.Time) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET password_hash=?, updated_at=? WHERE id=?", hash, at, id)
	if err != nil {
		return pkgerrors.Wrap(err, "update user password")
	}
	return expectRow(res)
}

func scanUser(row *sql.Row) (model.User, error) {
	var (
		u    model.User
		role string
	)
	err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &role,
		&u.IsActive, &u.IsEmailVerified, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, pkgerrors.Wrap(err, "scan user")
	}
	u.Role = model.Role(role)
	return u, nil
}

// expectRow maps a zero-row update to ErrNotFound. MySQL reports only changed
// rows, so the DSN sets clientFoundRows to count matched rows instead.
func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return pkgerrors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
