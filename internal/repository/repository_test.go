package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/eldercare-auth/internal/model"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

var at = time.Date(2026, 2, 1, 8, 30, 0, 0, time.UTC)

func TestUserRepo_CreateDuplicate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepo(db)
	u := model.User{ID: uuid.New(), Email: " Ann@Example.COM ", Role: model.RolePatient, CreatedAt: at, UpdatedAt: at}

	mock.ExpectExec("INSERT INTO users ("+userColumns+") VALUES (?,?,?,?,?,?,?,?,?,?)").
		WithArgs(u.ID.String(), "", "", "ann@example.com", "", "PATIENT", false, false, at, at).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	err := repo.Create(context.Background(), u)
	assert.ErrorIs(t, err, ErrEmailExists)
}

func TestUserRepo_GetByEmail(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepo(db)
	id := uuid.New()

	rows := sqlmock.NewRows([]string{"id", "first_name", "last_name", "email", "password_hash", "role",
		"is_active", "is_email_verified", "created_at", "updated_at"}).
		AddRow(id.String(), "Ann", "Lee", "ann@example.com", "$2a$12$x", "DOCTOR", true, true, at, at)
	mock.ExpectQuery("SELECT " + userColumns + " FROM users WHERE email=? LIMIT 1").
		WithArgs("ann@example.com").
		WillReturnRows(rows)

	u, err := repo.GetByEmail(context.Background(), "ANN@example.com")
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)
	assert.Equal(t, model.RoleDoctor, u.Role)
	assert.True(t, u.CanLogin())
}

func TestUserRepo_GetByIDMissing(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepo(db)
	id := uuid.New()

	mock.ExpectQuery("SELECT " + userColumns + " FROM users WHERE id=? LIMIT 1").
		WithArgs(id.String()).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserRepo_MarkEmailVerifiedMissing(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepo(db)
	id := uuid.New()

	mock.ExpectExec("UPDATE users SET is_active=TRUE, is_email_verified=TRUE, updated_at=? WHERE id=?").
		WithArgs(at, id.String()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.MarkEmailVerified(context.Background(), id, at), ErrNotFound)
}

func TestSingleUseTokenRepo_Consume(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSingleUseTokenRepo(db)
	id, userID := uuid.New(), uuid.New()

	mock.ExpectExec("UPDATE single_use_tokens SET consumed_at=? WHERE token_hash=? AND purpose=? AND consumed_at IS NULL AND expires_at > ?").
		WithArgs(at, "hash", "VERIFY_EMAIL", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT id, user_id, token_hash, purpose, expires_at, consumed_at, created_at FROM single_use_tokens WHERE token_hash=? LIMIT 1").
		WithArgs("hash").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token_hash", "purpose", "expires_at", "consumed_at", "created_at"}).
			AddRow(id.String(), userID.String(), "hash", "VERIFY_EMAIL", at.Add(time.Hour), at, at.Add(-time.Hour)))

	tok, err := repo.Consume(context.Background(), "hash", model.PurposeVerifyEmail, at)
	require.NoError(t, err)
	assert.Equal(t, userID, tok.UserID)
	require.NotNil(t, tok.ConsumedAt)
	assert.Equal(t, at, *tok.ConsumedAt)
}

func TestSingleUseTokenRepo_ConsumeNoMatch(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSingleUseTokenRepo(db)

	mock.ExpectExec("UPDATE single_use_tokens SET consumed_at=? WHERE token_hash=? AND purpose=? AND consumed_at IS NULL AND expires_at > ?").
		WithArgs(at, "hash", "RESET_PASSWORD", at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := repo.Consume(context.Background(), "hash", model.PurposeResetPassword, at)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionRepo_Rotate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSessionRepo(db)
	old := model.SessionRef{JTI: uuid.New(), UserID: uuid.New(), TokenHash: "old"}
	next := model.RefreshSession{JTI: uuid.New(), UserID: old.UserID, TokenHash: "new", ExpiresAt: at.Add(time.Hour), CreatedAt: at}

	mock.ExpectBegin()
	mock.ExpectExec(revokeSessionSQL).
		WithArgs(at, old.JTI.String(), old.UserID.String(), "old", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertSessionSQL).
		WithArgs(next.JTI.String(), next.UserID.String(), "new", next.ExpiresAt, at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Rotate(context.Background(), old, at, next))
}

func TestSessionRepo_RotateLosesRace(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSessionRepo(db)
	old := model.SessionRef{JTI: uuid.New(), UserID: uuid.New(), TokenHash: "old"}

	mock.ExpectBegin()
	mock.ExpectExec(revokeSessionSQL).
		WithArgs(at, old.JTI.String(), old.UserID.String(), "old", at).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Rotate(context.Background(), old, at, model.RefreshSession{JTI: uuid.New()})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionRepo_RevokeAllForUser(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSessionRepo(db)
	userID := uuid.New()

	mock.ExpectExec("UPDATE refresh_sessions SET revoked_at=? WHERE user_id=? AND revoked_at IS NULL").
		WithArgs(at, userID.String()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.RevokeAllForUser(context.Background(), userID, at)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestAuditRepo_WriteAnonymous(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAuditRepo(db)

	mock.ExpectExec("INSERT INTO audit_events (id, user_id, action, ip, user_agent, created_at) VALUES (?,?,?,?,?,?)").
		WithArgs(sqlmock.AnyArg(), nil, "LOGIN_FAIL", "10.0.0.1", "curl", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Write(context.Background(), model.AuditEvent{Action: model.ActionLoginFail, IP: "10.0.0.1", UserAgent: "curl", CreatedAt: at})
	assert.NoError(t, err)
}
