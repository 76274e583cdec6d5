package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"

	"github.com/iliyamo/eldercare-auth/internal/model"
)

// AuditRepo appends to the 'audit_events' table.
type AuditRepo struct{ DB *sql.DB }

func NewAuditRepo(db *sql.DB) *AuditRepo { return &AuditRepo{DB: db} }

// Write inserts one event.
func (r *AuditRepo) Write(ctx context.Context, e model.AuditEvent) error {
	var userID any
	if e.UserID != nil {
		userID = *e.UserID
	}
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO audit_events (id, user_id, action, ip, user_agent, created_at) VALUES (?,?,?,?,?,?)",
		uuid.New(), userID, string(e.Action), e.IP, e.UserAgent, e.CreatedAt)
	return pkgerrors.Wrap(err, "insert audit event")
}
