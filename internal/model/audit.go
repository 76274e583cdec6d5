package model

import (
	"time"

	"github.com/google/uuid"
)

// Action names an audited auth event.
type Action string

const (
	ActionRegister     Action = "REGISTER"
	ActionVerifyEmail  Action = "VERIFY_EMAIL"
	ActionLoginSuccess Action = "LOGIN_SUCCESS"
	ActionLoginFail    Action = "LOGIN_FAIL"
	ActionRefresh      Action = "REFRESH"
	ActionForgotPW     Action = "FORGOT_PW"
	ActionResetPW      Action = "RESET_PW"
	ActionLogout       Action = "LOGOUT"
	ActionLogoutAll    Action = "LOGOUT_ALL"
)

// AuditEvent is an append-only record in the `audit_events` table. UserID
// is nil when the event could not be tied to an account (for example a
// login attempt for an unknown email).
type AuditEvent struct {
	UserID    *uuid.UUID `json:"user_id,omitempty"`
	Action    Action     `json:"action"`
	IP        string     `json:"ip"`
	UserAgent string     `json:"user_agent"`
	CreatedAt time.Time  `json:"created_at"`
}
