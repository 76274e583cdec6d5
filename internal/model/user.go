package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is the coarse-grained role carried in access tokens. Authorization
// beyond checking this claim is out of scope for the auth service.
type Role string

const (
	RolePatient   Role = "PATIENT"
	RoleCaregiver Role = "CAREGIVER"
	RoleDoctor    Role = "DOCTOR"
	RoleAdmin     Role = "ADMIN"
)

// AllRoles lists every role known to the service.
var AllRoles = []Role{RolePatient, RoleCaregiver, RoleDoctor, RoleAdmin}

// ParseRole converts a case-insensitive role name into a Role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range AllRoles {
		if r == known {
			return r, true
		}
	}
	return "", false
}

// User represents an account record as stored in the `users` table.
// The auth core only holds transient copies of it during a request;
// persistence owns the record.
//
// Fields:
//
//	ID              – primary key (UUID, CHAR(36)).
//	FirstName       – given name.
//	LastName        – family name.
//	Email           – unique, lower-cased email address.
//	PasswordHash    – bcrypt digest of the password.
//	Role            – one of AllRoles.
//	IsActive        – set together with IsEmailVerified by email verification.
//	IsEmailVerified – whether the verification link was used.
//	CreatedAt       – timestamp of creation.
//	UpdatedAt       – timestamp of last update.
type User struct {
	ID              uuid.UUID // users.id
	FirstName       string    // users.first_name
	LastName        string    // users.last_name
	Email           string    // users.email
	PasswordHash    string    // users.password_hash
	Role            Role      // users.role
	IsActive        bool      // users.is_active
	IsEmailVerified bool      // users.is_email_verified
	CreatedAt       time.Time // users.created_at
	UpdatedAt       time.Time // users.updated_at
}

// CanLogin reports whether the account has completed email verification.
func (u User) CanLogin() bool {
	return u.IsActive && u.IsEmailVerified
}

// Profile is the public projection of a user returned by GET /v1/me.
type Profile struct {
	ID              uuid.UUID `json:"id"`
	FirstName       string    `json:"first_name"`
	LastName        string    `json:"last_name"`
	Email           string    `json:"email"`
	Role            Role      `json:"role"`
	IsEmailVerified bool      `json:"is_email_verified"`
	CreatedAt       time.Time `json:"created_at"`
}

// Profile returns the public projection of u.
func (u User) Profile() Profile {
	return Profile{
		ID:              u.ID,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		Email:           u.Email,
		Role:            u.Role,
		IsEmailVerified: u.IsEmailVerified,
		CreatedAt:       u.CreatedAt,
	}
}

// NormalizeEmail lower-cases and trims an email address. Every lookup and
// insert goes through it so uniqueness is case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
