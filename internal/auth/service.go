// Package auth implements the account and token flows of the service:
// registration, email verification, login, refresh rotation, password reset,
// profile lookup and logout. Handlers call it with already validated input;
// it returns typed *apperr.Error failures.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/iliyamo/eldercare-auth/internal/apperr"
	"github.com/iliyamo/eldercare-auth/internal/audit"
	"github.com/iliyamo/eldercare-auth/internal/mail"
	"github.com/iliyamo/eldercare-auth/internal/metrics"
	"github.com/iliyamo/eldercare-auth/internal/model"
	"github.com/iliyamo/eldercare-auth/internal/onetime"
	"github.com/iliyamo/eldercare-auth/internal/repository"
	"github.com/iliyamo/eldercare-auth/internal/security"
	"github.com/iliyamo/eldercare-auth/internal/session"
	"github.com/iliyamo/eldercare-auth/internal/token"
)

// UserRepository is the user persistence the service needs. Lookups return
// repository.ErrNotFound for a missing user and Create returns
// repository.ErrEmailExists on a duplicate email.
type UserRepository interface {
	Create(ctx context.Context, u model.User) error
	GetByID(ctx context.Context, id uuid.UUID) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	MarkEmailVerified(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string, at time.Time) error
}

// Hasher hashes and verifies account passwords.
type Hasher interface {
	Hash(secret string) (string, error)
	Verify(secret, digest string) (bool, error)
}

// Deps are the collaborators of a Service. Every field except Log, Now and
// MailProvider is required.
type Deps struct {
	Users        UserRepository
	Hasher       Hasher
	Codec        *token.Codec
	OneTime      *onetime.Store
	Sessions     *session.Store
	Mail         mail.Sender
	MailProvider string
	Links        mail.Links
	Audit        audit.Recorder
	Log          zerolog.Logger
	AccessTTL    time.Duration
	VerifyTTL    time.Duration
	ResetTTL     time.Duration
	Now          func() time.Time
}

// Service runs the auth flows. It holds no per-request state.
type Service struct {
	users        UserRepository
	hasher       Hasher
	codec        *token.Codec
	oneTime      *onetime.Store
	sessions     *session.Store
	mail         mail.Sender
	mailProvider string
	links        mail.Links
	audit        audit.Recorder
	log          zerolog.Logger
	accessTTL    time.Duration
	verifyTTL    time.Duration
	resetTTL     time.Duration
	now          func() time.Time

	// digest compared against on unknown emails so both login failures cost
	// one bcrypt verification
	dummyDigest string
}

// Message is the fixed success message of flows that return no data.
type Message string

const (
	MsgVerificationSent Message = "verification_sent"
	MsgEmailVerified    Message = "email_verified"
	MsgResetLinkSent    Message = "reset_link_sent"
	MsgPasswordReset    Message = "password_reset"
	MsgLoggedOut        Message = "logged_out"
)

// Meta is request metadata copied into audit events.
type Meta struct {
	IP        string
	UserAgent string
}

// RegisterInput is a validated registration request. An empty Role means
// PATIENT.
type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
	Role      string
}

// TokenPair is returned by Login and Refresh.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	TokenType        string    `json:"token_type"`
}

// Principal is the caller identified by a valid access token.
type Principal struct {
	UserID    uuid.UUID
	Role      model.Role
	ExpiresAt time.Time
}

// New checks deps and returns a Service.
func New(d Deps) (*Service, error) {
	switch {
	case d.Users == nil:
		return nil, errors.New("auth: user repository is required")
	case d.Hasher == nil:
		return nil, errors.New("auth: hasher is required")
	case d.Codec == nil:
		return nil, errors.New("auth: token codec is required")
	case d.OneTime == nil:
		return nil, errors.New("auth: single-use token store is required")
	case d.Sessions == nil:
		return nil, errors.New("auth: session store is required")
	case d.Mail == nil:
		return nil, errors.New("auth: mail sender is required")
	case d.Audit == nil:
		return nil, errors.New("auth: audit recorder is required")
	case d.AccessTTL <= 0 || d.VerifyTTL <= 0 || d.ResetTTL <= 0:
		return nil, errors.New("auth: token lifetimes must be positive")
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.MailProvider == "" {
		d.MailProvider = "default"
	}

	dummy, err := d.Hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, err
	}

	return &Service{
		users:        d.Users,
		hasher:       d.Hasher,
		codec:        d.Codec,
		oneTime:      d.OneTime,
		sessions:     d.Sessions,
		mail:         d.Mail,
		mailProvider: d.MailProvider,
		links:        d.Links,
		audit:        d.Audit,
		log:          d.Log.With().Str("component", "auth").Logger(),
		accessTTL:    d.AccessTTL,
		verifyTTL:    d.VerifyTTL,
		resetTTL:     d.ResetTTL,
		now:          d.Now,
		dummyDigest:  dummy,
	}, nil
}

// Register creates an inactive account and emails a verification link.
func (s *Service) Register(ctx context.Context, in RegisterInput, meta Meta) (_ Message, err error) {
	defer s.observe("register", &err)

	role := model.RolePatient
	if in.Role != "" {
		r, ok := model.ParseRole(in.Role)
		if !ok || r == model.RoleAdmin {
			return "", apperr.Validation(apperr.FieldError{Field: "role", Reason: "must be one of PATIENT, CAREGIVER, DOCTOR"})
		}
		role = r
	}
	if err := checkPassword("password", in.Password); err != nil {
		return "", err
	}
	email := model.NormalizeEmail(in.Email)

	_, err = s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return "", apperr.ErrEmailInUse
	case !errors.Is(err, repository.ErrNotFound):
		return "", apperr.Internal("lookup user", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return "", apperr.Internal("hash password", err)
	}
	now := s.now().UTC()
	u := model.User{
		ID:           uuid.New(),
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		// lost a race with a concurrent registration of the same email
		if errors.Is(err, repository.ErrEmailExists) {
			return "", apperr.ErrEmailInUse
		}
		return "", apperr.Internal("create user", err)
	}

	secret, _, err := s.oneTime.Issue(ctx, u.ID, model.PurposeVerifyEmail, s.verifyTTL)
	if err != nil {
		return "", apperr.Internal("issue verification token", err)
	}
	s.deliver(ctx, u, func() (mail.Email, error) {
		return mail.VerificationEmail(u.FirstName, s.links.Verify(secret))
	})
	s.record(ctx, &u.ID, model.ActionRegister, meta)
	return MsgVerificationSent, nil
}

// VerifyEmail consumes a verification secret and activates its account.
func (s *Service) VerifyEmail(ctx context.Context, secret string, meta Meta) (_ Message, err error) {
	defer s.observe("verify_email", &err)

	t, err := s.oneTime.Consume(ctx, secret, model.PurposeVerifyEmail)
	if errors.Is(err, onetime.ErrNotFound) {
		return "", apperr.ErrTokenInvalid
	}
	if err != nil {
		return "", apperr.Internal("consume verification token", err)
	}
	if err := s.users.MarkEmailVerified(ctx, t.UserID, s.now().UTC()); err != nil {
		return "", apperr.Internal("activate user", err)
	}
	s.record(ctx, &t.UserID, model.ActionVerifyEmail, meta)
	return MsgEmailVerified, nil
}

// Login checks credentials and opens a refresh session. Unknown email and
// wrong password fail identically.
func (s *Service) Login(ctx context.Context, email, password string, meta Meta) (_ TokenPair, err error) {
	defer s.observe("login", &err)

	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		_, _ = s.hasher.Verify(password, s.dummyDigest)
		s.record(ctx, nil, model.ActionLoginFail, meta)
		return TokenPair{}, apperr.ErrInvalidCredentials
	}
	if err != nil {
		return TokenPair{}, apperr.Internal("lookup user", err)
	}

	ok, err := s.hasher.Verify(password, u.PasswordHash)
	if err != nil {
		return TokenPair{}, apperr.Internal("verify password", err)
	}
	if !ok {
		s.record(ctx, &u.ID, model.ActionLoginFail, meta)
		return TokenPair{}, apperr.ErrInvalidCredentials
	}
	if !u.CanLogin() {
		return TokenPair{}, apperr.ErrForbidden
	}

	access, err := s.codec.IssueAccess(u.ID, u.Role, s.accessTTL)
	if err != nil {
		return TokenPair{}, apperr.Internal("issue access token", err)
	}
	refresh, err := s.sessions.Issue(ctx, u.ID)
	if err != nil {
		return TokenPair{}, apperr.Internal("issue refresh session", err)
	}
	s.record(ctx, &u.ID, model.ActionLoginSuccess, meta)
	return pair(access, refresh), nil
}

// Refresh rotates a refresh token and mints an access token carrying the
// user's current role. A rotated or revoked token is rejected.
func (s *Service) Refresh(ctx context.Context, refreshToken string, meta Meta) (_ TokenPair, err error) {
	defer s.observe("refresh", &err)

	v, err := s.codec.Verify(refreshToken, token.TypeRefresh)
	if err != nil {
		return TokenPair{}, tokenInvalid(err)
	}
	refresh, err := s.sessions.ValidateAndRotate(ctx, refreshToken, v.Subject)
	if errors.Is(err, session.ErrInvalid) {
		return TokenPair{}, apperr.ErrTokenInvalid
	}
	if err != nil {
		return TokenPair{}, apperr.Internal("rotate refresh session", err)
	}

	u, err := s.users.GetByID(ctx, v.Subject)
	if errors.Is(err, repository.ErrNotFound) {
		if rerr := s.sessions.Revoke(ctx, refresh.Secret); rerr != nil {
			s.log.Warn().Err(rerr).Msg("revoke orphaned session failed")
		}
		return TokenPair{}, apperr.ErrUnauthorized
	}
	if err != nil {
		return TokenPair{}, apperr.Internal("load user", err)
	}

	access, err := s.codec.IssueAccess(u.ID, u.Role, s.accessTTL)
	if err != nil {
		return TokenPair{}, apperr.Internal("issue access token", err)
	}
	s.record(ctx, &u.ID, model.ActionRefresh, meta)
	return pair(access, refresh), nil
}

// ForgotPassword emails a reset link when the address belongs to an account.
// The result is the same either way.
func (s *Service) ForgotPassword(ctx context.Context, email string, meta Meta) (_ Message, err error) {
	defer s.observe("forgot_password", &err)

	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return MsgResetLinkSent, nil
	}
	if err != nil {
		return "", apperr.Internal("lookup user", err)
	}

	secret, _, err := s.oneTime.Issue(ctx, u.ID, model.PurposeResetPassword, s.resetTTL)
	if err != nil {
		return "", apperr.Internal("issue reset token", err)
	}
	s.deliver(ctx, u, func() (mail.Email, error) {
		return mail.ResetEmail(u.FirstName, s.links.Reset(secret))
	})
	s.record(ctx, &u.ID, model.ActionForgotPW, meta)
	return MsgResetLinkSent, nil
}

// ResetPassword consumes a reset secret and replaces the password. Other
// outstanding reset links and every refresh session of the account stop
// working.
func (s *Service) ResetPassword(ctx context.Context, secret, newPassword string, meta Meta) (_ Message, err error) {
	defer s.observe("reset_password", &err)

	// checked before the secret is consumed so a rejected password does not
	// burn the reset link
	if err := checkPassword("new_password", newPassword); err != nil {
		return "", err
	}
	t, err := s.oneTime.Consume(ctx, secret, model.PurposeResetPassword)
	if errors.Is(err, onetime.ErrNotFound) {
		return "", apperr.ErrTokenInvalid
	}
	if err != nil {
		return "", apperr.Internal("consume reset token", err)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return "", apperr.Internal("hash password", err)
	}
	if err := s.users.UpdatePassword(ctx, t.UserID, hash, s.now().UTC()); err != nil {
		return "", apperr.Internal("update password", err)
	}

	if _, err := s.oneTime.Invalidate(ctx, t.UserID, model.PurposeResetPassword); err != nil {
		s.log.Warn().Err(err).Str("user_id", t.UserID.String()).Msg("invalidate reset tokens failed")
	}
	if _, err := s.sessions.RevokeAll(ctx, t.UserID); err != nil {
		s.log.Warn().Err(err).Str("user_id", t.UserID.String()).Msg("revoke sessions after reset failed")
	}
	s.record(ctx, &t.UserID, model.ActionResetPW, meta)
	return MsgPasswordReset, nil
}

// Authenticate verifies an access token. It never touches storage.
func (s *Service) Authenticate(accessToken string) (Principal, error) {
	v, err := s.codec.Verify(accessToken, token.TypeAccess)
	if err != nil {
		return Principal{}, tokenInvalid(err)
	}
	return Principal{UserID: v.Subject, Role: v.Role, ExpiresAt: v.ExpiresAt}, nil
}

// GetProfile returns the public profile of the access token's subject.
func (s *Service) GetProfile(ctx context.Context, accessToken string) (_ model.Profile, err error) {
	defer s.observe("get_profile", &err)

	p, err := s.Authenticate(accessToken)
	if err != nil {
		return model.Profile{}, err
	}
	u, err := s.users.GetByID(ctx, p.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Profile{}, apperr.ErrUnauthorized
	}
	if err != nil {
		return model.Profile{}, apperr.Internal("load user", err)
	}
	return u.Profile(), nil
}

// Logout revokes refreshToken for an authenticated caller. Unknown or
// already revoked refresh tokens still succeed.
func (s *Service) Logout(ctx context.Context, accessToken, refreshToken string, meta Meta) (_ Message, err error) {
	defer s.observe("logout", &err)

	p, err := s.Authenticate(accessToken)
	if err != nil {
		return "", err
	}
	// a refresh token issued to someone else is ignored, not revoked
	if err := s.sessions.RevokeOwned(ctx, refreshToken, p.UserID); err != nil {
		return "", apperr.Internal("revoke refresh session", err)
	}
	s.record(ctx, &p.UserID, model.ActionLogout, meta)
	return MsgLoggedOut, nil
}

// LogoutAll revokes every refresh session of the caller.
func (s *Service) LogoutAll(ctx context.Context, accessToken string, meta Meta) (_ Message, err error) {
	defer s.observe("logout_all", &err)

	p, err := s.Authenticate(accessToken)
	if err != nil {
		return "", err
	}
	n, err := s.sessions.RevokeAll(ctx, p.UserID)
	if err != nil {
		return "", apperr.Internal("revoke refresh sessions", err)
	}
	s.log.Debug().Str("user_id", p.UserID.String()).Int64("revoked", n).Msg("logged out everywhere")
	s.record(ctx, &p.UserID, model.ActionLogoutAll, meta)
	return MsgLoggedOut, nil
}

// deliver renders and sends an email. Failures are logged and counted; the
// state change that triggered the email stands.
func (s *Service) deliver(ctx context.Context, u model.User, render func() (mail.Email, error)) {
	email, err := render()
	if err == nil {
		err = s.mail.Send(ctx, u.Email, email.Subject, email.HTML)
	}
	if err != nil {
		metrics.RecordEmailFailure(s.mailProvider)
		s.log.Error().Err(err).Str("user_id", u.ID.String()).Msg("email delivery failed")
	}
}

func (s *Service) record(ctx context.Context, userID *uuid.UUID, action model.Action, meta Meta) {
	s.audit.Record(ctx, model.AuditEvent{
		UserID:    userID,
		Action:    action,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		CreatedAt: s.now().UTC(),
	})
}

func (s *Service) observe(op string, errp *error) {
	if *errp == nil {
		metrics.RecordOperation(op, metrics.OutcomeSuccess)
		return
	}
	kind := apperr.KindOf(*errp)
	metrics.RecordOperation(op, string(kind))
	if kind == apperr.KindInternal {
		s.log.Error().Err(*errp).Str("op", op).Msg("auth operation failed")
	}
}

// checkPassword rejects passwords the hasher cannot take.
func checkPassword(field, p string) error {
	switch {
	case p == "":
		return apperr.Validation(apperr.FieldError{Field: field, Reason: "is required"})
	case len(p) > security.MaxSecretBytes:
		return apperr.Validation(apperr.FieldError{Field: field, Reason: "must be at most 72 bytes"})
	}
	return nil
}

func tokenInvalid(cause error) error {
	return &apperr.Error{Kind: apperr.KindTokenInvalid, Message: apperr.ErrTokenInvalid.Message, Err: cause}
}

func pair(access token.Signed, refresh session.Issued) TokenPair {
	return TokenPair{
		AccessToken:      access.Token,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshToken:     refresh.Secret,
		RefreshExpiresAt: refresh.ExpiresAt,
		TokenType:        "bearer",
	}
}
