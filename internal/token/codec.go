// Package token signs and verifies the self-contained JWTs handed to clients.
// Verification is pure: it checks signature, expiry and type and never
// consults storage.
package token

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/iliyamo/eldercare-auth/internal/model"
)

// Type discriminates access tokens from refresh tokens.
type Type string

const (
	TypeAccess  Type = "access"
	TypeRefresh Type = "refresh"
)

// ErrorKind classifies a verification failure.
type ErrorKind string

const (
	KindMalformed    ErrorKind = "MALFORMED"
	KindBadSignature ErrorKind = "BAD_SIGNATURE"
	KindExpired      ErrorKind = "EXPIRED"
	KindWrongType    ErrorKind = "WRONG_TYPE"
)

// Error is returned by Verify.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return "token " + string(e.Kind) + ": " + e.Err.Error()
	}
	return "token " + string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the ErrorKind of err, or "" if err is not a token error.
func KindOf(err error) ErrorKind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}

// Claims is the JWT payload. Role is only set on access tokens.
type Claims struct {
	Role model.Role `json:"role,omitempty"`
	Type Type       `json:"type"`
	jwt.RegisteredClaims
}

// Signed is an issued token together with its expiry and identifier.
type Signed struct {
	Token     string
	ID        uuid.UUID
	ExpiresAt time.Time
}

// Verified is the trusted content of a token that passed Verify.
type Verified struct {
	Subject   uuid.UUID
	Role      model.Role
	Type      Type
	ID        uuid.UUID
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Codec issues and verifies HS256 tokens with a single process-wide secret.
type Codec struct {
	secret    []byte
	keyID     string
	issuer    string
	notBefore time.Time
	now       func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithIssuer sets the iss claim written and required by the codec.
func WithIssuer(iss string) Option {
	return func(c *Codec) { c.issuer = iss }
}

// WithNotBefore rejects every token issued before t. Moving it forward
// invalidates all outstanding tokens without changing the secret.
func WithNotBefore(t time.Time) Option {
	return func(c *Codec) { c.notBefore = t }
}

// WithClock overrides the time source; used by tests.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// NewCodec returns a codec for secret. The key id written into every token
// header is derived from the secret, so tokens signed under a previous secret
// are reported as BAD_SIGNATURE rather than MALFORMED after a change.
func NewCodec(secret string, opts ...Option) (*Codec, error) {
	if len(secret) < 32 {
		return nil, errors.New("jwt secret must be at least 32 bytes")
	}
	sum := sha256.Sum256([]byte(secret))
	c := &Codec{
		secret: []byte(secret),
		keyID:  hex.EncodeToString(sum[:8]),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// IssueAccess signs an access token for subject carrying role.
func (c *Codec) IssueAccess(subject uuid.UUID, role model.Role, ttl time.Duration) (Signed, error) {
	return c.issue(subject, uuid.New(), role, TypeAccess, ttl)
}

// IssueRefresh signs a refresh token whose jti identifies its stored session.
func (c *Codec) IssueRefresh(subject, jti uuid.UUID, ttl time.Duration) (Signed, error) {
	return c.issue(subject, jti, "", TypeRefresh, ttl)
}

func (c *Codec) issue(subject, id uuid.UUID, role model.Role, typ Type, ttl time.Duration) (Signed, error) {
	now := c.now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		Role: role,
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   subject.String(),
			ID:        id.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	t.Header["kid"] = c.keyID
	signed, err := t.SignedString(c.secret)
	if err != nil {
		return Signed{}, err
	}
	// exp is serialized with second precision; report what the token says.
	return Signed{Token: signed, ID: id, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Verify checks raw and requires it to be of type want.
func (c *Codec) Verify(raw string, want Type) (Verified, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, c.key, opts...)
	if err != nil {
		return Verified{}, classify(err)
	}

	if claims.IssuedAt == nil {
		return Verified{}, &Error{Kind: KindMalformed, Err: errors.New("missing iat")}
	}
	if !c.notBefore.IsZero() && claims.IssuedAt.Time.Before(c.notBefore) {
		return Verified{}, &Error{Kind: KindBadSignature, Err: errors.New("issued before signing boundary")}
	}
	if claims.Type != want {
		return Verified{}, &Error{Kind: KindWrongType, Err: errors.New("expected " + string(want) + " token, got " + string(claims.Type))}
	}
	sub, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Verified{}, &Error{Kind: KindMalformed, Err: err}
	}
	id, err := uuid.Parse(claims.ID)
	if err != nil {
		return Verified{}, &Error{Kind: KindMalformed, Err: err}
	}

	return Verified{
		Subject:   sub,
		Role:      claims.Role,
		Type:      claims.Type,
		ID:        id,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

var errUnknownKey = errors.New("unknown signing key")

func (c *Codec) key(t *jwt.Token) (any, error) {
	if kid, _ := t.Header["kid"].(string); kid != c.keyID {
		return nil, errUnknownKey
	}
	return c.secret, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return &Error{Kind: KindMalformed, Err: err}
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return &Error{Kind: KindBadSignature, Err: err}
	case errors.Is(err, jwt.ErrTokenExpired):
		return &Error{Kind: KindExpired, Err: err}
	default:
		// Remaining failures are claim shape problems: missing exp, iat in the
		// future, wrong issuer.
		return &Error{Kind: KindMalformed, Err: err}
	}
}
