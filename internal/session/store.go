// Package session keeps the server-side record of refresh tokens so they can
// be rotated on use and revoked before they expire.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"

	"github.com/iliyamo/eldercare-auth/internal/model"
	"github.com/iliyamo/eldercare-auth/internal/repository"
	"github.com/iliyamo/eldercare-auth/internal/security"
	"github.com/iliyamo/eldercare-auth/internal/token"
)

// ErrInvalid is returned by ValidateAndRotate for any refresh token that may
// not be exchanged: undecodable, expired, revoked, replayed, unknown or owned
// by someone else.
var ErrInvalid = errors.New("refresh session invalid")

// Repository persists refresh sessions.
//
// A presented token matches a record only when jti, owner and token digest
// all agree. Rotate revokes the matching record (only if it is still
// unrevoked and unexpired at at) and inserts next, atomically. It returns
// repository.ErrNotFound without inserting when the conditional revoke did
// not match.
type Repository interface {
	Create(ctx context.Context, s model.RefreshSession) error
	Rotate(ctx context.Context, old model.SessionRef, at time.Time, next model.RefreshSession) error
	Revoke(ctx context.Context, ref model.SessionRef, at time.Time) (bool, error)
	RevokeAllForUser(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error)
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

// Issued is a freshly minted refresh token.
type Issued struct {
	Secret    string
	JTI       uuid.UUID
	ExpiresAt time.Time
}

// Store issues refresh tokens through the codec and tracks them in repo.
type Store struct {
	repo  Repository
	codec *token.Codec
	ttl   time.Duration
	now   func() time.Time
}

// NewStore returns a Store. now may be nil.
func NewStore(repo Repository, codec *token.Codec, ttl time.Duration, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{repo: repo, codec: codec, ttl: ttl, now: now}
}

func (s *Store) mint(userID uuid.UUID) (Issued, model.RefreshSession, error) {
	jti := uuid.New()
	signed, err := s.codec.IssueRefresh(userID, jti, s.ttl)
	if err != nil {
		return Issued{}, model.RefreshSession{}, pkgerrors.Wrap(err, "sign refresh token")
	}
	rec := model.RefreshSession{
		JTI:       jti,
		UserID:    userID,
		TokenHash: security.Digest(signed.Token),
		ExpiresAt: signed.ExpiresAt,
		CreatedAt: s.now().UTC(),
	}
	return Issued{Secret: signed.Token, JTI: jti, ExpiresAt: signed.ExpiresAt}, rec, nil
}

// Issue creates a new session for userID.
func (s *Store) Issue(ctx context.Context, userID uuid.UUID) (Issued, error) {
	out, rec, err := s.mint(userID)
	if err != nil {
		return Issued{}, err
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return Issued{}, pkgerrors.Wrap(err, "store refresh session")
	}
	return out, nil
}

// ValidateAndRotate exchanges secret for a new refresh token. The presented
// session is revoked in the same step, so a replay of secret (or a concurrent
// second exchange) fails with ErrInvalid.
func (s *Store) ValidateAndRotate(ctx context.Context, secret string, claimedUserID uuid.UUID) (Issued, error) {
	ref, ok := s.resolve(secret)
	if !ok || ref.UserID != claimedUserID {
		return Issued{}, ErrInvalid
	}
	out, next, err := s.mint(ref.UserID)
	if err != nil {
		return Issued{}, err
	}
	err = s.repo.Rotate(ctx, ref, s.now().UTC(), next)
	if errors.Is(err, repository.ErrNotFound) {
		return Issued{}, ErrInvalid
	}
	if err != nil {
		return Issued{}, pkgerrors.Wrap(err, "rotate refresh session")
	}
	return out, nil
}

// Revoke ends the session behind secret. Unknown, undecodable and already
// revoked tokens are not an error.
func (s *Store) Revoke(ctx context.Context, secret string) error {
	ref, ok := s.resolve(secret)
	if !ok {
		return nil
	}
	if _, err := s.repo.Revoke(ctx, ref, s.now().UTC()); err != nil {
		return pkgerrors.Wrap(err, "revoke refresh session")
	}
	return nil
}

// RevokeOwned is Revoke limited to sessions whose subject is owner. A token
// belonging to anyone else is left untouched and is not an error.
func (s *Store) RevokeOwned(ctx context.Context, secret string, owner uuid.UUID) error {
	ref, ok := s.resolve(secret)
	if !ok || ref.UserID != owner {
		return nil
	}
	if _, err := s.repo.Revoke(ctx, ref, s.now().UTC()); err != nil {
		return pkgerrors.Wrap(err, "revoke refresh session")
	}
	return nil
}

// RevokeAll ends every active session of userID.
func (s *Store) RevokeAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.repo.RevokeAllForUser(ctx, userID, s.now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(err, "revoke all refresh sessions")
	}
	return n, nil
}

// Purge deletes sessions that expired before now minus grace.
func (s *Store) Purge(ctx context.Context, grace time.Duration) (int64, error) {
	n, err := s.repo.PurgeExpired(ctx, s.now().UTC().Add(-grace))
	if err != nil {
		return 0, pkgerrors.Wrap(err, "purge refresh sessions")
	}
	return n, nil
}

func (s *Store) resolve(secret string) (model.SessionRef, bool) {
	if secret == "" {
		return model.SessionRef{}, false
	}
	v, err := s.codec.Verify(secret, token.TypeRefresh)
	if err != nil {
		return model.SessionRef{}, false
	}
	return model.SessionRef{JTI: v.ID, UserID: v.Subject, TokenHash: security.Digest(secret)}, true
}
