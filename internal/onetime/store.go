// Package onetime issues and consumes the single-use secrets sent in
// verification and password reset emails.
package onetime

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"

	"github.com/iliyamo/eldercare-auth/internal/model"
	"github.com/iliyamo/eldercare-auth/internal/repository"
	"github.com/iliyamo/eldercare-auth/internal/security"
)

// ErrNotFound covers every reason a secret cannot be consumed: unknown,
// expired, already used or issued for another purpose.
var ErrNotFound = errors.New("single-use token not found")

// Repository persists single-use tokens. Consume must find and mark the
// record in one atomic step and return repository.ErrNotFound when no usable
// record matched.
type Repository interface {
	Create(ctx context.Context, t model.SingleUseToken) error
	Consume(ctx context.Context, tokenHash string, purpose model.Purpose, at time.Time) (model.SingleUseToken, error)
	InvalidateForUser(ctx context.Context, userID uuid.UUID, purpose model.Purpose, at time.Time) (int64, error)
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

// Store wraps a Repository with secret generation and digesting.
type Store struct {
	repo Repository
	now  func() time.Time
}

// NewStore returns a Store over repo. now may be nil.
func NewStore(repo Repository, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{repo: repo, now: now}
}

// Issue creates a token for userID and returns the plaintext secret. The
// secret is not recoverable afterwards.
func (s *Store) Issue(ctx context.Context, userID uuid.UUID, purpose model.Purpose, ttl time.Duration) (string, model.SingleUseToken, error) {
	secret, err := security.NewSecret(security.SecretBytes)
	if err != nil {
		return "", model.SingleUseToken{}, pkgerrors.Wrap(err, "generate secret")
	}
	now := s.now().UTC()
	t := model.SingleUseToken{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: security.Digest(secret),
		Purpose:   purpose,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return "", model.SingleUseToken{}, pkgerrors.Wrap(err, "store single-use token")
	}
	return secret, t, nil
}

// Consume marks the token identified by secret as used and returns it.
// Under concurrent calls with the same secret at most one succeeds.
func (s *Store) Consume(ctx context.Context, secret string, purpose model.Purpose) (model.SingleUseToken, error) {
	if secret == "" {
		return model.SingleUseToken{}, ErrNotFound
	}
	t, err := s.repo.Consume(ctx, security.Digest(secret), purpose, s.now().UTC())
	if errors.Is(err, repository.ErrNotFound) {
		return model.SingleUseToken{}, ErrNotFound
	}
	if err != nil {
		return model.SingleUseToken{}, pkgerrors.Wrap(err, "consume single-use token")
	}
	return t, nil
}

// Invalidate consumes every outstanding token of userID for purpose.
func (s *Store) Invalidate(ctx context.Context, userID uuid.UUID, purpose model.Purpose) (int64, error) {
	n, err := s.repo.InvalidateForUser(ctx, userID, purpose, s.now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(err, "invalidate single-use tokens")
	}
	return n, nil
}

// Purge deletes tokens that expired before now minus grace.
func (s *Store) Purge(ctx context.Context, grace time.Duration) (int64, error) {
	n, err := s.repo.PurgeExpired(ctx, s.now().UTC().Add(-grace))
	if err != nil {
		return 0, pkgerrors.Wrap(err, "purge single-use tokens")
	}
	return n, nil
}
