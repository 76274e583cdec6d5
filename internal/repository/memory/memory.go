// Package memory provides in-process repositories with the same semantics as
// the MySQL ones. They back STORE=memory and the service tests. Each
// repository guards its state with one mutex and re-checks conditions under
// it, which gives the same at-most-once guarantees as the SQL conditional
// updates.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/eldercare-auth/internal/model"
	"github.com/iliyamo/eldercare-auth/internal/repository"
	"github.com/iliyamo/eldercare-auth/internal/security"
)

// Users is an in-memory users table.
type Users struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]model.User
	byEmail map[string]uuid.UUID
}

func NewUsers() *Users {
	return &Users{byID: map[uuid.UUID]model.User{}, byEmail: map[string]uuid.UUID{}}
}

func (r *Users) Create(_ context.Context, u model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u.Email = model.NormalizeEmail(u.Email)
	if _, ok := r.byEmail[u.Email]; ok {
		return repository.ErrEmailExists
	}
	r.byID[u.ID] = u
	r.byEmail[u.Email] = u.ID
	return nil
}

func (r *Users) GetByEmail(_ context.Context, email string) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byEmail[model.NormalizeEmail(email)]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return r.byID[id], nil
}

func (r *Users) GetByID(_ context.Context, id uuid.UUID) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (r *Users) MarkEmailVerified(_ context.Context, id uuid.UUID, at time.Time) error {
	return r.update(id, func(u *model.User) {
		u.IsActive = true
		u.IsEmailVerified = true
		u.UpdatedAt = at
	})
}

func (r *Users) UpdatePassword(_ context.Context, id uuid.UUID, hash string, at time.Time) error {
	return r.update(id, func(u *model.User) {
		u.PasswordHash = hash
		u.UpdatedAt = at
	})
}

// Delete removes a user. Accounts are never deleted by the service; tests use
// this to simulate an account that disappeared.
func (r *Users) Delete(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		delete(r.byEmail, u.Email)
		delete(r.byID, id)
	}
}

func (r *Users) update(id uuid.UUID, fn func(*model.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(&u)
	r.byID[id] = u
	return nil
}

// Tokens is an in-memory single_use_tokens table.
type Tokens struct {
	mu     sync.Mutex
	byHash map[string]model.SingleUseToken
}

func NewTokens() *Tokens {
	return &Tokens{byHash: map[string]model.SingleUseToken{}}
}

func (r *Tokens) Create(_ context.Context, t model.SingleUseToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byHash[t.TokenHash] = t
	return nil
}

func (r *Tokens) Consume(_ context.Context, tokenHash string, purpose model.Purpose, at time.Time) (model.SingleUseToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byHash[tokenHash]
	if !ok || t.Purpose != purpose || !t.UsableAt(at) {
		return model.SingleUseToken{}, repository.ErrNotFound
	}
	ts := at
	t.ConsumedAt = &ts
	r.byHash[tokenHash] = t
	return t, nil
}

func (r *Tokens) InvalidateForUser(_ context.Context, userID uuid.UUID, purpose model.Purpose, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for h, t := range r.byHash {
		if t.UserID == userID && t.Purpose == purpose && t.ConsumedAt == nil {
			ts := at
			t.ConsumedAt = &ts
			r.byHash[h] = t
			n++
		}
	}
	return n, nil
}

func (r *Tokens) PurgeExpired(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for h, t := range r.byHash {
		if t.ExpiresAt.Before(before) {
			delete(r.byHash, h)
			n++
		}
	}
	return n, nil
}

// ForUser returns the user's tokens ordered by creation time.
func (r *Tokens) ForUser(userID uuid.UUID) []model.SingleUseToken {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.SingleUseToken
	for _, t := range r.byHash {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Sessions is an in-memory refresh_sessions table.
type Sessions struct {
	mu    sync.Mutex
	byJTI map[uuid.UUID]model.RefreshSession
}

func NewSessions() *Sessions {
	return &Sessions{byJTI: map[uuid.UUID]model.RefreshSession{}}
}

func (r *Sessions) Create(_ context.Context, s model.RefreshSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byJTI[s.JTI] = s
	return nil
}

func (r *Sessions) Rotate(_ context.Context, old model.SessionRef, at time.Time, next model.RefreshSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.match(old)
	if !ok || !s.ValidAt(at) {
		return repository.ErrNotFound
	}
	ts := at
	s.RevokedAt = &ts
	r.byJTI[s.JTI] = s
	r.byJTI[next.JTI] = next
	return nil
}

func (r *Sessions) Revoke(_ context.Context, ref model.SessionRef, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.match(ref)
	if !ok || s.RevokedAt != nil {
		return false, nil
	}
	ts := at
	s.RevokedAt = &ts
	r.byJTI[s.JTI] = s
	return true, nil
}

func (r *Sessions) RevokeAllForUser(_ context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for jti, s := range r.byJTI {
		if s.UserID == userID && s.RevokedAt == nil {
			ts := at
			s.RevokedAt = &ts
			r.byJTI[jti] = s
			n++
		}
	}
	return n, nil
}

func (r *Sessions) PurgeExpired(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for jti, s := range r.byJTI {
		if s.ExpiresAt.Before(before) {
			delete(r.byJTI, jti)
			n++
		}
	}
	return n, nil
}

// Active counts the user's unrevoked, unexpired sessions at now.
func (r *Sessions) Active(userID uuid.UUID, now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.byJTI {
		if s.UserID == userID && s.ValidAt(now) {
			n++
		}
	}
	return n
}

func (r *Sessions) match(ref model.SessionRef) (model.RefreshSession, bool) {
	s, ok := r.byJTI[ref.JTI]
	if !ok || s.UserID != ref.UserID || !security.EqualDigest(s.TokenHash, ref.TokenHash) {
		return model.RefreshSession{}, false
	}
	return s, true
}

// Audit is an in-memory audit log.
type Audit struct {
	mu     sync.Mutex
	events []model.AuditEvent
}

func NewAudit() *Audit { return &Audit{} }

func (r *Audit) Write(_ context.Context, e model.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of everything written so far.
func (r *Audit) Events() []model.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.AuditEvent(nil), r.events...)
}
