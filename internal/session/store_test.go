package session_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/iliyamo/eldercare-auth/internal/model"
	"github.com/iliyamo/eldercare-auth/internal/repository/memory"
	"github.com/iliyamo/eldercare-auth/internal/session"
	"github.com/iliyamo/eldercare-auth/internal/token"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

const ttl = 7 * 24 * time.Hour

func newStore(t *testing.T) (*session.Store, *memory.Sessions, *fakeClock, *token.Codec) {
	t.Helper()
	clk := &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	codec, err := token.NewCodec("0123456789abcdef0123456789abcdef", token.WithClock(clk.Now))
	require.NoError(t, err)
	repo := memory.NewSessions()
	return session.NewStore(repo, codec, ttl, clk.Now), repo, clk, codec
}

func TestIssue(t *testing.T) {
	store, repo, clk, codec := newStore(t)
	userID := uuid.New()

	issued, err := store.Issue(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, clk.Now().Add(ttl), issued.ExpiresAt)
	assert.Equal(t, 1, repo.Active(userID, clk.Now()))

	v, err := codec.Verify(issued.Secret, token.TypeRefresh)
	require.NoError(t, err)
	assert.Equal(t, issued.JTI, v.ID)
	assert.Equal(t, userID, v.Subject)
}

func TestRotateThenReplay(t *testing.T) {
	store, repo, clk, _ := newStore(t)
	ctx := context.Background()
	userID := uuid.New()

	first, err := store.Issue(ctx, userID)
	require.NoError(t, err)

	second, err := store.ValidateAndRotate(ctx, first.Secret, userID)
	require.NoError(t, err)
	assert.NotEqual(t, first.JTI, second.JTI)
	assert.NotEqual(t, first.Secret, second.Secret)
	assert.Equal(t, 1, repo.Active(userID, clk.Now()))

	_, err = store.ValidateAndRotate(ctx, first.Secret, userID)
	assert.ErrorIs(t, err, session.ErrInvalid)

	_, err = store.ValidateAndRotate(ctx, second.Secret, userID)
	assert.NoError(t, err)
}

func TestRotateRejects(t *testing.T) {
	ctx := context.Background()

	t.Run("garbage", func(t *testing.T) {
		store, _, _, _ := newStore(t)
		_, err := store.ValidateAndRotate(ctx, "not-a-token", uuid.New())
		assert.ErrorIs(t, err, session.ErrInvalid)
	})

	t.Run("other user", func(t *testing.T) {
		store, _, _, _ := newStore(t)
		issued, err := store.Issue(ctx, uuid.New())
		require.NoError(t, err)
		_, err = store.ValidateAndRotate(ctx, issued.Secret, uuid.New())
		assert.ErrorIs(t, err, session.ErrInvalid)
	})

	t.Run("expired", func(t *testing.T) {
		store, _, clk, _ := newStore(t)
		userID := uuid.New()
		issued, err := store.Issue(ctx, userID)
		require.NoError(t, err)
		clk.Advance(ttl + time.Second)
		_, err = store.ValidateAndRotate(ctx, issued.Secret, userID)
		assert.ErrorIs(t, err, session.ErrInvalid)
	})

	t.Run("signed but never stored", func(t *testing.T) {
		store, _, _, codec := newStore(t)
		userID := uuid.New()
		signed, err := codec.IssueRefresh(userID, uuid.New(), ttl)
		require.NoError(t, err)
		_, err = store.ValidateAndRotate(ctx, signed.Token, userID)
		assert.ErrorIs(t, err, session.ErrInvalid)
	})

	t.Run("access token", func(t *testing.T) {
		store, _, _, codec := newStore(t)
		userID := uuid.New()
		signed, err := codec.IssueAccess(userID, model.RolePatient, time.Minute)
		require.NoError(t, err)
		_, err = store.ValidateAndRotate(ctx, signed.Token, userID)
		assert.ErrorIs(t, err, session.ErrInvalid)
	})
}

func TestConcurrentRotationOneWinner(t *testing.T) {
	store, repo, clk, _ := newStore(t)
	ctx := context.Background()
	userID := uuid.New()

	issued, err := store.Issue(ctx, userID)
	require.NoError(t, err)

	const workers = 16
	var (
		wg    sync.WaitGroup
		wins  atomic.Int32
		start = make(chan struct{})
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := store.ValidateAndRotate(ctx, issued.Secret, userID); err == nil {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, 1, repo.Active(userID, clk.Now()))
}

func TestRevokeIsIdempotent(t *testing.T) {
	store, repo, clk, _ := newStore(t)
	ctx := context.Background()
	userID := uuid.New()

	issued, err := store.Issue(ctx, userID)
	require.NoError(t, err)

	require.NoError(t, store.Revoke(ctx, issued.Secret))
	require.NoError(t, store.Revoke(ctx, issued.Secret))
	require.NoError(t, store.Revoke(ctx, "garbage"))
	require.NoError(t, store.Revoke(ctx, ""))
	assert.Equal(t, 0, repo.Active(userID, clk.Now()))

	_, err = store.ValidateAndRotate(ctx, issued.Secret, userID)
	assert.ErrorIs(t, err, session.ErrInvalid)
}

func TestRevokeOwnedSkipsOtherSubjects(t *testing.T) {
	store, repo, clk, _ := newStore(t)
	ctx := context.Background()
	owner, other := uuid.New(), uuid.New()

	issued, err := store.Issue(ctx, other)
	require.NoError(t, err)

	require.NoError(t, store.RevokeOwned(ctx, issued.Secret, owner))
	assert.Equal(t, 1, repo.Active(other, clk.Now()))

	require.NoError(t, store.RevokeOwned(ctx, issued.Secret, other))
	assert.Equal(t, 0, repo.Active(other, clk.Now()))
	require.NoError(t, store.RevokeOwned(ctx, "garbage", other))
}

func TestRevokeAll(t *testing.T) {
	store, repo, clk, _ := newStore(t)
	ctx := context.Background()
	userID, other := uuid.New(), uuid.New()

	for i := 0; i < 3; i++ {
		_, err := store.Issue(ctx, userID)
		require.NoError(t, err)
	}
	_, err := store.Issue(ctx, other)
	require.NoError(t, err)

	n, err := store.RevokeAll(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, 0, repo.Active(userID, clk.Now()))
	assert.Equal(t, 1, repo.Active(other, clk.Now()))
}
