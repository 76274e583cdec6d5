package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/eldercare-auth/internal/apperr"
	"github.com/iliyamo/eldercare-auth/internal/auth"
	"github.com/iliyamo/eldercare-auth/internal/model"
	"github.com/iliyamo/eldercare-auth/internal/ratelimit"
)

type stubAuthenticator struct {
	p   auth.Principal
	err error
	got string
}

func (s *stubAuthenticator) Authenticate(raw string) (auth.Principal, error) {
	s.got = raw
	return s.p, s.err
}

func newContext(req *http.Request) (echo.Context, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec), rec
}

func ok(c echo.Context) error { return c.NoContent(http.StatusNoContent) }

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", true},
		{"bearer abc", "abc", true},
		{"Bearer ", "", false},
		{"Basic Zm9vOmJhcg==", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(echo.HeaderAuthorization, tt.header)
		c, _ := newContext(req)
		got, found := BearerToken(c)
		assert.Equal(t, tt.ok, found, tt.header)
		assert.Equal(t, tt.want, got, tt.header)
	}
}

func TestBearerAuth(t *testing.T) {
	p := auth.Principal{UserID: uuid.New(), Role: model.RoleCaregiver}
	stub := &stubAuthenticator{p: p}

	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer tok")
	c, _ := newContext(req)

	var seen auth.Principal
	err := BearerAuth(stub)(func(c echo.Context) error {
		seen, _ = PrincipalFrom(c)
		return nil
	})(c)
	require.NoError(t, err)
	assert.Equal(t, "tok", stub.got)
	assert.Equal(t, p, seen)
}

func TestBearerAuthRejects(t *testing.T) {
	stub := &stubAuthenticator{err: apperr.ErrTokenInvalid}

	c, _ := newContext(httptest.NewRequest(http.MethodGet, "/v1/me", nil))
	err := BearerAuth(stub)(ok)(c)
	assert.ErrorIs(t, err, apperr.ErrTokenInvalid)

	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer bad")
	c, _ = newContext(req)
	err = BearerAuth(stub)(ok)(c)
	assert.ErrorIs(t, err, apperr.ErrTokenInvalid)
}

func TestRequireRole(t *testing.T) {
	c, _ := newContext(httptest.NewRequest(http.MethodGet, "/", nil))
	c.Set(principalKey, auth.Principal{Role: model.RolePatient})

	assert.NoError(t, RequireRole(model.RolePatient, model.RoleDoctor)(ok)(c))

	err := RequireRole(model.RoleAdmin)(ok)(c)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	bare, _ := newContext(httptest.NewRequest(http.MethodGet, "/", nil))
	err = RequireRole(model.RolePatient)(ok)(bare)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

type errLimiter struct{}

func (errLimiter) Allow(context.Context, string) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, errors.New("redis down")
}

func TestThrottle(t *testing.T) {
	mw := Throttle(ratelimit.NewMemory(2, time.Minute), "auth", zerolog.Nop())

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
		req.RemoteAddr = "198.51.100.4:5555"
		c, rec := newContext(req)
		require.NoError(t, mw(ok)(c))
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
	req.RemoteAddr = "198.51.100.4:5555"
	c, rec := newContext(req)
	err := mw(ok)(c)
	assert.ErrorIs(t, err, apperr.ErrRateLimited)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// a different client has its own budget
	req = httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
	req.RemoteAddr = "198.51.100.5:5555"
	c, _ = newContext(req)
	assert.NoError(t, mw(ok)(c))
}

func TestThrottleFailsOpen(t *testing.T) {
	c, rec := newContext(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, Throttle(errLimiter{}, "auth", zerolog.Nop())(ok)(c))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	c, rec = newContext(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, Throttle(nil, "auth", zerolog.Nop())(ok)(c))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
