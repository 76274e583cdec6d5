package token

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/eldercare-auth/internal/model"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestCodec(t *testing.T, clk *clock, opts ...Option) *Codec {
	t.Helper()
	c, err := NewCodec(testSecret, append([]Option{WithIssuer("eldercare-auth"), WithClock(clk.now)}, opts...)...)
	require.NoError(t, err)
	return c
}

func TestNewCodecRejectsShortSecret(t *testing.T) {
	_, err := NewCodec("short")
	assert.Error(t, err)
}

func TestAccessRoundTrip(t *testing.T) {
	clk := &clock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	c := newTestCodec(t, clk)
	sub := uuid.New()

	signed, err := c.IssueAccess(sub, model.RoleDoctor, 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, clk.t.Add(15*time.Minute), signed.ExpiresAt)

	v, err := c.Verify(signed.Token, TypeAccess)
	require.NoError(t, err)
	assert.Equal(t, sub, v.Subject)
	assert.Equal(t, model.RoleDoctor, v.Role)
	assert.Equal(t, TypeAccess, v.Type)
	assert.Equal(t, signed.ID, v.ID)
}

func TestRefreshCarriesJTI(t *testing.T) {
	clk := &clock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	c := newTestCodec(t, clk)
	sub, jti := uuid.New(), uuid.New()

	signed, err := c.IssueRefresh(sub, jti, 7*24*time.Hour)
	require.NoError(t, err)

	v, err := c.Verify(signed.Token, TypeRefresh)
	require.NoError(t, err)
	assert.Equal(t, jti, v.ID)
	assert.Empty(t, v.Role)
}

func TestVerifyWrongType(t *testing.T) {
	clk := &clock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	c := newTestCodec(t, clk)

	access, err := c.IssueAccess(uuid.New(), model.RolePatient, time.Minute)
	require.NoError(t, err)
	_, err = c.Verify(access.Token, TypeRefresh)
	assert.Equal(t, KindWrongType, KindOf(err))

	refresh, err := c.IssueRefresh(uuid.New(), uuid.New(), time.Hour)
	require.NoError(t, err)
	_, err = c.Verify(refresh.Token, TypeAccess)
	assert.Equal(t, KindWrongType, KindOf(err))
}

func TestVerifyExpired(t *testing.T) {
	clk := &clock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	c := newTestCodec(t, clk)

	signed, err := c.IssueAccess(uuid.New(), model.RolePatient, time.Minute)
	require.NoError(t, err)

	clk.t = clk.t.Add(2 * time.Minute)
	_, err = c.Verify(signed.Token, TypeAccess)
	assert.Equal(t, KindExpired, KindOf(err))
}

func TestVerifyBadSignature(t *testing.T) {
	clk := &clock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	c := newTestCodec(t, clk)

	signed, err := c.IssueAccess(uuid.New(), model.RolePatient, time.Minute)
	require.NoError(t, err)

	parts := strings.Split(signed.Token, ".")
	require.Len(t, parts, 3)
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	_, err = c.Verify(tampered, TypeAccess)
	assert.Equal(t, KindBadSignature, KindOf(err))
}

func TestVerifyAfterSecretChange(t *testing.T) {
	clk := &clock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	old := newTestCodec(t, clk)
	signed, err := old.IssueAccess(uuid.New(), model.RolePatient, time.Hour)
	require.NoError(t, err)

	rotated, err := NewCodec("fedcba9876543210fedcba9876543210", WithIssuer("eldercare-auth"), WithClock(clk.now))
	require.NoError(t, err)
	_, err = rotated.Verify(signed.Token, TypeAccess)
	assert.Equal(t, KindBadSignature, KindOf(err))
}

func TestVerifyNotBeforeBoundary(t *testing.T) {
	clk := &clock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	c := newTestCodec(t, clk)
	signed, err := c.IssueAccess(uuid.New(), model.RolePatient, time.Hour)
	require.NoError(t, err)

	bounded := newTestCodec(t, clk, WithNotBefore(clk.t.Add(time.Second)))
	_, err = bounded.Verify(signed.Token, TypeAccess)
	assert.Equal(t, KindBadSignature, KindOf(err))
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	clk := &clock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	c := newTestCodec(t, clk)

	claims := Claims{
		Type: TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "eldercare-auth",
			Subject:   uuid.NewString(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(clk.t),
			ExpiresAt: jwt.NewNumericDate(clk.t.Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = c.Verify(raw, TypeAccess)
	assert.Equal(t, KindBadSignature, KindOf(err))
}

func TestVerifyMalformed(t *testing.T) {
	clk := &clock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	c := newTestCodec(t, clk)

	for _, raw := range []string{"", "abc", "a.b", "not.a.jwt"} {
		_, err := c.Verify(raw, TypeAccess)
		assert.Equal(t, KindMalformed, KindOf(err), raw)
	}
}
