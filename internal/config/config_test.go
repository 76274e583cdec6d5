package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/eldercare-auth/internal/mail"
)

func mapEnv(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

const secret = "0123456789abcdef0123456789abcdef"

func TestLoadDefaults(t *testing.T) {
	c, err := load(mapEnv(map[string]string{
		"JWT_SECRET": secret,
		"DB_USER":    "auth",
		"DB_HOST":    "db",
		"DB_NAME":    "eldercare",
		"SMTP_HOST":  "smtp.example.com",
	}))
	require.NoError(t, err)

	assert.Equal(t, StoreMySQL, c.Store)
	assert.Equal(t, 15*time.Minute, c.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, c.RefreshTTL)
	assert.Equal(t, 24*time.Hour, c.VerifyTTL)
	assert.Equal(t, time.Hour, c.ResetTTL)
	assert.Equal(t, 12, c.BcryptCost)
	assert.Equal(t, 5, c.LoginLimit.Limit)
	assert.Equal(t, 15*time.Minute, c.LoginLimit.Window)
	assert.Equal(t, mail.ProviderSMTP, c.Mail.Provider)
	assert.Equal(t, "3306", c.DB.Port)
	assert.Equal(t, "localhost:6379", c.Redis.Addr)
	assert.True(t, c.TokenNotBefore.IsZero())
}

func TestLoadMemoryStoreNeedsNoDatabase(t *testing.T) {
	c, err := load(mapEnv(map[string]string{
		"JWT_SECRET":     secret,
		"STORE":          "memory",
		"EMAIL_PROVIDER": "log",
	}))
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, c.Store)
	assert.Equal(t, AuditLog, c.AuditSink)
}

func TestLoadReportsEveryProblem(t *testing.T) {
	_, err := load(mapEnv(map[string]string{
		"JWT_SECRET":           "short",
		"STORE":                "memory",
		"ACCESS_TOKEN_TTL_MIN": "fifteen",
		"LOGIN_RATE_WINDOW":    "soon",
		"EMAIL_PROVIDER":       "fax",
		"TOKEN_NOT_BEFORE":     "yesterday",
	}))
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "JWT_SECRET must be at least 32 bytes")
	assert.Contains(t, msg, "ACCESS_TOKEN_TTL_MIN")
	assert.Contains(t, msg, "LOGIN_RATE_WINDOW")
	assert.Contains(t, msg, "EMAIL_PROVIDER")
	assert.Contains(t, msg, "TOKEN_NOT_BEFORE")
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := load(mapEnv(map[string]string{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "DB_HOST")
}

func TestRateLimitClamps(t *testing.T) {
	c, err := load(mapEnv(map[string]string{
		"JWT_SECRET":                 secret,
		"STORE":                      "memory",
		"RATE_LIMIT_CAPACITY":        "0",
		"RATE_LIMIT_REFILL_INTERVAL": "2s",
		"RATE_LIMIT_TTL":             "1s",
		"REDIS_HOST":                 "cache",
		"REDIS_PORT":                 "6380",
	}))
	require.NoError(t, err)
	assert.Equal(t, 1, c.RateLimit.Capacity)
	assert.Equal(t, 10*time.Second, c.RateLimit.TTL)
	assert.Equal(t, "cache:6380", c.Redis.Addr)
}
