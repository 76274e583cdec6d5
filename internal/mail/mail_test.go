package mail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/eldercare-auth/internal/queue"
)

func TestLinks(t *testing.T) {
	l := Links{Origin: "https://app.example.com/"}
	assert.Equal(t, "https://app.example.com/verify-email?token=abc123", l.Verify("abc123"))
	assert.Equal(t, "https://app.example.com/reset-password?token=abc123", l.Reset("abc123"))
}

func TestTemplatesEscapeName(t *testing.T) {
	e, err := VerificationEmail("<b>Ann</b>", "https://app.example.com/verify-email?token=x")
	require.NoError(t, err)
	assert.Equal(t, "Verify your email", e.Subject)
	assert.Contains(t, e.HTML, "&lt;b&gt;Ann&lt;/b&gt;")
	assert.Contains(t, e.HTML, "verify-email?token=x")

	e, err = ResetEmail("Ann", "https://app.example.com/reset-password?token=y")
	require.NoError(t, err)
	assert.Equal(t, "Reset your password", e.Subject)
	assert.Contains(t, e.HTML, "reset-password?token=y")
}

func TestResendSender(t *testing.T) {
	var got resendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"1"}`))
	}))
	defer srv.Close()

	s := NewResendSender(srv.URL, "re_test", "noreply@example.com", time.Second)
	require.NoError(t, s.Send(context.Background(), "ann@example.com", "Hi", "<p>x</p>"))
	assert.Equal(t, []string{"ann@example.com"}, got.To)
	assert.Equal(t, "noreply@example.com", got.From)
}

func TestResendSenderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"invalid from"}`))
	}))
	defer srv.Close()

	s := NewResendSender(srv.URL, "re_test", "bad", time.Second)
	err := s.Send(context.Background(), "ann@example.com", "Hi", "<p>x</p>")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
}

func TestSMTPSenderBuildsMessage(t *testing.T) {
	s := NewSMTPSender("smtp.example.com", 587, "user", "pass", "noreply@example.com")
	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	s.send = func(addr string, _ smtp.Auth, _ string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	require.NoError(t, s.Send(context.Background(), "ann@example.com", "Verify your email", "<p>hi</p>"))
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, []string{"ann@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Verify your email\r\n")
	assert.Contains(t, gotMsg, "Content-Type: text/html")
	assert.True(t, strings.HasSuffix(gotMsg, "\r\n\r\n<p>hi</p>"))
}

func TestSMTPSenderError(t *testing.T) {
	s := NewSMTPSender("smtp.example.com", 25, "", "", "noreply@example.com")
	busy := errors.New("421 busy")
	s.send = func(string, smtp.Auth, string, []string, []byte) error { return busy }

	err := s.Send(context.Background(), "ann@example.com", "s", "b")
	require.Error(t, err)
	assert.Equal(t, busy, pkgerrors.Cause(err))
	// the wrapped error carries a stack trace for log.Error().Stack()
	assert.Contains(t, fmt.Sprintf("%+v", err), "mail.(*SMTPSender).Send")
}

type recordingPublisher struct {
	queue string
	msg   any
}

func (p *recordingPublisher) Publish(_ context.Context, q string, v any) error {
	p.queue, p.msg = q, v
	return nil
}

func TestQueueSender(t *testing.T) {
	pub := &recordingPublisher{}
	require.NoError(t, NewQueueSender(pub).Send(context.Background(), "ann@example.com", "s", "<p>b</p>"))
	assert.Equal(t, queue.EmailQueue, pub.queue)
	msg, ok := pub.msg.(queue.EmailRequested)
	require.True(t, ok)
	assert.Equal(t, "ann@example.com", msg.To)
}

func TestNewSelectsProvider(t *testing.T) {
	log := zerolog.Nop()

	s, err := New(Config{Provider: ProviderSMTP, SMTPHost: "localhost", SMTPPort: 25}, nil, log)
	require.NoError(t, err)
	assert.IsType(t, &SMTPSender{}, s)

	s, err = New(Config{Provider: ProviderResend, ResendAPIKey: "k"}, nil, log)
	require.NoError(t, err)
	assert.IsType(t, &ResendSender{}, s)

	s, err = New(Config{Provider: ProviderQueue}, &recordingPublisher{}, log)
	require.NoError(t, err)
	assert.IsType(t, &QueueSender{}, s)

	_, err = New(Config{Provider: ProviderQueue}, nil, log)
	assert.Error(t, err)
	_, err = New(Config{Provider: ProviderResend}, nil, log)
	assert.Error(t, err)
	_, err = New(Config{Provider: "pigeon"}, nil, log)
	assert.Error(t, err)
}
