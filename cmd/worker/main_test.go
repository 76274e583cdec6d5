package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/eldercare-auth/internal/model"
	"github.com/iliyamo/eldercare-auth/internal/queue"
	"github.com/iliyamo/eldercare-auth/internal/repository/memory"
)

type captureSender struct {
	to, subject, html string
	err               error
}

func (c *captureSender) Send(_ context.Context, to, subject, html string) error {
	c.to, c.subject, c.html = to, subject, html
	return c.err
}

func TestEmailHandler(t *testing.T) {
	s := &captureSender{}
	body, err := json.Marshal(queue.EmailRequested{To: "a@x.com", Subject: "Verify", HTML: "<p>hi</p>", RequestedAt: time.Now()})
	require.NoError(t, err)

	h := emailHandler(s, "smtp", zerolog.Nop())
	require.NoError(t, h(context.Background(), body))
	assert.Equal(t, "a@x.com", s.to)
	assert.Equal(t, "Verify", s.subject)

	assert.Error(t, h(context.Background(), []byte("{")))

	s.err = errors.New("smtp down")
	assert.Error(t, h(context.Background(), body))
}

func TestAuditHandler(t *testing.T) {
	sink := memory.NewAudit()
	uid := uuid.New()
	body, err := json.Marshal(queue.AuditRecorded{Event: model.AuditEvent{
		UserID:    &uid,
		Action:    model.ActionLoginSuccess,
		IP:        "203.0.113.1",
		CreatedAt: time.Now().UTC(),
	}})
	require.NoError(t, err)

	require.NoError(t, auditHandler(sink)(context.Background(), body))
	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, model.ActionLoginSuccess, events[0].Action)
	assert.Equal(t, uid, *events[0].UserID)
}
