// Package audit records auth events. Recording never blocks or fails the
// flow that produced the event.
package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/eldercare-auth/internal/model"
	"github.com/iliyamo/eldercare-auth/internal/queue"
)

// Recorder accepts audit events from the auth core.
type Recorder interface {
	Record(ctx context.Context, e model.AuditEvent)
}

// Sink is where events end up: a table, a queue or the log.
type Sink interface {
	Write(ctx context.Context, e model.AuditEvent) error
}

const defaultTimeout = 3 * time.Second

// Observer is the Recorder used in production. It detaches from the request
// context so a client hanging up does not drop the event, bounds the write
// with a timeout, and turns sink errors and panics into log lines.
type Observer struct {
	sink    Sink
	log     zerolog.Logger
	timeout time.Duration
}

func NewObserver(sink Sink, log zerolog.Logger) *Observer {
	return &Observer{sink: sink, log: log.With().Str("component", "audit").Logger(), timeout: defaultTimeout}
}

func (o *Observer) Record(ctx context.Context, e model.AuditEvent) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error().Interface("panic", r).Str("action", string(e.Action)).Msg("audit sink panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeout)
	defer cancel()
	if err := o.sink.Write(ctx, e); err != nil {
		o.log.Error().Err(err).Str("action", string(e.Action)).Msg("audit write failed")
	}
}

// Publisher is the subset of queue.Publisher used by QueueSink.
type Publisher interface {
	Publish(ctx context.Context, queue string, v any) error
}

// QueueSink forwards events to the worker, which writes them to the table.
type QueueSink struct {
	pub Publisher
}

func NewQueueSink(pub Publisher) *QueueSink { return &QueueSink{pub: pub} }

func (s *QueueSink) Write(ctx context.Context, e model.AuditEvent) error {
	return s.pub.Publish(ctx, queue.AuditQueue, queue.AuditRecorded{Event: e})
}

// LogSink writes events as structured log lines.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log.With().Str("component", "audit").Logger()}
}

func (s *LogSink) Write(_ context.Context, e model.AuditEvent) error {
	ev := s.log.Info().
		Str("action", string(e.Action)).
		Str("ip", e.IP).
		Str("user_agent", e.UserAgent).
		Time("at", e.CreatedAt)
	if e.UserID != nil {
		ev = ev.Str("user_id", e.UserID.String())
	}
	ev.Msg("audit")
	return nil
}
