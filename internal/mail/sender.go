// Package mail delivers the verification and password reset emails. The
// provider is chosen by configuration; the auth core only sees Sender.
package mail

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/iliyamo/eldercare-auth/internal/queue"
)

// Sender delivers one HTML email.
type Sender interface {
	Send(ctx context.Context, to, subject, html string) error
}

// Provider names accepted by EMAIL_PROVIDER.
const (
	ProviderSMTP   = "smtp"
	ProviderResend = "resend"
	ProviderQueue  = "queue"
	ProviderLog    = "log"
)

// Config selects and configures a provider.
type Config struct {
	Provider     string
	From         string
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	ResendAPIKey string
	ResendURL    string
	Timeout      time.Duration
}

// Publisher is the subset of queue.Publisher the queue provider needs.
type Publisher interface {
	Publish(ctx context.Context, queue string, v any) error
}

// New builds the Sender named by cfg.Provider. pub is only used by the queue
// provider and may be nil otherwise.
func New(cfg Config, pub Publisher, log zerolog.Logger) (Sender, error) {
	switch cfg.Provider {
	case ProviderSMTP, "":
		if cfg.SMTPHost == "" {
			return nil, errors.New("smtp provider requires SMTP_HOST")
		}
		return NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.From), nil
	case ProviderResend:
		if cfg.ResendAPIKey == "" {
			return nil, errors.New("resend provider requires RESEND_API_KEY")
		}
		return NewResendSender(cfg.ResendURL, cfg.ResendAPIKey, cfg.From, cfg.Timeout), nil
	case ProviderQueue:
		if pub == nil {
			return nil, errors.New("queue provider requires a broker connection")
		}
		return NewQueueSender(pub), nil
	case ProviderLog:
		return NewLogSender(log), nil
	default:
		return nil, errors.Errorf("unknown email provider %q", cfg.Provider)
	}
}

// QueueSender hands rendered emails to the worker over RabbitMQ.
type QueueSender struct {
	pub Publisher
	now func() time.Time
}

func NewQueueSender(pub Publisher) *QueueSender {
	return &QueueSender{pub: pub, now: time.Now}
}

func (s *QueueSender) Send(ctx context.Context, to, subject, html string) error {
	return s.pub.Publish(ctx, queue.EmailQueue, queue.EmailRequested{
		To:          to,
		Subject:     subject,
		HTML:        html,
		RequestedAt: s.now().UTC(),
	})
}

// LogSender only logs. It is meant for local development with STORE=memory.
type LogSender struct {
	log zerolog.Logger
}

func NewLogSender(log zerolog.Logger) *LogSender {
	return &LogSender{log: log.With().Str("component", "mail").Logger()}
}

func (s *LogSender) Send(_ context.Context, to, subject, html string) error {
	s.log.Info().Str("to", to).Str("subject", subject).Int("bytes", len(html)).Msg("email not delivered (log provider)")
	return nil
}
