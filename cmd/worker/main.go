package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/iliyamo/eldercare-auth/internal/app"
	"github.com/iliyamo/eldercare-auth/internal/audit"
	"github.com/iliyamo/eldercare-auth/internal/config"
	"github.com/iliyamo/eldercare-auth/internal/jobs"
	"github.com/iliyamo/eldercare-auth/internal/logging"
	"github.com/iliyamo/eldercare-auth/internal/mail"
	"github.com/iliyamo/eldercare-auth/internal/metrics"
	"github.com/iliyamo/eldercare-auth/internal/queue"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("development", "")
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}
	log := logging.New(cfg.Env, cfg.LogLevel).With().Str("process", "worker").Logger()

	if err := run(cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("worker stopped")
	}
}

func run(cfg config.Config, log zerolog.Logger) error {
	backend, err := app.OpenBackend(cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	codec, err := app.NewCodec(cfg)
	if err != nil {
		return err
	}
	oneTime, sessions := backend.Stores(cfg, codec)

	sched, err := jobs.NewScheduler(cfg.PurgeSchedule, &jobs.Purge{
		Tokens:   oneTime,
		Sessions: sessions,
		Grace:    cfg.PurgeGrace,
		Log:      log,
	}, log)
	if err != nil {
		return errors.Wrap(err, "schedule purge")
	}
	sched.Start()
	defer func() { <-sched.Stop().Done() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.RabbitMQURL == "" {
		log.Warn().Msg("RABBITMQ_URL not set; only running scheduled purge")
		<-ctx.Done()
		return nil
	}

	mailCfg := cfg.Mail
	mailCfg.Provider = cfg.WorkerEmailProvider
	if mailCfg.Provider == mail.ProviderQueue {
		return errors.New("WORKER_EMAIL_PROVIDER cannot be queue")
	}
	sender, err := mail.New(mailCfg, nil, log)
	if err != nil {
		return err
	}

	sink := backend.Audit
	if sink == nil {
		sink = audit.NewLogSink(log)
	}

	var wg sync.WaitGroup
	consume := func(name string, h queue.Handler) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := queue.Consume(ctx, cfg.RabbitMQURL, name, h, log); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Str("queue", name).Msg("consumer exited")
			}
		}()
	}
	consume(queue.EmailQueue, emailHandler(sender, mailCfg.Provider, log))
	consume(queue.AuditQueue, auditHandler(sink))

	log.Info().Msg("worker started")
	wg.Wait()
	return nil
}

// emailHandler delivers queued emails. Delivery failures are counted and
// returned so the message is dropped rather than redelivered forever.
func emailHandler(sender mail.Sender, provider string, log zerolog.Logger) queue.Handler {
	return func(ctx context.Context, body []byte) error {
		var msg queue.EmailRequested
		if err := json.Unmarshal(body, &msg); err != nil {
			return errors.Wrap(err, "decode email message")
		}
		if err := sender.Send(ctx, msg.To, msg.Subject, msg.HTML); err != nil {
			metrics.RecordEmailFailure(provider)
			return errors.Wrap(err, "send email")
		}
		log.Debug().Str("subject", msg.Subject).Msg("email delivered")
		return nil
	}
}

func auditHandler(sink audit.Sink) queue.Handler {
	return func(ctx context.Context, body []byte) error {
		var msg queue.AuditRecorded
		if err := json.Unmarshal(body, &msg); err != nil {
			return errors.Wrap(err, "decode audit message")
		}
		return sink.Write(ctx, msg.Event)
	}
}
