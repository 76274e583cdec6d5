package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/iliyamo/eldercare-auth/internal/app"
	"github.com/iliyamo/eldercare-auth/internal/audit"
	"github.com/iliyamo/eldercare-auth/internal/auth"
	"github.com/iliyamo/eldercare-auth/internal/config"
	"github.com/iliyamo/eldercare-auth/internal/handler"
	"github.com/iliyamo/eldercare-auth/internal/logging"
	"github.com/iliyamo/eldercare-auth/internal/mail"
	"github.com/iliyamo/eldercare-auth/internal/metrics"
	"github.com/iliyamo/eldercare-auth/internal/queue"
	"github.com/iliyamo/eldercare-auth/internal/ratelimit"
	"github.com/iliyamo/eldercare-auth/internal/router"
	"github.com/iliyamo/eldercare-auth/internal/security"
	"github.com/iliyamo/eldercare-auth/internal/validate"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("development", "")
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}
	log := logging.New(cfg.Env, cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
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

	var mailPub mail.Publisher
	var auditPub audit.Publisher
	if cfg.RabbitMQURL != "" {
		pub := queue.NewPublisher(cfg.RabbitMQURL, log)
		mailPub, auditPub = pub, pub
	}
	sender, err := mail.New(cfg.Mail, mailPub, log)
	if err != nil {
		return err
	}
	sink, err := backend.AuditSink(cfg, auditPub, log)
	if err != nil {
		return err
	}

	svc, err := auth.New(auth.Deps{
		Users:        backend.Users,
		Hasher:       security.NewBcryptHasher(cfg.BcryptCost),
		Codec:        codec,
		OneTime:      oneTime,
		Sessions:     sessions,
		Mail:         sender,
		MailProvider: cfg.Mail.Provider,
		Links:        mail.Links{Origin: cfg.FrontendOrigin},
		Audit:        audit.NewObserver(sink, log),
		Log:          log,
		AccessTTL:    cfg.AccessTTL,
		VerifyTTL:    cfg.VerifyTTL,
		ResetTTL:     cfg.ResetTTL,
	})
	if err != nil {
		return err
	}

	loginLimiter, throttle := limiters(cfg, log)
	v := validate.New()
	e := router.New(router.Deps{
		Auth:      handler.NewAuthHandler(svc, v, loginLimiter, log),
		Authn:     svc,
		Validator: v,
		Throttle:  throttle,
		Registry:  metrics.NewRegistry(),
		Ping:      backend.Ping,
		Log:       log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("store", cfg.Store).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// limiters returns the login sliding window and the /v1/auth token bucket.
// Without Redis both fall back to process-local limiting (the bucket is
// dropped entirely).
func limiters(cfg config.Config, log zerolog.Logger) (login, throttle ratelimit.Limiter) {
	rdb, err := config.NewRedisClient(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unavailable; using in-memory login limiter")
		return ratelimit.NewMemory(cfg.LoginLimit.Limit, cfg.LoginLimit.Window), nil
	}

	login = ratelimit.NewSlidingWindow(rdb, cfg.RateLimit.Prefix, cfg.LoginLimit.Limit, cfg.LoginLimit.Window)
	if cfg.RateLimit.Enabled {
		throttle = ratelimit.NewTokenBucket(rdb, ratelimit.BucketConfig{
			Prefix:         cfg.RateLimit.Prefix,
			Capacity:       cfg.RateLimit.Capacity,
			RefillTokens:   cfg.RateLimit.RefillTokens,
			RefillInterval: cfg.RateLimit.RefillInterval,
			TTL:            cfg.RateLimit.TTL,
		})
	}
	return login, throttle
}
