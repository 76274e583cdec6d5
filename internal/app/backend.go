// Package app assembles the collaborators shared by the server, the worker
// and authctl from a loaded Config.
package app

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/iliyamo/eldercare-auth/internal/audit"
	"github.com/iliyamo/eldercare-auth/internal/auth"
	"github.com/iliyamo/eldercare-auth/internal/config"
	"github.com/iliyamo/eldercare-auth/internal/database"
	"github.com/iliyamo/eldercare-auth/internal/onetime"
	"github.com/iliyamo/eldercare-auth/internal/repository"
	"github.com/iliyamo/eldercare-auth/internal/repository/memory"
	"github.com/iliyamo/eldercare-auth/internal/session"
	"github.com/iliyamo/eldercare-auth/internal/token"
)

// Backend holds the repositories of the configured store. DB is nil for
// the memory store.
type Backend struct {
	DB       *sql.DB
	Users    auth.UserRepository
	Tokens   onetime.Repository
	Sessions session.Repository
	// Audit is the table sink; nil for the memory store.
	Audit audit.Sink
}

// OpenBackend connects to the store named by cfg.Store.
func OpenBackend(cfg config.Config) (*Backend, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return &Backend{
			Users:    memory.NewUsers(),
			Tokens:   memory.NewTokens(),
			Sessions: memory.NewSessions(),
		}, nil
	case config.StoreMySQL:
		db, err := database.Open(cfg.DB)
		if err != nil {
			return nil, errors.Wrap(err, "open mysql")
		}
		return &Backend{
			DB:       db,
			Users:    repository.NewUserRepo(db),
			Tokens:   repository.NewSingleUseTokenRepo(db),
			Sessions: repository.NewSessionRepo(db),
			Audit:    repository.NewAuditRepo(db),
		}, nil
	default:
		return nil, errors.Errorf("unknown store %q", cfg.Store)
	}
}

// Ping checks the database; it always succeeds for the memory store.
func (b *Backend) Ping(ctx context.Context) error {
	if b.DB == nil {
		return nil
	}
	return b.DB.PingContext(ctx)
}

func (b *Backend) Close() error {
	if b.DB == nil {
		return nil
	}
	return b.DB.Close()
}

// NewCodec builds the token codec from the JWT settings.
func NewCodec(cfg config.Config) (*token.Codec, error) {
	opts := []token.Option{token.WithIssuer(cfg.JWTIssuer)}
	if !cfg.TokenNotBefore.IsZero() {
		opts = append(opts, token.WithNotBefore(cfg.TokenNotBefore))
	}
	return token.NewCodec(cfg.JWTSecret, opts...)
}

// Stores wraps the backend repositories with the token stores.
func (b *Backend) Stores(cfg config.Config, codec *token.Codec) (*onetime.Store, *session.Store) {
	return onetime.NewStore(b.Tokens, nil), session.NewStore(b.Sessions, codec, cfg.RefreshTTL, nil)
}

// AuditSink returns the sink named by cfg.AuditSink. pub is required for
// the queue sink.
func (b *Backend) AuditSink(cfg config.Config, pub audit.Publisher, log zerolog.Logger) (audit.Sink, error) {
	switch cfg.AuditSink {
	case config.AuditSQL:
		if b.Audit == nil {
			return audit.NewLogSink(log), nil
		}
		return b.Audit, nil
	case config.AuditQueue:
		if pub == nil {
			return nil, errors.New("queue audit sink requires RABBITMQ_URL")
		}
		return audit.NewQueueSink(pub), nil
	default:
		return audit.NewLogSink(log), nil
	}
}
