package config

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig locates the Redis server used for rate limiting.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TLS      bool
}

func loadRedis(e *env) RedisConfig {
	addr := e.str("REDIS_ADDR", "")
	if host, port := e.raw("REDIS_HOST"), e.raw("REDIS_PORT"); host != "" && port != "" {
		addr = host + ":" + port
	}
	if addr == "" {
		addr = "localhost:6379"
	}
	return RedisConfig{
		Addr:     addr,
		Password: e.raw("REDIS_PASSWORD"),
		DB:       e.integer("REDIS_DB", 0),
		TLS:      e.boolean("REDIS_TLS", false),
	}
}

// NewRedisClient connects and pings Redis. On failure it closes the client
// and returns the error; callers degrade to in-memory limiting.
func NewRedisClient(cfg RedisConfig) (*redis.Client, error) {
	var tlsConf *tls.Config
	if cfg.TLS {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(&redis.Options{
		Addr:      cfg.Addr,
		Password:  cfg.Password,
		DB:        cfg.DB,
		TLSConfig: tlsConf,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
