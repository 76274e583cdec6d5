package queue

import (
	"context"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Handler processes one message body. A returned error rejects the message
// without requeueing it, so a poison message cannot loop.
type Handler func(ctx context.Context, body []byte) error

const (
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
	prefetch   = 50
)

// Consume consumes queue until ctx is cancelled, reconnecting with
// exponential backoff whenever the broker connection drops.
func Consume(ctx context.Context, url, queue string, h Handler, log zerolog.Logger) error {
	log = log.With().Str("component", "queue-consumer").Str("queue", queue).Logger()
	backoff := minBackoff
	for {
		dialCtx, cancel := withDialTimeout(ctx, dialTimeout)
		conn, _, err := dial(dialCtx, url)
		cancel()
		if err != nil {
			log.Warn().Err(err).Dur("retry_in", backoff).Msg("dial failed")
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = nextBackoff(backoff)
			continue
		}
		backoff = minBackoff

		err = consumeLoop(ctx, conn, queue, h, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Msg("consume loop ended; reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, queue string, h Handler, log zerolog.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return errors.Wrap(err, "open channel")
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(prefetch, 0, false); err != nil {
		log.Warn().Err(err).Msg("set qos failed")
	}
	if err := declare(ch, queue); err != nil {
		return err
	}

	msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return errors.Wrap(err, "consume")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := h(ctx, d.Body); err != nil {
				log.Error().Err(err).Msg("handle message failed")
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
