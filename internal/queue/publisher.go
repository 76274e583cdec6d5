package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Publisher publishes JSON messages to durable queues. It dials per publish:
// auth traffic is low volume, and a broker outage then costs one failed
// publish instead of a dead long-lived channel.
type Publisher struct {
	url     string
	log     zerolog.Logger
	timeout time.Duration
}

func NewPublisher(url string, log zerolog.Logger) *Publisher {
	return &Publisher{url: url, log: log.With().Str("component", "queue-publisher").Logger(), timeout: dialTimeout}
}

// Publish marshals v and publishes it as a persistent message to queue. The
// whole exchange with the broker ends by ctx's deadline, or after the dial
// timeout when ctx has none.
func (p *Publisher) Publish(ctx context.Context, queue string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshal message")
	}

	ctx, cancel := withDialTimeout(ctx, p.timeout)
	defer cancel()

	conn, raw, err := dial(ctx, p.url)
	if err != nil {
		p.log.Warn().Err(err).Str("queue", queue).Msg("dial failed")
		return errors.Wrap(err, "dial broker")
	}
	defer func() { _ = conn.Close() }()

	// the handshake clears the socket deadline; restore it so a broker that
	// stalls mid-publish cannot hold the caller, and drop the socket on cancel
	deadline, _ := ctx.Deadline()
	_ = raw.SetDeadline(deadline)
	stop := context.AfterFunc(ctx, func() { _ = raw.Close() })
	defer stop()

	ch, err := conn.Channel()
	if err != nil {
		return errors.Wrap(err, "open channel")
	}
	defer func() { _ = ch.Close() }()

	if err := declare(ch, queue); err != nil {
		return err
	}

	err = ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		p.log.Warn().Err(err).Str("queue", queue).Msg("publish failed")
		return errors.Wrap(err, "publish")
	}
	return nil
}

func declare(ch *amqp.Channel, queue string) error {
	_, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	return errors.Wrapf(err, "declare queue %s", queue)
}
