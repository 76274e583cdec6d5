package queue

import (
	"context"
	"net"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// dialTimeout bounds the TCP connect and AMQP handshake when the caller's
// context carries no deadline.
const dialTimeout = 5 * time.Second

// dial opens a broker connection whose TCP connect and handshake stop at
// ctx's deadline or cancellation. It also returns the underlying socket so
// callers can bound later operations.
func dial(ctx context.Context, url string) (*amqp.Connection, net.Conn, error) {
	var raw net.Conn
	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial: func(network, addr string) (net.Conn, error) {
			var d net.Dialer
			c, err := d.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			if deadline, ok := ctx.Deadline(); ok {
				if err := c.SetDeadline(deadline); err != nil {
					_ = c.Close()
					return nil, err
				}
			}
			raw = c
			return c, nil
		},
	})
	if err != nil {
		return nil, nil, err
	}
	return conn, raw, nil
}

// withDialTimeout applies dialTimeout to ctx unless it already has a deadline.
func withDialTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
