// Package queue defines the messages exchanged over RabbitMQ and the
// publisher and consumer loop used by the server and the worker.
package queue

import (
	"time"

	"github.com/iliyamo/eldercare-auth/internal/model"
)

// Queue names. Both are durable and use the default exchange.
const (
	EmailQueue = "auth.email"
	AuditQueue = "auth.audit"
)

// EmailRequested asks the worker to deliver an already rendered email.
type EmailRequested struct {
	To          string    `json:"to"`
	Subject     string    `json:"subject"`
	HTML        string    `json:"html"`
	RequestedAt time.Time `json:"requested_at"`
}

// AuditRecorded carries one audit event to the worker, which persists it.
type AuditRecorded struct {
	Event model.AuditEvent `json:"event"`
}
