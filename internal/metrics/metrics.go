// Package metrics declares the Prometheus collectors of the auth service and
// the handler that exposes them.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// AuthOperations counts auth flows by operation and outcome. The outcome of
// a failure is the error kind.
var AuthOperations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "eldercare_auth_operations_total",
		Help: "Total number of auth operations by operation and outcome",
	},
	[]string{"operation", "outcome"},
)

// HTTPDuration is the latency of HTTP requests by route and status.
var HTTPDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "eldercare_auth_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"method", "route", "status"},
)

// EmailFailures counts emails that could not be handed to the provider.
var EmailFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "eldercare_auth_email_failures_total",
		Help: "Total number of failed email deliveries by provider",
	},
	[]string{"provider"},
)

// RateLimited counts requests rejected by a limiter.
var RateLimited = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "eldercare_auth_rate_limited_total",
		Help: "Total number of requests rejected by rate limiting",
	},
	[]string{"scope"},
)

// Purged counts rows removed by the expiry purge job.
var Purged = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "eldercare_auth_purged_rows_total",
		Help: "Total number of expired rows removed by table",
	},
	[]string{"table"},
)

// NewRegistry returns a registry with the Go and process collectors and every
// collector of this package.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(AuthOperations, HTTPDuration, EmailFailures, RateLimited, Purged)
	return reg
}

// Handler serves reg in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

func RecordOperation(op, outcome string) {
	AuthOperations.WithLabelValues(op, outcome).Inc()
}

func RecordHTTP(method, route, status string, d time.Duration) {
	HTTPDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
}

func RecordEmailFailure(provider string) {
	EmailFailures.WithLabelValues(provider).Inc()
}

func RecordRateLimited(scope string) {
	RateLimited.WithLabelValues(scope).Inc()
}

func RecordPurged(table string, n int64) {
	Purged.WithLabelValues(table).Add(float64(n))
}
