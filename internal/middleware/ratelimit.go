package middleware

import (
	"math"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/eldercare-auth/internal/apperr"
	"github.com/iliyamo/eldercare-auth/internal/metrics"
	"github.com/iliyamo/eldercare-auth/internal/ratelimit"
)

// Throttle counts every request against limiter, keyed by scope and the
// caller (user id when authenticated, otherwise IP). Limiter errors let the
// request through. A nil limiter disables throttling.
func Throttle(limiter ratelimit.Limiter, scope string, log zerolog.Logger) echo.MiddlewareFunc {
	if limiter == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			d, err := limiter.Allow(c.Request().Context(), scope+":"+clientKey(c))
			if err != nil {
				log.Warn().Err(err).Str("scope", scope).Msg("rate limiter unavailable")
				return next(c)
			}
			if !WriteDecision(c, d) {
				metrics.RecordRateLimited(scope)
				return apperr.ErrRateLimited
			}
			return next(c)
		}
	}
}

// WriteDecision sets the rate limit headers for d and reports d.Allowed.
func WriteDecision(c echo.Context, d ratelimit.Decision) bool {
	h := c.Response().Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	if !d.Allowed {
		secs := int(math.Ceil(d.RetryAfter.Seconds()))
		if secs < 0 {
			secs = 0
		}
		h.Set("Retry-After", strconv.Itoa(secs))
	}
	return d.Allowed
}
