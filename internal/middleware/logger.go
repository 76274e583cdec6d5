package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/eldercare-auth/internal/metrics"
)

// RequestLogger logs one line per request and records its latency. It runs
// outside the error handler's reach, so it lets Echo render the error first.
func RequestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req, res := c.Request(), c.Response()
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			elapsed := time.Since(start)
			metrics.RecordHTTP(req.Method, route, strconv.Itoa(res.Status), elapsed)

			ev := log.Info()
			if res.Status >= 500 {
				ev = log.Error().Err(err)
			}
			ev.Str("method", req.Method).
				Str("route", route).
				Int("status", res.Status).
				Dur("latency", elapsed).
				Str("ip", c.RealIP()).
				Str("request_id", res.Header().Get(echo.HeaderXRequestID)).
				Msg("request")
			return nil
		}
	}
}
