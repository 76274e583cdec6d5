// Package ratelimit provides the limiters applied by the HTTP layer: a
// sliding window for login attempts and a token bucket for general request
// throttling. Redis backs both in production; the in-memory sliding window
// serves single-instance and test setups.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter counts one attempt against key and reports whether it is allowed.
// An error means the backing store failed; callers decide whether to fail
// open.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// parseResult decodes the {allowed, remaining, retry_after_ms} triple
// returned by the Lua scripts.
func parseResult(v any, limit int) (Decision, error) {
	arr, ok := v.([]any)
	if !ok || len(arr) != 3 {
		return Decision{}, fmt.Errorf("unexpected limiter script result %#v", v)
	}
	return Decision{
		Allowed:    asInt64(arr[0]) == 1,
		Limit:      limit,
		Remaining:  int(asInt64(arr[1])),
		RetryAfter: time.Duration(asInt64(arr[2])) * time.Millisecond,
	}, nil
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int32:
		return int64(t)
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}
