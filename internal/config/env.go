package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// env reads typed environment variables and collects every problem instead
// of stopping at the first one.
type env struct {
	lookup func(string) (string, bool)
	errs   []error
}

func newEnv(lookup func(string) (string, bool)) *env {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &env{lookup: lookup}
}

func (e *env) raw(k string) string {
	v, _ := e.lookup(k)
	return strings.TrimSpace(v)
}

func (e *env) must(k string) string {
	v := e.raw(k)
	if v == "" {
		e.errs = append(e.errs, fmt.Errorf("missing required env var %s", k))
	}
	return v
}

func (e *env) str(k, d string) string {
	if v := e.raw(k); v != "" {
		return v
	}
	return d
}

func (e *env) integer(k string, d int) int {
	v := e.raw(k)
	if v == "" {
		return d
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid int for %s: %q", k, v))
		return d
	}
	return n
}

func (e *env) dur(k string, d time.Duration) time.Duration {
	v := e.raw(k)
	if v == "" {
		return d
	}
	dur, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid duration for %s: %q", k, v))
		return d
	}
	return dur
}

func (e *env) boolean(k string, d bool) bool {
	switch strings.ToLower(e.raw(k)) {
	case "":
		return d
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		e.errs = append(e.errs, fmt.Errorf("invalid bool for %s: %q", k, e.raw(k)))
		return d
	}
}

func (e *env) timestamp(k string) time.Time {
	v := e.raw(k)
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid RFC3339 time for %s: %q", k, v))
	}
	return t
}

func (e *env) oneOf(k, d string, allowed ...string) string {
	v := strings.ToLower(e.str(k, d))
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	e.errs = append(e.errs, fmt.Errorf("%s must be one of %s, got %q", k, strings.Join(allowed, "|"), v))
	return d
}

func (e *env) fail(format string, args ...any) {
	e.errs = append(e.errs, fmt.Errorf(format, args...))
}

func (e *env) err() error {
	return errors.Join(e.errs...)
}
