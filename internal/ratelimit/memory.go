package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process sliding window with the same semantics as
// SlidingWindow. State is per process, so it only limits correctly with a
// single server instance. Keys with no hit inside the window are dropped at
// most once per window.
type Memory struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	hits      map[string][]time.Time
	lastSweep time.Time
	now       func() time.Time
}

func NewMemory(limit int, window time.Duration) *Memory {
	return &Memory{limit: limit, window: window, hits: map[string][]time.Time{}, now: time.Now}
}

func (m *Memory) Allow(_ context.Context, key string) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-m.window)
	if now.Sub(m.lastSweep) >= m.window {
		m.sweep(cutoff)
		m.lastSweep = now
	}
	kept := m.hits[key][:0]
	for _, t := range m.hits[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= m.limit {
		m.hits[key] = kept
		retry := kept[0].Add(m.window).Sub(now)
		if retry < 0 {
			retry = 0
		}
		return Decision{Allowed: false, Limit: m.limit, RetryAfter: retry}, nil
	}

	kept = append(kept, now)
	m.hits[key] = kept
	return Decision{Allowed: true, Limit: m.limit, Remaining: m.limit - len(kept)}, nil
}

// sweep deletes keys whose newest hit is at or before cutoff.
func (m *Memory) sweep(cutoff time.Time) {
	for key, ts := range m.hits {
		if len(ts) == 0 || !ts[len(ts)-1].After(cutoff) {
			delete(m.hits, key)
		}
	}
}
