// Package jobs runs the worker's scheduled maintenance.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/iliyamo/eldercare-auth/internal/metrics"
)

// Purger deletes rows that expired more than grace ago. *onetime.Store and
// *session.Store implement it.
type Purger interface {
	Purge(ctx context.Context, grace time.Duration) (int64, error)
}

// Purge removes expired single-use tokens and refresh sessions.
type Purge struct {
	Tokens   Purger
	Sessions Purger
	Grace    time.Duration
	Log      zerolog.Logger
}

// Result is the number of rows removed per table by one run.
type Result struct {
	Tokens   int64
	Sessions int64
}

// Run purges both tables. A failure on one table does not skip the other;
// the first error is returned.
func (p *Purge) Run(ctx context.Context) (Result, error) {
	var res Result
	var firstErr error

	n, err := p.Tokens.Purge(ctx, p.Grace)
	if err != nil {
		firstErr = err
		p.Log.Error().Err(err).Msg("purge single-use tokens failed")
	} else {
		res.Tokens = n
		metrics.RecordPurged("single_use_tokens", n)
	}

	n, err = p.Sessions.Purge(ctx, p.Grace)
	if err != nil {
		if firstErr == nil {
			firstErr = err
		}
		p.Log.Error().Err(err).Msg("purge refresh sessions failed")
	} else {
		res.Sessions = n
		metrics.RecordPurged("refresh_sessions", n)
	}

	p.Log.Info().Int64("tokens", res.Tokens).Int64("sessions", res.Sessions).Msg("purge finished")
	return res, firstErr
}

// Scheduler runs Purge on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	purge   *Purge
	timeout time.Duration
	log     zerolog.Logger
}

// NewScheduler registers purge under spec (standard five-field cron syntax,
// descriptors like "@hourly" work too).
func NewScheduler(spec string, purge *Purge, log zerolog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		purge:   purge,
		timeout: time.Minute,
		log:     log,
	}
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop stops scheduling and returns a context that is done once a running
// purge has finished.
func (s *Scheduler) Stop() context.Context { return s.cron.Stop() }

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	_, _ = s.purge.Run(ctx)
}
