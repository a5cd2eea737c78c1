package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tbourn/go-autodaft/internal/domain"
	"github.com/tbourn/go-autodaft/internal/services"
)

// MatchReport summarizes one match sweep.
type MatchReport struct {
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Preferences int       `json:"preferences"`
	Applied     int       `json:"applied"`
	Duplicates  int       `json:"duplicates"`
	Failed      int       `json:"failed"`  // cycles that ended in an error
	Expired     int       `json:"expired"` // expired between load and dispatch
	Error       string    `json:"error,omitempty"`
}

// ExpiryReport summarizes one expiry sweep.
type ExpiryReport struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Deleted    int64     `json:"deleted"`
	Error      string    `json:"error,omitempty"`
}

// Status is a point-in-time snapshot for the ops surface.
type Status struct {
	MatchRunning  bool          `json:"match_running"`
	ExpiryRunning bool          `json:"expiry_running"`
	NextMatch     *time.Time    `json:"next_match,omitempty"`
	NextExpiry    *time.Time    `json:"next_expiry,omitempty"`
	LastMatch     *MatchReport  `json:"last_match,omitempty"`
	LastExpiry    *ExpiryReport `json:"last_expiry,omitempty"`
}

// RunMatchSweep loads the active preferences and runs a match cycle for each,
// at most Options.Concurrency at a time. One preference failing never stops
// the others. A failure to load preferences skips the whole sweep.
func (s *Scheduler) RunMatchSweep(ctx context.Context) (MatchReport, error) {
	if !s.matchRunning.CompareAndSwap(false, true) {
		sweepsTotal.WithLabelValues(sweepMatch, resultSkipped).Inc()
		return MatchReport{}, ErrSweepInProgress
	}
	defer s.matchRunning.Store(false)
	return s.runMatch(ctx)
}

func (s *Scheduler) runMatch(ctx context.Context) (MatchReport, error) {
	rep := MatchReport{StartedAt: s.opts.Now().UTC()}
	timer := time.Now()
	defer func() {
		sweepDuration.WithLabelValues(sweepMatch).Observe(time.Since(timer).Seconds())
	}()

	prefs, err := s.store.ListActive(ctx, s.opts.Now())
	if err != nil {
		err = fmt.Errorf("list active preferences: %w", err)
		rep.Error = err.Error()
		s.finishMatch(rep, resultError)
		return rep, err
	}
	rep.Preferences = len(prefs)

	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	g.SetLimit(s.opts.Concurrency)
	for _, p := range prefs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			out, expired, err := s.runCycle(ctx, p)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case expired:
				rep.Expired++
			case err != nil:
				rep.Failed++
			}
			rep.Applied += out.Applied
			rep.Duplicates += out.Duplicates
			return nil
		})
	}
	_ = g.Wait()

	result := resultOK
	if err := ctx.Err(); err != nil {
		rep.Error = err.Error()
		result = resultError
	}
	s.finishMatch(rep, result)
	s.log.Info().
		Int("preferences", rep.Preferences).
		Int("applied", rep.Applied).
		Int("failed", rep.Failed).
		Int("expired", rep.Expired).
		Msg("match sweep finished")
	return rep, ctx.Err()
}

// runCycle runs one preference's cycle. A preference that has expired since
// the sweep loaded it is never passed to the matcher.
func (s *Scheduler) runCycle(ctx context.Context, p domain.Preference) (out services.CycleOutcome, expired bool, err error) {
	lg := s.log.With().Str("preference_id", p.ID).Logger()
	if !p.ActiveAt(s.opts.Now()) {
		lg.Debug().Msg("preference expired before dispatch")
		return out, true, nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("match cycle panic: %v", r)
			lg.Error().Interface("panic", r).Msg("match cycle panicked")
		}
	}()

	out, err = s.matcher.Run(ctx, p)
	switch {
	case errors.Is(err, services.ErrPreferenceExpired):
		return out, true, nil
	case errors.Is(err, domain.ErrSourceUnavailable):
		lg.Warn().Err(err).Msg("listing source unavailable; preference skipped this tick")
	case err != nil:
		lg.Error().Err(err).Msg("match cycle failed")
	}
	return out, false, err
}

func (s *Scheduler) finishMatch(rep MatchReport, result string) {
	rep.FinishedAt = s.opts.Now().UTC()
	sweepsTotal.WithLabelValues(sweepMatch, result).Inc()
	s.mu.Lock()
	s.lastMatch = &rep
	s.mu.Unlock()
}

// RunExpirySweep deletes expired preferences once.
func (s *Scheduler) RunExpirySweep(ctx context.Context) (ExpiryReport, error) {
	if !s.expiryRunning.CompareAndSwap(false, true) {
		sweepsTotal.WithLabelValues(sweepExpiry, resultSkipped).Inc()
		return ExpiryReport{}, ErrSweepInProgress
	}
	defer s.expiryRunning.Store(false)
	return s.runExpiry(ctx)
}

func (s *Scheduler) runExpiry(ctx context.Context) (ExpiryReport, error) {
	rep := ExpiryReport{StartedAt: s.opts.Now().UTC()}
	timer := time.Now()

	n, err := s.sweeper.Sweep(ctx)
	sweepDuration.WithLabelValues(sweepExpiry).Observe(time.Since(timer).Seconds())

	rep.Deleted = n
	rep.FinishedAt = s.opts.Now().UTC()
	result := resultOK
	if err != nil {
		err = fmt.Errorf("expiry sweep: %w", err)
		rep.Error = err.Error()
		result = resultError
	}
	sweepsTotal.WithLabelValues(sweepExpiry, result).Inc()

	s.mu.Lock()
	s.lastExpiry = &rep
	s.mu.Unlock()
	return rep, err
}

// Status returns the current sweep state and the next scheduled firings.
func (s *Scheduler) Status() Status {
	st := Status{
		MatchRunning:  s.matchRunning.Load(),
		ExpiryRunning: s.expiryRunning.Load(),
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastMatch != nil {
		r := *s.lastMatch
		st.LastMatch = &r
	}
	if s.lastExpiry != nil {
		r := *s.lastExpiry
		st.LastExpiry = &r
	}
	if s.cron != nil {
		if next := s.cron.Entry(s.matchID).Next; !next.IsZero() {
			st.NextMatch = &next
		}
		if next := s.cron.Entry(s.expiryID).Next; !next.IsZero() {
			st.NextExpiry = &next
		}
	}
	return st
}
