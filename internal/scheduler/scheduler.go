// Package scheduler drives the automation engine's two periodic triggers on
// robfig/cron: the match sweep, which fans out a match cycle over every active
// preference, and the expiry sweep, which removes preferences past their end
// date.
//
// Both triggers run on independent cron entries. A firing that is due while
// the previous run of the same trigger is still active is skipped, both by
// cron's SkipIfStillRunning wrapper and by an in-process guard shared with the
// manual triggers exposed to the HTTP layer. Errors never escape a tick: they
// are logged, counted, and the next firing is the retry.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-autodaft/internal/domain"
	"github.com/tbourn/go-autodaft/internal/services"
)

// ErrSweepInProgress is returned when a sweep is requested while the previous
// run of the same sweep has not finished.
var ErrSweepInProgress = errors.New("sweep already in progress")

// MatchRunner runs one match cycle. *services.Matcher satisfies it.
type MatchRunner interface {
	Run(ctx context.Context, p domain.Preference) (services.CycleOutcome, error)
}

// ExpiryRunner runs one expiry sweep. *services.ExpirySweeper satisfies it.
type ExpiryRunner interface {
	Sweep(ctx context.Context) (int64, error)
}

// Options configures the triggers.
type Options struct {
	// MatchInterval is the fixed period of the match sweep.
	MatchInterval time.Duration
	// ExpirySchedule is a standard 5-field cron spec (or descriptor).
	ExpirySchedule string
	// Location is the time zone ExpirySchedule is evaluated in. Nil means UTC.
	Location *time.Location
	// Concurrency bounds the per-tick fan-out. Values below 1 mean 1.
	Concurrency int
	// RunOnStart fires one match sweep right after Start.
	RunOnStart bool
	// Now overrides the clock; defaults to time.Now.
	Now func() time.Time
}

// Scheduler owns the cron instance and the sweep state.
type Scheduler struct {
	store   services.PreferenceStore
	matcher MatchRunner
	sweeper ExpiryRunner
	opts    Options
	log     zerolog.Logger

	cron     *cron.Cron
	matchID  cron.EntryID
	expiryID cron.EntryID

	// ctx is handed to every sweep; cancel aborts in-flight work on a
	// shutdown that ran out of time.
	ctx    context.Context
	cancel context.CancelFunc
	bg     sync.WaitGroup

	matchRunning  atomic.Bool
	expiryRunning atomic.Bool

	mu         sync.RWMutex
	lastMatch  *MatchReport
	lastExpiry *ExpiryReport
}

// New builds a Scheduler. Start must be called to begin firing.
func New(store services.PreferenceStore, matcher MatchRunner, sweeper ExpiryRunner, opts Options, log zerolog.Logger) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:   store,
		matcher: matcher,
		sweeper: sweeper,
		opts:    opts,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start registers both triggers and starts the cron loop.
func (s *Scheduler) Start() error {
	if s.opts.MatchInterval <= 0 {
		return fmt.Errorf("scheduler: match interval must be positive, got %s", s.opts.MatchInterval)
	}
	cl := cronLogger{log: s.log}
	c := cron.New(
		cron.WithLocation(s.opts.Location),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	matchSpec := "@every " + s.opts.MatchInterval.String()
	matchID, err := c.AddFunc(matchSpec, s.matchTick)
	if err != nil {
		return fmt.Errorf("scheduler: add match trigger %q: %w", matchSpec, err)
	}
	expiryID, err := c.AddFunc(s.opts.ExpirySchedule, s.expiryTick)
	if err != nil {
		return fmt.Errorf("scheduler: add expiry trigger %q: %w", s.opts.ExpirySchedule, err)
	}

	s.mu.Lock()
	s.cron, s.matchID, s.expiryID = c, matchID, expiryID
	s.mu.Unlock()

	c.Start()
	s.log.Info().
		Str("match_every", s.opts.MatchInterval.String()).
		Str("expiry_schedule", s.opts.ExpirySchedule).
		Str("tz", s.opts.Location.String()).
		Int("concurrency", s.opts.Concurrency).
		Msg("scheduler started")

	if s.opts.RunOnStart {
		if err := s.TriggerMatch(); err != nil {
			s.log.Warn().Err(err).Msg("startup match sweep not started")
		}
	}
	return nil
}

// Stop halts future firings and waits for running sweeps. When ctx ends
// first, in-flight sweeps are cancelled and ctx.Err() is returned.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.RLock()
	c := s.cron
	s.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		if c != nil {
			<-c.Stop().Done()
		}
		s.bg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		s.log.Info().Msg("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.cancel()
		s.log.Warn().Msg("scheduler stop timed out; in-flight sweeps cancelled")
		return ctx.Err()
	}
}

// TriggerMatch starts a match sweep in the background. It returns
// ErrSweepInProgress when one is already running.
func (s *Scheduler) TriggerMatch() error {
	if !s.matchRunning.CompareAndSwap(false, true) {
		return ErrSweepInProgress
	}
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		defer s.matchRunning.Store(false)
		if _, err := s.runMatch(s.ctx); err != nil {
			s.log.Error().Err(err).Msg("match sweep failed")
		}
	}()
	return nil
}

// TriggerExpiry starts an expiry sweep in the background. It returns
// ErrSweepInProgress when one is already running.
func (s *Scheduler) TriggerExpiry() error {
	if !s.expiryRunning.CompareAndSwap(false, true) {
		return ErrSweepInProgress
	}
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		defer s.expiryRunning.Store(false)
		if _, err := s.runExpiry(s.ctx); err != nil {
			s.log.Error().Err(err).Msg("expiry sweep failed")
		}
	}()
	return nil
}

// matchTick and expiryTick are the cron entry points. They swallow every
// error so the entry keeps firing.
func (s *Scheduler) matchTick() {
	if _, err := s.RunMatchSweep(s.ctx); err != nil {
		if errors.Is(err, ErrSweepInProgress) {
			s.log.Warn().Msg("match sweep still running; tick skipped")
			return
		}
		s.log.Error().Err(err).Msg("match sweep failed")
	}
}

func (s *Scheduler) expiryTick() {
	if _, err := s.RunExpirySweep(s.ctx); err != nil {
		if errors.Is(err, ErrSweepInProgress) {
			s.log.Warn().Msg("expiry sweep still running; tick skipped")
			return
		}
		s.log.Error().Err(err).Msg("expiry sweep failed")
	}
}
