package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked on every interval and on every manual trigger.
type TickFunc func(ctx context.Context, at time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Name         string
	Interval     time.Duration
	StartupDelay time.Duration
	// SkipInitial waits one interval before the first tick instead of firing immediately.
	SkipInitial bool
}

// Scheduler drives periodic execution of one job. Ticks never overlap.
type Scheduler struct {
	opts    Options
	logger  zerolog.Logger
	paused  atomic.Bool
	trigger chan struct{}
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	l := logger.With().Str("component", "scheduler")
	if opts.Name != "" {
		l = l.Str("job", opts.Name)
	}
	return &Scheduler{opts: opts, logger: l.Logger(), trigger: make(chan struct{}, 1)}
}

// SetPaused suspends or resumes interval ticks. Manual triggers still run.
func (s *Scheduler) SetPaused(paused bool) {
	if s.paused.Swap(paused) != paused {
		s.logger.Info().Bool("paused", paused).Msg("auto-refresh toggled")
	}
}

// Paused reports whether interval ticks are suspended.
func (s *Scheduler) Paused() bool {
	return s.paused.Load()
}

// Trigger requests an immediate tick. Requests made while one is pending are coalesced.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run blocks, invoking tick until ctx is cancelled. Nothing keeps running after it returns.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if !s.opts.SkipInitial && !s.Paused() {
		s.execute(ctx, tick, "initial")
	}

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	for {
		s.logger.Debug().Dur("interval", s.opts.Interval).Msg("waiting for next tick")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.trigger:
			s.execute(ctx, tick, "manual")
		case <-ticker.C:
			if s.Paused() {
				continue
			}
			s.execute(ctx, tick, "interval")
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, tick TickFunc, reason string) {
	at := time.Now().UTC()
	s.logger.Debug().Time("at", at).Str("reason", reason).Msg("executing scheduled tick")
	if err := tick(ctx, at); err != nil {
		s.logger.Error().Err(err).Time("at", at).Str("reason", reason).Msg("tick execution failed")
	}
}
