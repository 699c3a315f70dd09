package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"opswatch/internal/catalog"
	"opswatch/internal/decisionlog"
	"opswatch/internal/guardrail"
	"opswatch/internal/probe"
	"opswatch/internal/scheduler"
	"opswatch/internal/settings"
)

// Components are the engine parts the service drives.
type Components struct {
	Prober   *probe.Prober
	Monitor  *guardrail.Monitor
	Scanner  *catalog.Scanner
	Log      *decisionlog.Log
	Settings *settings.Store
}

// Options tune the periodic loops.
type Options struct {
	Interval        time.Duration
	CatalogInterval time.Duration
	StartupDelay    time.Duration
}

// Status is the combined read model for the hosting surface.
type Status struct {
	Health      *probe.Run           `json:"health"`
	Guardrails  guardrail.Evaluation `json:"guardrails"`
	Catalog     *catalog.Result      `json:"catalog"`
	AutoRefresh bool                 `json:"auto_refresh"`
}

// Service orchestrates probing, guardrail evaluation and catalog scans.
type Service struct {
	Components

	health      *scheduler.Scheduler
	catalog     *scheduler.Scheduler
	logger      zerolog.Logger
	unsubscribe func()
}

// New constructs the engine service. Guardrail edits re-evaluate the last KPIs immediately.
func New(c Components, opts Options, logger zerolog.Logger) (*Service, error) {
	if c.Prober == nil || c.Monitor == nil || c.Scanner == nil || c.Log == nil || c.Settings == nil {
		return nil, errors.New("service: all components are required")
	}
	if opts.Interval <= 0 || opts.CatalogInterval <= 0 {
		return nil, fmt.Errorf("service: intervals must be positive")
	}

	s := &Service{
		Components: c,
		health: scheduler.New(scheduler.Options{
			Name:         "health",
			Interval:     opts.Interval,
			StartupDelay: opts.StartupDelay,
		}, logger),
		catalog: scheduler.New(scheduler.Options{
			Name:         "catalog",
			Interval:     opts.CatalogInterval,
			StartupDelay: opts.StartupDelay,
		}, logger),
		logger: logger.With().Str("component", "service").Logger(),
	}
	s.unsubscribe = c.Settings.Subscribe(func(g settings.Guardrails) {
		s.logger.Info().Interface("guardrails", g).Msg("guardrails changed; re-evaluating")
		s.Monitor.Reevaluate(context.Background())
	})
	return s, nil
}

// Close detaches the settings subscription.
func (s *Service) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// Run drives both loops until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.health.Run(ctx, func(ctx context.Context, _ time.Time) error {
			s.Refresh(ctx)
			return nil
		})
	})
	g.Go(func() error {
		return s.catalog.Run(ctx, func(ctx context.Context, _ time.Time) error {
			_, err := s.Scanner.Run(ctx)
			return err
		})
	})
	return g.Wait()
}

// Refresh runs the probes and the guardrail evaluation concurrently.
func (s *Service) Refresh(ctx context.Context) (probe.Run, guardrail.Evaluation) {
	var (
		run  probe.Run
		eval guardrail.Evaluation
		wg   sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		run = s.Prober.RunChecks(ctx)
	}()
	go func() {
		defer wg.Done()
		eval = s.Monitor.Refresh(ctx)
	}()
	wg.Wait()
	return run, eval
}

// ScanCatalog runs one catalog scan now.
func (s *Service) ScanCatalog(ctx context.Context) (catalog.Result, error) {
	return s.Scanner.Run(ctx)
}

// TriggerRefresh asks the running health loop for an immediate tick.
func (s *Service) TriggerRefresh() {
	s.health.Trigger()
}

// SetAutoRefresh suspends or resumes both periodic loops without dropping state.
func (s *Service) SetAutoRefresh(enabled bool) {
	s.health.SetPaused(!enabled)
	s.catalog.SetPaused(!enabled)
}

// AutoRefresh reports whether periodic execution is active.
func (s *Service) AutoRefresh() bool {
	return !s.health.Paused()
}

// Status returns the latest results of every component.
func (s *Service) Status() Status {
	return Status{
		Health:      s.Prober.Current(),
		Guardrails:  s.Monitor.Current(),
		Catalog:     s.Scanner.Current(),
		AutoRefresh: s.AutoRefresh(),
	}
}
