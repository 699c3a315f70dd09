package service

import (
	"context"

	"github.com/rs/zerolog"

	"opswatch/internal/catalog"
	"opswatch/internal/config"
	"opswatch/internal/decisionlog"
	"opswatch/internal/guardrail"
	"opswatch/internal/metrics"
	"opswatch/internal/probe"
	"opswatch/internal/settings"
	"opswatch/internal/storage"
)

// Build assembles every component over kv and src. rec may be nil.
func Build(ctx context.Context, cfg *config.Config, kv storage.KV, src probe.Source, rec *metrics.Recorder, listeners []decisionlog.Listener, logger zerolog.Logger) (*Service, error) {
	var (
		probeObs   probe.Observer
		guardObs   guardrail.Observer
		catalogObs catalog.Observer
	)
	if rec != nil {
		probeObs, guardObs, catalogObs = rec, rec, rec
		listeners = append(listeners, rec.ObserveDecision)
	}

	store := settings.NewStore(ctx, kv, logger)
	log := decisionlog.New(ctx, kv, decisionlog.Options{
		MaxEntries: cfg.DecisionLog.MaxEntries,
		Listeners:  listeners,
	}, logger)

	prober := probe.New(ctx, probe.DefaultChecks(src), log, kv, probe.Options{
		SlowThreshold: cfg.Probe.SlowThreshold,
		DeltaPct:      cfg.Probe.DeltaPct,
		Timeout:       cfg.Upstream.Timeout,
		Observer:      probeObs,
	}, logger)

	monitor := guardrail.NewMonitor(src, store, log, guardObs, logger)
	scanner := catalog.NewScanner(src, log, kv, catalog.Options{
		Limit:    cfg.Catalog.ScanLimit,
		Observer: catalogObs,
	}, logger)

	return New(Components{
		Prober:   prober,
		Monitor:  monitor,
		Scanner:  scanner,
		Log:      log,
		Settings: store,
	}, Options{
		Interval:        cfg.Scheduler.Interval,
		CatalogInterval: cfg.Scheduler.CatalogInterval,
		StartupDelay:    cfg.Scheduler.StartupDelay,
	}, logger)
}
