package probe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"opswatch/internal/decisionlog"
	"opswatch/internal/storage"
	"opswatch/internal/upstream"
)

var errCheckTimeout = errors.New("check timed out")

// Observer receives every completed run, e.g. to export metrics.
type Observer interface {
	ObserveRun(run Run)
}

// Options tune a Prober.
type Options struct {
	SlowThreshold time.Duration
	DeltaPct      float64
	// Timeout bounds each check independently of the transport timeout.
	Timeout  time.Duration
	Now      func() time.Time
	Observer Observer
}

// Prober runs the checks and keeps the current and previous snapshot.
type Prober struct {
	checks []Check
	log    decisionlog.Recorder
	doc    *storage.Document[HealthSnapshot]
	opts   Options
	logger zerolog.Logger

	runMu    sync.Mutex
	mu       sync.RWMutex
	current  *Run
	previous *HealthSnapshot
}

// New builds a Prober and loads the snapshot persisted by the last run.
func New(ctx context.Context, checks []Check, log decisionlog.Recorder, kv storage.KV, opts Options, logger zerolog.Logger) *Prober {
	if opts.SlowThreshold <= 0 {
		opts.SlowThreshold = DefaultSlowThreshold
	}
	if opts.DeltaPct <= 0 {
		opts.DeltaPct = DefaultDeltaPct
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	p := &Prober{
		checks: checks,
		log:    log,
		doc:    storage.NewDocument[HealthSnapshot](kv, storage.KeyHealthSnapshot),
		opts:   opts,
		logger: logger.With().Str("component", "prober").Logger(),
	}
	prev, found, err := p.doc.Load(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Msg("previous health snapshot unavailable")
	}
	if found {
		p.previous = &prev
	}
	return p
}

// Current returns the latest run, or nil before the first one.
func (p *Prober) Current() *Run {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Previous returns the snapshot the latest run was compared against.
func (p *Prober) Previous() *HealthSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.previous
}

// RunChecks fires every check concurrently, aggregates, diffs against the
// previous snapshot, records findings and persists the new snapshot.
// It never returns an error; broken runs are reported as Degraded.
func (p *Prober) RunChecks(ctx context.Context) (run Run) {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Interface("panic", r).Msg("probe run aborted")
			run = Run{Snapshot: HealthSnapshot{At: p.opts.Now()}, Degraded: true}
		}
	}()

	results := make([]CheckResult, len(p.checks))
	outcomes := make([]Outcome, len(p.checks))

	// Every check settles into its own result; none can abort the others.
	var wg sync.WaitGroup
	for i, check := range p.checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], outcomes[i] = p.runOne(ctx, check)
		}()
	}
	wg.Wait()

	metrics := make(map[string]float64)
	for i, r := range results {
		if r.Status == StatusFail {
			continue
		}
		for k, v := range outcomes[i].Metrics {
			metrics[k] = v
		}
	}

	snap := Aggregate(p.opts.Now(), results, metrics)

	p.mu.RLock()
	prev := p.previous
	if p.current != nil {
		last := p.current.Snapshot
		prev = &last
	}
	p.mu.RUnlock()

	findings := Detect(prev, snap, results, p.opts.SlowThreshold, p.opts.DeltaPct)
	run = Run{Snapshot: snap, Results: results, Findings: findings}

	for _, f := range findings {
		if p.log == nil {
			break
		}
		p.log.Add(ctx, decisionlog.Draft{
			Type:     decisionlog.TypeAlert,
			Severity: f.Severity,
			Title:    f.Title,
			Detail:   f.Detail,
			Source:   decisionlog.SourceOps,
		})
	}

	if err := p.doc.Save(ctx, snap); err != nil {
		p.logger.Warn().Err(err).Msg("persist health snapshot failed")
	}

	p.mu.Lock()
	p.previous = prev
	p.current = &run
	p.mu.Unlock()

	logEvent := p.logger.Info()
	if snap.P95MS != nil {
		logEvent = logEvent.Int64("p95_ms", *snap.P95MS)
	}
	logEvent.Int("ok", snap.OK).Int("warn", snap.Warn).Int("fail", snap.Fail).
		Int("findings", len(findings)).Msg("probe run complete")

	if p.opts.Observer != nil {
		p.opts.Observer.ObserveRun(run)
	}
	return run
}

type checkReply struct {
	outcome Outcome
	err     error
}

// runOne never blocks past opts.Timeout, even if the check ignores ctx.
func (p *Prober) runOne(ctx context.Context, check Check) (CheckResult, Outcome) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	reply := make(chan checkReply, 1)
	start := time.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				reply <- checkReply{err: fmt.Errorf("check panicked: %v", r)}
			}
		}()
		out, err := check.Run(ctx)
		reply <- checkReply{outcome: out, err: err}
	}()

	var res checkReply
	select {
	case res = <-reply:
	case <-ctx.Done():
		res = checkReply{err: errCheckTimeout}
	}
	elapsed := time.Since(start)
	latency := elapsed.Milliseconds()

	result := CheckResult{
		ID:        check.ID,
		Title:     check.Title,
		Target:    check.Target,
		Status:    Classify(elapsed, res.err, p.opts.SlowThreshold),
		LatencyMS: &latency,
	}

	switch result.Status {
	case StatusFail:
		result.Detail = FailureDetail(res.err)
		if code := upstream.StatusCode(res.err); code != 0 {
			result.Code = &code
		}
		p.logger.Warn().Err(res.err).Str("check", check.ID).Int64("latency_ms", latency).Msg("check failed")
		return result, Outcome{}
	case StatusWarn:
		result.Detail = DetailSlow
		if res.outcome.Detail != "" {
			result.Detail = res.outcome.Detail + ", " + DetailSlow
		}
	default:
		result.Detail = res.outcome.Detail
	}
	return result, res.outcome
}
