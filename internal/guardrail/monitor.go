package guardrail

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"opswatch/internal/decisionlog"
	"opswatch/internal/settings"
	"opswatch/internal/upstream"
)

// DigestSource is the KPI collaborator.
type DigestSource interface {
	Digest(ctx context.Context) (upstream.Digest, error)
}

// LimitSource supplies the current limits.
type LimitSource interface {
	Get() settings.Guardrails
}

// Observer receives every evaluation.
type Observer interface {
	ObserveEvaluation(eval Evaluation)
}

// Monitor fetches KPIs, evaluates them and records breaches.
type Monitor struct {
	src      DigestSource
	limits   LimitSource
	log      decisionlog.Recorder
	observer Observer
	now      func() time.Time
	logger   zerolog.Logger

	mu       sync.RWMutex
	lastKPIs *KPIs
	current  Evaluation
}

// NewMonitor wires a Monitor. observer may be nil.
func NewMonitor(src DigestSource, limits LimitSource, log decisionlog.Recorder, observer Observer, logger zerolog.Logger) *Monitor {
	return &Monitor{
		src:      src,
		limits:   limits,
		log:      log,
		observer: observer,
		now:      time.Now,
		logger:   logger.With().Str("component", "guardrails").Logger(),
		current:  Evaluation{Breaches: []Breach{}},
	}
}

// Current returns the latest evaluation.
func (m *Monitor) Current() Evaluation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Refresh reads the digest and evaluates it. Upstream failure yields an
// unavailable evaluation rather than an all-clear.
func (m *Monitor) Refresh(ctx context.Context) Evaluation {
	var kpis *KPIs
	digest, err := m.src.Digest(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("kpi digest unavailable")
	} else {
		k := FromDigest(digest)
		kpis = &k
	}

	m.mu.Lock()
	m.lastKPIs = kpis
	m.mu.Unlock()

	return m.evaluate(ctx, kpis)
}

// Reevaluate applies the current limits to the last fetched KPIs.
func (m *Monitor) Reevaluate(ctx context.Context) Evaluation {
	m.mu.RLock()
	kpis := m.lastKPIs
	m.mu.RUnlock()
	return m.evaluate(ctx, kpis)
}

func (m *Monitor) evaluate(ctx context.Context, kpis *KPIs) Evaluation {
	eval := Evaluate(kpis, m.limits.Get())
	eval.At = m.now()

	m.mu.Lock()
	m.current = eval
	m.mu.Unlock()

	if m.log != nil {
		for _, b := range eval.Breaches {
			m.log.Add(ctx, decisionlog.Draft{
				Type:     decisionlog.TypeAlert,
				Severity: b.Severity,
				Title:    b.Title,
				Detail:   b.Detail + ". " + b.Action,
				Source:   decisionlog.SourceGuardrails,
			})
		}
	}

	m.logger.Info().Bool("available", eval.Available).Int("breaches", len(eval.Breaches)).
		Float64("cancel_rate", eval.CancelRate).Msg("guardrails evaluated")
	if m.observer != nil {
		m.observer.ObserveEvaluation(eval)
	}
	return eval
}
