// Package metrics exports engine outcomes as Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"opswatch/internal/catalog"
	"opswatch/internal/decisionlog"
	"opswatch/internal/guardrail"
	"opswatch/internal/probe"
)

const namespace = "opswatch"

// Recorder owns a private registry so several engines can coexist in tests.
type Recorder struct {
	registry *prometheus.Registry

	checkLatency    *prometheus.HistogramVec
	checkStatus     *prometheus.GaugeVec
	probeRuns       *prometheus.CounterVec
	healthP95       prometheus.Gauge
	guardrailBreach *prometheus.GaugeVec
	guardrailData   prometheus.Gauge
	catalogFindings *prometheus.GaugeVec
	catalogScanned  prometheus.Gauge
	catalogData     prometheus.Gauge
	decisions       *prometheus.CounterVec
}

// New registers every collector plus the Go and process collectors.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		checkLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "probe",
			Name:      "check_latency_seconds",
			Help:      "Latency of individual probe checks",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"check", "status"}),
		checkStatus: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "probe",
			Name:      "check_up",
			Help:      "1 when the last run of the check did not fail",
		}, []string{"check"}),
		probeRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "probe",
			Name:      "runs_total",
			Help:      "Completed probe runs",
		}, []string{"outcome"}),
		healthP95: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "probe",
			Name:      "p95_latency_seconds",
			Help:      "p95 latency of successful checks in the last run",
		}),
		guardrailBreach: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "guardrail",
			Name:      "breached",
			Help:      "1 when the guardrail was breached at the last evaluation",
		}, []string{"guardrail"}),
		guardrailData: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "guardrail",
			Name:      "data_available",
			Help:      "1 when the last evaluation had KPI data",
		}),
		catalogFindings: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "findings",
			Help:      "Findings in the last catalog scan",
		}, []string{"severity"}),
		catalogScanned: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "scanned_products",
			Help:      "Products inspected by the last catalog scan",
		}),
		catalogData: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "data_available",
			Help:      "1 when the last catalog scan could fetch the catalog",
		}),
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decision_log",
			Name:      "entries_total",
			Help:      "Decision log entries accepted after deduplication",
		}, []string{"source", "severity"}),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// ObserveRun implements probe.Observer.
func (r *Recorder) ObserveRun(run probe.Run) {
	if run.Degraded {
		r.probeRuns.WithLabelValues("degraded").Inc()
		return
	}
	r.probeRuns.WithLabelValues("complete").Inc()
	for _, res := range run.Results {
		up := 1.0
		if res.Status == probe.StatusFail {
			up = 0
		}
		r.checkStatus.WithLabelValues(res.ID).Set(up)
		if res.LatencyMS != nil {
			r.checkLatency.WithLabelValues(res.ID, string(res.Status)).Observe(float64(*res.LatencyMS) / 1000)
		}
	}
	if run.Snapshot.P95MS != nil {
		r.healthP95.Set(float64(*run.Snapshot.P95MS) / 1000)
	}
}

// ObserveEvaluation implements guardrail.Observer.
func (r *Recorder) ObserveEvaluation(eval guardrail.Evaluation) {
	if !eval.Available {
		r.guardrailData.Set(0)
		return
	}
	r.guardrailData.Set(1)
	breached := map[string]bool{}
	for _, b := range eval.Breaches {
		breached[b.ID] = true
	}
	for _, id := range []string{guardrail.BreachReadyWithoutDriver, guardrail.BreachOrdersLastHour, guardrail.BreachCancelRate} {
		v := 0.0
		if breached[id] {
			v = 1
		}
		r.guardrailBreach.WithLabelValues(id).Set(v)
	}
}

// ObserveScan implements catalog.Observer.
func (r *Recorder) ObserveScan(result catalog.Result) {
	if !result.Available {
		r.catalogData.Set(0)
		return
	}
	r.catalogData.Set(1)
	r.catalogScanned.Set(float64(result.Scanned))
	for _, sev := range []decisionlog.Severity{decisionlog.SeverityLow, decisionlog.SeverityMed, decisionlog.SeverityHigh} {
		r.catalogFindings.WithLabelValues(string(sev)).Set(float64(catalog.CountSeverity(result.Findings, sev)))
	}
}

// ObserveDecision is a decisionlog.Listener.
func (r *Recorder) ObserveDecision(entry decisionlog.Entry) {
	r.decisions.WithLabelValues(string(entry.Source), string(entry.Severity)).Inc()
}

var (
	_ probe.Observer     = (*Recorder)(nil)
	_ guardrail.Observer = (*Recorder)(nil)
	_ catalog.Observer   = (*Recorder)(nil)
)
