package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opswatch/internal/catalog"
	"opswatch/internal/decisionlog"
	"opswatch/internal/guardrail"
	"opswatch/internal/probe"
)

func TestObserveRun(t *testing.T) {
	r := New()
	latency := int64(250)
	p95 := int64(250)
	r.ObserveRun(probe.Run{
		Snapshot: probe.HealthSnapshot{P95MS: &p95},
		Results: []probe.CheckResult{
			{ID: "health", Status: probe.StatusOK, LatencyMS: &latency},
			{ID: "orders", Status: probe.StatusFail, LatencyMS: &latency},
		},
	})
	r.ObserveRun(probe.Run{Degraded: true})

	assert.Equal(t, 1.0, testutil.ToFloat64(r.checkStatus.WithLabelValues("health")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.checkStatus.WithLabelValues("orders")))
	assert.Equal(t, 0.25, testutil.ToFloat64(r.healthP95))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.probeRuns.WithLabelValues("complete")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.probeRuns.WithLabelValues("degraded")))
}

func TestObserveEvaluation(t *testing.T) {
	r := New()
	r.ObserveEvaluation(guardrail.Evaluation{Available: true, Breaches: []guardrail.Breach{{ID: guardrail.BreachCancelRate}}})
	assert.Equal(t, 1.0, testutil.ToFloat64(r.guardrailData))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.guardrailBreach.WithLabelValues(guardrail.BreachCancelRate)))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.guardrailBreach.WithLabelValues(guardrail.BreachOrdersLastHour)))

	r.ObserveEvaluation(guardrail.Evaluation{})
	assert.Equal(t, 0.0, testutil.ToFloat64(r.guardrailData))
}

func TestObserveScanAndDecisions(t *testing.T) {
	r := New()
	r.ObserveScan(catalog.Result{Available: true, Scanned: 7, Findings: []catalog.Finding{
		{Severity: decisionlog.SeverityHigh}, {Severity: decisionlog.SeverityHigh}, {Severity: decisionlog.SeverityLow},
	}})
	assert.Equal(t, 7.0, testutil.ToFloat64(r.catalogScanned))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.catalogFindings.WithLabelValues("high")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.catalogFindings.WithLabelValues("med")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.catalogData))

	r.ObserveScan(catalog.Result{})
	assert.Equal(t, 0.0, testutil.ToFloat64(r.catalogData))
	assert.Equal(t, 7.0, testutil.ToFloat64(r.catalogScanned))

	r.ObserveDecision(decisionlog.Entry{Source: decisionlog.SourceGuardrails, Severity: decisionlog.SeverityMed})
	assert.Equal(t, 1.0, testutil.ToFloat64(r.decisions.WithLabelValues("guardrails", "med")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	r := New()
	r.ObserveDecision(decisionlog.Entry{Source: decisionlog.SourceOps, Severity: decisionlog.SeverityHigh})

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `opswatch_decision_log_entries_total{severity="high",source="ops"} 1`), body)
	assert.Contains(t, body, "go_goroutines")
}
