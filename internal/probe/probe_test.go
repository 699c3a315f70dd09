package probe

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opswatch/internal/decisionlog"
	"opswatch/internal/storage"
	"opswatch/internal/upstream"
)

func TestClassify(t *testing.T) {
	slow := DefaultSlowThreshold
	failure := errors.New("boom")

	assert.Equal(t, StatusFail, Classify(10*time.Millisecond, failure, slow))
	assert.Equal(t, StatusFail, Classify(5*time.Second, failure, slow))
	assert.Equal(t, StatusWarn, Classify(2500*time.Millisecond, nil, slow))
	assert.Equal(t, StatusWarn, Classify(4*time.Second, nil, slow))
	assert.Equal(t, StatusOK, Classify(2499*time.Millisecond, nil, slow))
	assert.Equal(t, StatusOK, Classify(0, nil, slow))
}

func TestFailureDetail(t *testing.T) {
	assert.Equal(t, DetailAuth, FailureDetail(&upstream.StatusError{Code: http.StatusForbidden}))
	assert.Equal(t, DetailAuth, FailureDetail(&upstream.StatusError{Code: http.StatusUnauthorized}))
	assert.Equal(t, DetailFailed, FailureDetail(&upstream.StatusError{Code: http.StatusBadGateway}))
	assert.Equal(t, DetailFailed, FailureDetail(errors.New("dial tcp: refused")))
}

func TestP95(t *testing.T) {
	_, ok := P95(nil)
	assert.False(t, ok)

	p, ok := P95([]int64{100})
	require.True(t, ok)
	assert.Equal(t, int64(100), p)

	values := make([]int64, 20)
	for i := range values {
		values[i] = int64(20 - i)
	}
	p, ok = P95(values)
	require.True(t, ok)
	assert.Equal(t, int64(20), p, "index 19 of 20 sorted values is the maximum")

	p, _ = P95([]int64{50, 10, 30})
	assert.Equal(t, int64(50), p)
}

func ms(v int64) *int64 { return &v }

func TestAggregateCountsAndSuccessfulP95(t *testing.T) {
	results := []CheckResult{
		{ID: "a", Status: StatusOK, LatencyMS: ms(100)},
		{ID: "b", Status: StatusWarn, LatencyMS: ms(3000)},
		{ID: "c", Status: StatusFail, LatencyMS: ms(9000)},
	}
	snap := Aggregate(time.Unix(0, 0), results, map[string]float64{"x": 1})
	assert.Equal(t, 1, snap.OK)
	assert.Equal(t, 1, snap.Warn)
	assert.Equal(t, 1, snap.Fail)
	require.NotNil(t, snap.P95MS)
	assert.Equal(t, int64(3000), *snap.P95MS, "failed latencies are excluded")

	allFailed := Aggregate(time.Unix(0, 0), []CheckResult{{Status: StatusFail, LatencyMS: ms(1)}}, nil)
	assert.Nil(t, allFailed.P95MS)
}

func findingTitles(findings []Finding) []string {
	out := make([]string, 0, len(findings))
	for _, f := range findings {
		out = append(out, f.Title)
	}
	return out
}

func TestDetectMetricDeltas(t *testing.T) {
	prev := &HealthSnapshot{Metrics: map[string]float64{
		MetricCatalogItems: 100,
		MetricActiveRiders: 10,
		MetricOpenOrders:   50,
		MetricOrdersToday:  0,
	}}
	cur := HealthSnapshot{Metrics: map[string]float64{
		MetricCatalogItems: 0,
		MetricActiveRiders: 13,
		MetricOpenOrders:   60,
		MetricOrdersToday:  5,
	}}

	findings := Detect(prev, cur, nil, DefaultSlowThreshold, DefaultDeltaPct)
	require.Len(t, findings, 2)
	assert.Equal(t, "active_riders changed sharply", findings[0].Title)
	assert.Equal(t, decisionlog.SeverityMed, findings[0].Severity)
	assert.Equal(t, "catalog_items dropped to zero", findings[1].Title)
	assert.Equal(t, decisionlog.SeverityHigh, findings[1].Severity)
}

func TestDetectSkipsMissingMetrics(t *testing.T) {
	prev := &HealthSnapshot{Metrics: map[string]float64{MetricCatalogItems: 100}}
	cur := HealthSnapshot{Metrics: map[string]float64{}}
	assert.Empty(t, Detect(prev, cur, nil, DefaultSlowThreshold, DefaultDeltaPct))
}

func TestDetectFailuresAndLatency(t *testing.T) {
	results := []CheckResult{
		{ID: "a", Status: StatusFail, Detail: DetailFailed},
		{ID: "b", Status: StatusOK},
	}
	one := Detect(nil, HealthSnapshot{Fail: 1}, results, DefaultSlowThreshold, DefaultDeltaPct)
	require.Len(t, one, 1)
	assert.Equal(t, "Some checks failed", one[0].Title)
	assert.Equal(t, decisionlog.SeverityMed, one[0].Severity)

	two := Detect(nil, HealthSnapshot{Fail: 2}, results, DefaultSlowThreshold, DefaultDeltaPct)
	assert.Equal(t, decisionlog.SeverityHigh, two[0].Severity)

	slow := Detect(nil, HealthSnapshot{P95MS: ms(2500)}, nil, DefaultSlowThreshold, DefaultDeltaPct)
	assert.Equal(t, []string{"Elevated latency"}, findingTitles(slow))

	fast := Detect(nil, HealthSnapshot{P95MS: ms(2499)}, nil, DefaultSlowThreshold, DefaultDeltaPct)
	assert.Empty(t, fast)
}

func staticCheck(id string, metrics map[string]float64) Check {
	return Check{ID: id, Title: id, Target: "/" + id, Run: func(context.Context) (Outcome, error) {
		return Outcome{Metrics: metrics, Detail: id + " fine"}, nil
	}}
}

func hangingCheck(id string) Check {
	return Check{ID: id, Title: id, Target: "/" + id, Run: func(ctx context.Context) (Outcome, error) {
		<-ctx.Done()
		return Outcome{}, ctx.Err()
	}}
}

func newTestLog(kv storage.KV) *decisionlog.Log {
	return decisionlog.New(context.Background(), kv, decisionlog.Options{}, zerolog.Nop())
}

func TestRunChecksWithOneTimeout(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	log := newTestLog(kv)

	checks := []Check{
		staticCheck("health", nil),
		staticCheck("catalog", map[string]float64{MetricCatalogItems: 12}),
		staticCheck("orders", map[string]float64{MetricOpenOrders: 3}),
		staticCheck("riders", map[string]float64{MetricActiveRiders: 4}),
		hangingCheck("digest"),
	}
	p := New(ctx, checks, log, kv, Options{Timeout: 50 * time.Millisecond}, zerolog.Nop())

	run := p.RunChecks(ctx)
	require.Len(t, run.Results, 5)
	assert.False(t, run.Degraded)
	assert.GreaterOrEqual(t, run.Snapshot.Fail, 1)
	assert.Equal(t, 4, run.Snapshot.OK)

	for _, r := range run.Results {
		require.NotNil(t, r.LatencyMS, r.ID)
		if r.ID == "digest" {
			assert.Equal(t, StatusFail, r.Status)
			assert.Equal(t, DetailFailed, r.Detail)
		} else {
			assert.Equal(t, StatusOK, r.Status, r.ID)
		}
	}
	assert.Equal(t, 12.0, run.Snapshot.Metrics[MetricCatalogItems])

	entries := log.List()
	require.Len(t, entries, 1)
	assert.Equal(t, "Some checks failed", entries[0].Title)
	assert.Equal(t, decisionlog.SeverityMed, entries[0].Severity)
	assert.Equal(t, decisionlog.SourceOps, entries[0].Source)

	require.NotNil(t, p.Current())
	assert.Equal(t, run.Snapshot.OK, p.Current().Snapshot.OK)
}

func TestRunChecksPersistsSnapshotForNextInstance(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	log := newTestLog(kv)

	first := New(ctx, []Check{staticCheck("catalog", map[string]float64{MetricCatalogItems: 80})}, log, kv, Options{}, zerolog.Nop())
	run := first.RunChecks(ctx)
	assert.Empty(t, run.Findings)

	second := New(ctx, []Check{staticCheck("catalog", map[string]float64{MetricCatalogItems: 0})}, log, kv, Options{}, zerolog.Nop())
	require.NotNil(t, second.Previous())
	assert.Equal(t, 80.0, second.Previous().Metrics[MetricCatalogItems])

	run = second.RunChecks(ctx)
	assert.Equal(t, []string{"catalog_items dropped to zero"}, findingTitles(run.Findings))

	stored, found, err := storage.NewDocument[HealthSnapshot](kv, storage.KeyHealthSnapshot).Load(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 0.0, stored.Metrics[MetricCatalogItems])
}

func TestRunChecksRecoversFromPanickingCheck(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	checks := []Check{
		{ID: "bad", Run: func(context.Context) (Outcome, error) { panic("nil map") }},
		staticCheck("ok", nil),
	}
	run := New(ctx, checks, nil, kv, Options{}, zerolog.Nop()).RunChecks(ctx)
	require.Len(t, run.Results, 2)
	assert.Equal(t, StatusFail, run.Results[0].Status)
	assert.Equal(t, StatusOK, run.Results[1].Status)
}

type recordingObserver struct{ runs []Run }

func (o *recordingObserver) ObserveRun(run Run) { o.runs = append(o.runs, run) }

func TestRunChecksNotifiesObserver(t *testing.T) {
	ctx := context.Background()
	obs := &recordingObserver{}
	New(ctx, []Check{staticCheck("a", nil)}, nil, storage.NewMemoryKV(), Options{Observer: obs}, zerolog.Nop()).RunChecks(ctx)
	require.Len(t, obs.runs, 1)
}

func TestReport(t *testing.T) {
	code := 403
	run := Run{
		Snapshot: HealthSnapshot{
			At: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), OK: 1, Fail: 1, P95MS: ms(120),
			Metrics: map[string]float64{MetricCatalogItems: 12, MetricActiveRiders: 3},
		},
		Results: []CheckResult{
			{ID: "health", Status: StatusOK, LatencyMS: ms(120)},
			{ID: "orders", Status: StatusFail, Code: &code, LatencyMS: ms(40), Detail: DetailAuth},
		},
	}
	want := strings.Join([]string{
		"health report 2026-01-02T03:04:05Z",
		"ok=1 warn=0 fail=1 p95=120ms",
		"health ok code=- latency=120ms",
		"orders fail code=403 latency=40ms detail=auth/permissions",
		"metric active_riders=3",
		"metric catalog_items=12",
	}, "\n")
	assert.Equal(t, want, Report(run))
}

func TestWriteLatencyChart(t *testing.T) {
	var buf bytes.Buffer
	run := Run{Results: []CheckResult{
		{ID: "a", Status: StatusOK, LatencyMS: ms(10)},
		{ID: "b", Status: StatusFail, LatencyMS: ms(0)},
	}}
	require.NoError(t, WriteLatencyChart(&buf, run))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")))

	assert.Error(t, WriteLatencyChart(&buf, Run{}))
}
