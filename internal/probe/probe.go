// Package probe times a fixed set of read-only calls against the marketplace API
// and turns each run into a health snapshot plus findings for the decision log.
package probe

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"opswatch/internal/decisionlog"
	"opswatch/internal/upstream"
)

// DefaultSlowThreshold marks successful calls at or above it as warn.
const DefaultSlowThreshold = 2500 * time.Millisecond

// DefaultDeltaPct is the relative change between runs that is flagged.
const DefaultDeltaPct = 0.30

// Status is the classification of one check.
type Status string

const (
	StatusOK   Status = "ok"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
)

// Details attached to failed checks.
const (
	DetailAuth   = "auth/permissions"
	DetailFailed = "request failed"
	DetailSlow   = "slow response"
)

// CheckResult is one probe outcome.
type CheckResult struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Target    string `json:"target"`
	Status    Status `json:"status"`
	Code      *int   `json:"code,omitempty"`
	LatencyMS *int64 `json:"latency_ms,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// HealthSnapshot aggregates one run.
type HealthSnapshot struct {
	At      time.Time          `json:"at"`
	OK      int                `json:"ok"`
	Warn    int                `json:"warn"`
	Fail    int                `json:"fail"`
	P95MS   *int64             `json:"p95_ms,omitempty"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
}

// Finding is a health anomaly before it reaches the decision log.
type Finding struct {
	Severity decisionlog.Severity `json:"severity"`
	Title    string               `json:"title"`
	Detail   string               `json:"detail"`
}

// Run is the full result of one RunChecks call.
type Run struct {
	Snapshot HealthSnapshot `json:"snapshot"`
	Results  []CheckResult  `json:"results"`
	Findings []Finding      `json:"findings"`
	// Degraded is set when the run itself broke and produced no results.
	Degraded bool `json:"degraded,omitempty"`
}

// Classify maps a call outcome to a status. A failed call is always fail.
func Classify(elapsed time.Duration, err error, slow time.Duration) Status {
	if err != nil {
		return StatusFail
	}
	if elapsed >= slow {
		return StatusWarn
	}
	return StatusOK
}

// FailureDetail explains a failed call without leaking transport errors.
func FailureDetail(err error) string {
	if upstream.IsAuth(err) {
		return DetailAuth
	}
	return DetailFailed
}

// P95 returns the 95th percentile of values using index floor(0.95*n),
// clamped to the last element. ok is false for an empty input.
func P95(values []int64) (p int64, ok bool) {
	if len(values) == 0 {
		return 0, false
	}
	sorted := append([]int64(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(math.Floor(0.95 * float64(len(sorted))))
	if idx > len(sorted)-1 {
		idx = len(sorted) - 1
	}
	return sorted[idx], true
}

// Aggregate builds the snapshot for results. p95 only counts successful checks.
func Aggregate(at time.Time, results []CheckResult, metrics map[string]float64) HealthSnapshot {
	snap := HealthSnapshot{At: at, Metrics: metrics}
	var latencies []int64
	for _, r := range results {
		switch r.Status {
		case StatusOK:
			snap.OK++
		case StatusWarn:
			snap.Warn++
		case StatusFail:
			snap.Fail++
		}
		if r.Status != StatusFail && r.LatencyMS != nil {
			latencies = append(latencies, *r.LatencyMS)
		}
	}
	if p, ok := P95(latencies); ok {
		snap.P95MS = &p
	}
	return snap
}

// Detect compares cur against prev (nil on the first run) and lists findings.
func Detect(prev *HealthSnapshot, cur HealthSnapshot, results []CheckResult, slow time.Duration, deltaPct float64) []Finding {
	var findings []Finding

	if prev != nil {
		names := make([]string, 0, len(prev.Metrics))
		for name := range prev.Metrics {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			before := prev.Metrics[name]
			now, ok := cur.Metrics[name]
			if !ok || before <= 0 {
				continue
			}
			if now == 0 {
				findings = append(findings, Finding{
					Severity: decisionlog.SeverityHigh,
					Title:    fmt.Sprintf("%s dropped to zero", name),
					Detail:   fmt.Sprintf("%s was %s on the previous run and is now 0", name, formatNumber(before)),
				})
				continue
			}
			change := (now - before) / before
			if math.Abs(change) >= deltaPct {
				findings = append(findings, Finding{
					Severity: decisionlog.SeverityMed,
					Title:    fmt.Sprintf("%s changed sharply", name),
					Detail:   fmt.Sprintf("%s moved from %s to %s (%+.0f%%)", name, formatNumber(before), formatNumber(now), change*100),
				})
			}
		}
	}

	if cur.Fail > 0 {
		sev := decisionlog.SeverityMed
		if cur.Fail >= 2 {
			sev = decisionlog.SeverityHigh
		}
		var failed []string
		for _, r := range results {
			if r.Status == StatusFail {
				failed = append(failed, fmt.Sprintf("%s (%s)", r.ID, r.Detail))
			}
		}
		findings = append(findings, Finding{
			Severity: sev,
			Title:    "Some checks failed",
			Detail:   fmt.Sprintf("%d of %d checks failed: %s", cur.Fail, len(results), strings.Join(failed, ", ")),
		})
	}

	if cur.P95MS != nil && time.Duration(*cur.P95MS)*time.Millisecond >= slow {
		findings = append(findings, Finding{
			Severity: decisionlog.SeverityMed,
			Title:    "Elevated latency",
			Detail:   fmt.Sprintf("p95 latency is %dms (threshold %dms)", *cur.P95MS, slow.Milliseconds()),
		})
	}

	return findings
}

func formatNumber(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.2f", v)
}
