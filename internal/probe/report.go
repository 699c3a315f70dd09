package probe

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// Report renders run as a newline-joined plain-text export.
func Report(run Run) string {
	snap := run.Snapshot
	lines := []string{
		fmt.Sprintf("health report %s", snap.At.UTC().Format(time.RFC3339)),
		fmt.Sprintf("ok=%d warn=%d fail=%d p95=%s", snap.OK, snap.Warn, snap.Fail, msOrDash(snap.P95MS)),
	}
	if run.Degraded {
		lines = append(lines, "run degraded: no results")
	}
	for _, r := range run.Results {
		code := "-"
		if r.Code != nil {
			code = fmt.Sprintf("%d", *r.Code)
		}
		line := fmt.Sprintf("%s %s code=%s latency=%s", r.ID, r.Status, code, msOrDash(r.LatencyMS))
		if r.Detail != "" {
			line += " detail=" + r.Detail
		}
		lines = append(lines, line)
	}

	names := make([]string, 0, len(snap.Metrics))
	for name := range snap.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("metric %s=%s", name, formatNumber(snap.Metrics[name])))
	}
	return strings.Join(lines, "\n")
}

func msOrDash(v *int64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%dms", *v)
}

var statusColors = map[Status]drawing.Color{
	StatusOK:   drawing.ColorFromHex("2ecc71"),
	StatusWarn: drawing.ColorFromHex("f39c12"),
	StatusFail: drawing.ColorFromHex("e74c3c"),
}

// WriteLatencyChart renders per-check latency as a PNG bar chart.
func WriteLatencyChart(w io.Writer, run Run) error {
	bars := make([]chart.Value, 0, len(run.Results))
	var max float64
	for _, r := range run.Results {
		if r.LatencyMS == nil {
			continue
		}
		v := float64(*r.LatencyMS)
		if v > max {
			max = v
		}
		color := statusColors[r.Status]
		bars = append(bars, chart.Value{
			Label: fmt.Sprintf("%s (%s)", r.ID, r.Status),
			Value: v,
			Style: chart.Style{FillColor: color, StrokeColor: color},
		})
	}
	if len(bars) == 0 {
		return errors.New("no latencies to chart")
	}
	if max <= 0 {
		max = 1
	}

	graph := chart.BarChart{
		Title:      fmt.Sprintf("Probe latency (ms) %s", run.Snapshot.At.UTC().Format(time.RFC3339)),
		Background: chart.Style{Padding: chart.Box{Top: 40}},
		Width:      1024,
		Height:     512,
		BarWidth:   60,
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: max * 1.1},
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.0f")
			},
		},
		Bars: bars,
	}
	return graph.Render(chart.PNG, w)
}
