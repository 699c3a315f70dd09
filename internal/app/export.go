package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"opswatch/internal/probe"
)

// ProbeOptions configure the probe command.
type ProbeOptions struct {
	ReportPath string
	PNGPath    string
}

// Probe runs the checks once, prints the table and optionally exports the run.
func (a *App) Probe(ctx context.Context, opts ProbeOptions) error {
	eng, err := a.openEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.close()

	run := eng.svc.Prober.RunChecks(ctx)
	a.printRun(run)

	if opts.ReportPath != "" {
		if err := writeReport(opts.ReportPath, run); err != nil {
			return err
		}
		a.Logger.Info().Str("path", opts.ReportPath).Msg("report written")
	}
	if opts.PNGPath != "" {
		if err := writeLatencyPNG(opts.PNGPath, run); err != nil {
			return err
		}
		a.Logger.Info().Str("path", opts.PNGPath).Msg("latency chart written")
	}
	return nil
}

func (a *App) printRun(run probe.Run) {
	fmt.Fprintln(a.Out, heading("Health checks"))
	if run.Degraded {
		fmt.Fprintln(a.Out, statusCell(probe.StatusFail), "run degraded, no results")
		return
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Check\tTarget\tCode\tLatency\tDetail\tStatus")
	for _, r := range run.Results {
		code := "-"
		if r.Code != nil {
			code = fmt.Sprint(*r.Code)
		}
		latency := "-"
		if r.LatencyMS != nil {
			latency = fmt.Sprintf("%dms", *r.LatencyMS)
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\n", r.ID, r.Target, code, latency, sanitizeInline(r.Detail), statusCell(r.Status))
	}
	writer.Flush()

	snap := run.Snapshot
	p95 := "-"
	if snap.P95MS != nil {
		p95 = fmt.Sprintf("%dms", *snap.P95MS)
	}
	fmt.Fprintf(a.Out, "ok=%d warn=%d fail=%d p95=%s\n", snap.OK, snap.Warn, snap.Fail, p95)
	for _, f := range run.Findings {
		fmt.Fprintf(a.Out, "%s %s: %s\n", severityCell(f.Severity), f.Title, f.Detail)
	}
}

func writeReport(path string, run probe.Run) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(probe.Report(run)+"\n"), 0o644)
}

func writeLatencyPNG(path string, run probe.Run) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return probe.WriteLatencyChart(file, run)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
