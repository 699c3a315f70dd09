package app

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"opswatch/internal/catalog"
	"opswatch/internal/guardrail"
)

// Guardrails fetches the KPI digest once and prints the evaluation.
func (a *App) Guardrails(ctx context.Context) error {
	eng, err := a.openEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.close()

	a.printEvaluation(eng.svc.Monitor.Refresh(ctx))
	return nil
}

func (a *App) printEvaluation(eval guardrail.Evaluation) {
	fmt.Fprintln(a.Out, heading("Guardrails"))
	if !eval.Available {
		fmt.Fprintln(a.Out, styleMuted.Render("no data: KPI digest unavailable, breaches unknown"))
		return
	}
	k := eval.KPIs
	fmt.Fprintf(a.Out, "orders today=%.0f last hour=%.0f ready without driver=%.0f cancel rate=%.1f%%\n",
		k.OrdersToday, k.OrdersLastHour, k.ReadyWithoutDriverCount, eval.CancelRate*100)
	if len(eval.Breaches) == 0 {
		fmt.Fprintln(a.Out, styleOK.Render("all guardrails within limits"))
		return
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Breach\tDetail\tAction\tSeverity")
	for _, b := range eval.Breaches {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n", b.Title, b.Detail, b.Action, severityCell(b.Severity))
	}
	writer.Flush()
}

// Scan runs one catalog scan and prints the findings.
func (a *App) Scan(ctx context.Context) error {
	eng, err := a.openEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.close()

	res, err := eng.svc.ScanCatalog(ctx)
	if err != nil && !errors.Is(err, catalog.ErrUnavailable) {
		return err
	}
	a.printScan(res)
	return nil
}

func (a *App) printScan(res catalog.Result) {
	fmt.Fprintln(a.Out, heading("Catalog scan"))
	if !res.Available {
		fmt.Fprintln(a.Out, styleMuted.Render("no data: catalog unavailable, findings unknown"))
		return
	}
	scanned := fmt.Sprintf("%d products scanned", res.Scanned)
	if res.Truncated {
		scanned = fmt.Sprintf("%d of %d products scanned (limit reached)", res.Scanned, res.Total)
	}
	fmt.Fprintln(a.Out, scanned)
	if len(res.Findings) == 0 {
		fmt.Fprintln(a.Out, styleOK.Render("no findings"))
		return
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tTitle\tDetail\tSeverity")
	for _, f := range res.Findings {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n", f.ID, f.Title, sanitizeInline(f.Detail), severityCell(f.Severity))
	}
	writer.Flush()
}
