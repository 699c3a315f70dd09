package app

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"
)

// ErrNotConfirmed is returned by destructive commands run without confirmation.
var ErrNotConfirmed = errors.New("refusing to clear the decision log without --yes")

// LogListOptions configure the log list command.
type LogListOptions struct {
	Limit      int
	Unreviewed bool
}

// LogList prints decision log entries, newest first.
func (a *App) LogList(ctx context.Context, opts LogListOptions) error {
	eng, err := a.openEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.close()

	entries := eng.svc.Log.List()
	if len(entries) == 0 {
		fmt.Fprintln(a.Out, "decision log is empty")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tID\tType\tSource\tReviewed\tTitle\tSeverity")
	shown := 0
	for _, e := range entries {
		if opts.Unreviewed && e.Acknowledged {
			continue
		}
		if opts.Limit > 0 && shown >= opts.Limit {
			break
		}
		reviewed := "no"
		if e.Acknowledged {
			reviewed = "yes"
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.CreatedAt.UTC().Format(time.RFC3339), e.ID, e.Type, e.Source, reviewed,
			sanitizeInline(e.Title), severityCell(e.Severity))
		shown++
	}
	writer.Flush()
	return nil
}

// LogAck marks the entry reviewed.
func (a *App) LogAck(ctx context.Context, id string) error {
	eng, err := a.openEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.close()

	if !eng.svc.Log.MarkReviewed(ctx, id) {
		return fmt.Errorf("no decision with id %s", id)
	}
	fmt.Fprintf(a.Out, "marked %s reviewed\n", id)
	return nil
}

// LogClear removes every entry. confirmed must be true.
func (a *App) LogClear(ctx context.Context, confirmed bool) error {
	if !confirmed {
		return ErrNotConfirmed
	}
	eng, err := a.openEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.close()

	n := len(eng.svc.Log.List())
	eng.svc.Log.Clear(ctx)
	a.Logger.Warn().Int("entries", n).Msg("decision log cleared")
	fmt.Fprintf(a.Out, "cleared %d entries\n", n)
	return nil
}
