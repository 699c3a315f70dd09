package app

import (
	"context"
	"fmt"
	"text/tabwriter"

	"opswatch/internal/settings"
)

// ConfigShow prints the guardrails in effect next to their defaults.
func (a *App) ConfigShow(ctx context.Context) error {
	eng, err := a.openEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.close()

	a.printGuardrails(eng.svc.Settings.Get(), eng.svc.Settings.Overridden())
	return nil
}

// ConfigSet validates patch against the current limits and persists it.
func (a *App) ConfigSet(ctx context.Context, patch settings.Patch) error {
	if patch.Empty() {
		return fmt.Errorf("nothing to set; pass at least one guardrail flag")
	}
	eng, err := a.openEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.close()

	next, err := eng.svc.Settings.Update(ctx, patch)
	if err != nil {
		return fmt.Errorf("invalid guardrails: %s", settings.Describe(err))
	}
	a.printGuardrails(next, true)
	return nil
}

// ConfigReset restores the default guardrails.
func (a *App) ConfigReset(ctx context.Context) error {
	eng, err := a.openEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.close()

	eng.svc.Settings.Reset(ctx)
	a.printGuardrails(eng.svc.Settings.Get(), false)
	return nil
}

func (a *App) printGuardrails(g settings.Guardrails, overridden bool) {
	source := "defaults"
	if overridden {
		source = "operator override"
	}
	fmt.Fprintf(a.Out, "%s (%s)\n", heading("Guardrails"), source)

	d := settings.Defaults()
	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Name\tValue\tDefault")
	fmt.Fprintf(writer, "MAX_ASSIGN_DISTANCE_KM\t%g\t%g\n", g.MaxAssignDistanceKM, d.MaxAssignDistanceKM)
	fmt.Fprintf(writer, "MAX_READY_WITHOUT_DRIVER\t%g\t%g\n", g.MaxReadyWithoutDriver, d.MaxReadyWithoutDriver)
	fmt.Fprintf(writer, "MAX_CANCEL_RATE\t%g\t%g\n", g.MaxCancelRate, d.MaxCancelRate)
	fmt.Fprintf(writer, "MAX_ORDERS_LAST_HOUR\t%g\t%g\n", g.MaxOrdersLastHour, d.MaxOrdersLastHour)
	writer.Flush()
}
