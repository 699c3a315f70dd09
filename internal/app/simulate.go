package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"opswatch/internal/decisionlog"
)

// SimulateOptions describe the synthetic entry.
type SimulateOptions struct {
	Severity decisionlog.Severity
	Title    string
	Detail   string
}

// SimulateAlert pushes a synthetic entry through the configured channels
// without touching the decision log.
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is not enabled")
	}

	dispatcher, closeDispatcher := a.newDispatcher()
	defer closeDispatcher()
	if dispatcher == nil {
		return errors.New("no alert channel configured")
	}

	entry := decisionlog.Entry{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Type:      decisionlog.TypeNote,
		Severity:  opts.Severity,
		Title:     opts.Title,
		Detail:    opts.Detail,
		Source:    decisionlog.SourceOps,
	}
	if !dispatcher.Wants(entry) {
		return fmt.Errorf("severity %s is below alerting.min_severity %s", opts.Severity, a.Config.Alerting.MinSeverity)
	}
	if sent := dispatcher.Dispatch(ctx, entry); sent == 0 {
		return errors.New("every alert channel failed")
	}
	fmt.Fprintf(a.Out, "simulated alert %s delivered\n", entry.ID)
	return nil
}
