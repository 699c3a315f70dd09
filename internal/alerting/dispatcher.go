// Package alerting forwards accepted decision log entries to external channels.
package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"opswatch/internal/decisionlog"
)

// Dispatcher fans entries at or above a minimum severity out to notifiers.
type Dispatcher struct {
	notifiers   []Notifier
	minSeverity decisionlog.Severity
	timeout     time.Duration
	logger      zerolog.Logger

	wg sync.WaitGroup
}

// NewDispatcher builds a Dispatcher. A zero timeout means 10s per delivery.
func NewDispatcher(notifiers []Notifier, minSeverity decisionlog.Severity, timeout time.Duration, logger zerolog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		notifiers:   notifiers,
		minSeverity: minSeverity,
		timeout:     timeout,
		logger:      logger.With().Str("component", "alerting").Logger(),
	}
}

// Wants reports whether entry passes the severity filter.
func (d *Dispatcher) Wants(entry decisionlog.Entry) bool {
	return len(d.notifiers) > 0 && entry.Severity.Rank() >= d.minSeverity.Rank()
}

// Handle is a decisionlog.Listener. Delivery happens off the caller's goroutine.
func (d *Dispatcher) Handle(entry decisionlog.Entry) {
	if !d.Wants(entry) {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.Dispatch(context.Background(), entry)
	}()
}

// Dispatch delivers entry to every notifier and returns the number that succeeded.
func (d *Dispatcher) Dispatch(ctx context.Context, entry decisionlog.Entry) int {
	if !d.Wants(entry) {
		return 0
	}
	sent := 0
	for _, n := range d.notifiers {
		nctx, cancel := context.WithTimeout(ctx, d.timeout)
		err := n.Notify(nctx, entry)
		cancel()
		if err != nil {
			d.logger.Error().Err(err).Str("notifier", n.Name()).Str("entry", entry.ID).Msg("alert delivery failed")
			continue
		}
		sent++
	}
	return sent
}

// Wait blocks until in-flight deliveries finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
