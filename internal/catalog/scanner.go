package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"opswatch/internal/decisionlog"
	"opswatch/internal/storage"
	"opswatch/internal/upstream"
)

// SummaryThreshold is the high-severity count at which one summary note
// replaces individual log entries.
const SummaryThreshold = 5

// TitleSummary is the decision log title of the summary note.
const TitleSummary = "Catalog scan found many high-severity issues"

// ErrUnavailable is returned by Run when the catalog could not be fetched.
var ErrUnavailable = errors.New("catalog unavailable")

// ProductSource lists the catalog.
type ProductSource interface {
	Products(ctx context.Context) ([]upstream.Product, error)
}

// Observer receives every completed scan.
type Observer interface {
	ObserveScan(result Result)
}

// Options tune a Scanner.
type Options struct {
	// Limit caps how many products one scan inspects. Zero scans all of them.
	Limit    int
	Now      func() time.Time
	Observer Observer
}

// Result is one scan attempt. Available is false when the catalog could not
// be fetched; the other fields are then empty.
type Result struct {
	At        time.Time `json:"at"`
	Available bool      `json:"available"`
	Scanned   int       `json:"scanned"`
	Total     int       `json:"total"`
	Truncated bool      `json:"truncated"`
	Findings  []Finding `json:"findings"`
}

// Scanner fetches the catalog, scans it and keeps the price snapshot.
type Scanner struct {
	src    ProductSource
	log    decisionlog.Recorder
	doc    *storage.Document[PriceSnapshot]
	opts   Options
	logger zerolog.Logger

	runMu   sync.Mutex
	mu      sync.RWMutex
	current *Result
}

// NewScanner wires a Scanner. log may be nil.
func NewScanner(src ProductSource, log decisionlog.Recorder, kv storage.KV, opts Options, logger zerolog.Logger) *Scanner {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scanner{
		src:    src,
		log:    log,
		doc:    storage.NewDocument[PriceSnapshot](kv, storage.KeyPriceSnapshot),
		opts:   opts,
		logger: logger.With().Str("component", "catalog").Logger(),
	}
}

// Current returns the latest scan attempt, or nil before the first one.
func (s *Scanner) Current() *Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Run performs one scan. A failed catalog fetch replaces the current result
// with an unavailable one, leaves the snapshot untouched and returns
// ErrUnavailable.
func (s *Scanner) Run(ctx context.Context) (Result, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	products, err := s.src.Products(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("catalog unavailable; scan skipped")
		result := Result{At: s.opts.Now(), Findings: []Finding{}}
		s.publish(result)
		return result, ErrUnavailable
	}

	total := len(products)
	if s.opts.Limit > 0 && len(products) > s.opts.Limit {
		products = products[:s.opts.Limit]
	}

	var prev *PriceSnapshot
	snap, found, err := s.doc.Load(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("price snapshot unreadable; diffing skipped")
	} else if found {
		prev = &snap
	}

	now := s.opts.Now()
	findings, next := Scan(now, products, prev)
	if err := s.doc.Save(ctx, next); err != nil {
		s.logger.Warn().Err(err).Msg("persist price snapshot failed")
	}

	result := Result{
		At:        now,
		Available: true,
		Scanned:   len(products),
		Total:     total,
		Truncated: len(products) < total,
		Findings:  findings,
	}
	s.record(ctx, findings)

	s.logger.Info().Int("scanned", result.Scanned).Int("findings", len(findings)).
		Int("high", CountSeverity(findings, decisionlog.SeverityHigh)).Bool("truncated", result.Truncated).
		Msg("catalog scan complete")
	s.publish(result)
	return result, nil
}

func (s *Scanner) publish(result Result) {
	s.mu.Lock()
	s.current = &result
	s.mu.Unlock()
	if s.opts.Observer != nil {
		s.opts.Observer.ObserveScan(result)
	}
}

// record pushes high-severity findings to the log, collapsing them into one
// note once there are SummaryThreshold or more.
func (s *Scanner) record(ctx context.Context, findings []Finding) {
	if s.log == nil {
		return
	}
	high := CountSeverity(findings, decisionlog.SeverityHigh)
	if high >= SummaryThreshold {
		s.log.Add(ctx, decisionlog.Draft{
			Type:     decisionlog.TypeNote,
			Severity: decisionlog.SeverityHigh,
			Title:    TitleSummary,
			Detail:   fmt.Sprintf("%d high-severity findings in %d total; open the catalog findings for details", high, len(findings)),
			Source:   decisionlog.SourceOps,
		})
		return
	}
	for _, f := range findings {
		if f.Severity != decisionlog.SeverityHigh {
			continue
		}
		title := f.Title
		if f.ProductID != "" {
			title = fmt.Sprintf("%s (%s)", f.Title, f.ProductID)
		}
		s.log.Add(ctx, decisionlog.Draft{
			Type:     decisionlog.TypeAlert,
			Severity: f.Severity,
			Title:    title,
			Detail:   f.Detail,
			Source:   decisionlog.SourceOps,
		})
	}
}
