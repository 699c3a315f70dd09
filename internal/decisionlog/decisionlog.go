// Package decisionlog is the append-only sink for findings worth a human's attention.
package decisionlog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"opswatch/internal/storage"
)

// DedupWindow suppresses repeats of the same title and severity.
const DedupWindow = 10 * time.Minute

// Type classifies an entry.
type Type string

const (
	TypeAlert Type = "ALERT"
	TypeNote  Type = "NOTE"
)

// Severity ranks an entry.
type Severity string

const (
	SeverityLow  Severity = "low"
	SeverityMed  Severity = "med"
	SeverityHigh Severity = "high"
)

// Rank orders severities low < med < high. Unknown values rank below low.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMed:
		return 2
	case SeverityHigh:
		return 3
	default:
		return 0
	}
}

// ParseSeverity maps a config string to a Severity, defaulting to high.
func ParseSeverity(v string) Severity {
	s := Severity(v)
	if s.Rank() == 0 {
		return SeverityHigh
	}
	return s
}

// Source names the component that produced an entry.
type Source string

const (
	SourceOps        Source = "ops"
	SourceGuardrails Source = "guardrails"
)

// Entry is one persisted decision. Only Acknowledged ever changes after creation.
type Entry struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Type         Type      `json:"type"`
	Severity     Severity  `json:"severity"`
	Title        string    `json:"title"`
	Detail       string    `json:"detail"`
	Source       Source    `json:"source"`
	Acknowledged bool      `json:"acknowledged"`
}

// Draft is what producers submit; the log assigns ID and CreatedAt.
type Draft struct {
	Type     Type
	Severity Severity
	Title    string
	Detail   string
	Source   Source
}

// Listener observes entries that passed deduplication.
type Listener func(Entry)

// Options tune the log.
type Options struct {
	// MaxEntries trims the oldest entries beyond this count. Zero keeps everything.
	MaxEntries int
	Now        func() time.Time
	Listeners  []Listener
}

// Log holds the entries in memory and writes through to storage after each mutation.
type Log struct {
	doc    *storage.Document[[]Entry]
	logger zerolog.Logger
	opts   Options

	mu      sync.Mutex
	entries []Entry
}

// New loads the persisted entries from kv.
func New(ctx context.Context, kv storage.KV, opts Options, logger zerolog.Logger) *Log {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	l := &Log{
		doc:    storage.NewDocument[[]Entry](kv, storage.KeyDecisionLog),
		logger: logger.With().Str("component", "decision_log").Logger(),
		opts:   opts,
	}
	entries, _, err := l.doc.Load(ctx)
	if err != nil {
		l.logger.Warn().Err(err).Msg("decision log unavailable; starting empty")
	}
	l.entries = entries
	return l
}

// OnAccept registers an additional listener.
func (l *Log) OnAccept(fn Listener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.opts.Listeners = append(l.opts.Listeners, fn)
}

// Add appends d unless an entry with the same title and severity was created
// within DedupWindow. It reports the stored entry and whether it was accepted.
func (l *Log) Add(ctx context.Context, d Draft) (Entry, bool) {
	l.mu.Lock()
	now := l.opts.Now()
	for i := len(l.entries) - 1; i >= 0; i-- {
		e := l.entries[i]
		if e.Title == d.Title && e.Severity == d.Severity && now.Sub(e.CreatedAt) < DedupWindow {
			l.mu.Unlock()
			l.logger.Debug().Str("title", d.Title).Str("severity", string(d.Severity)).Msg("duplicate suppressed")
			return e, false
		}
	}

	entry := Entry{
		ID:        uuid.NewString(),
		CreatedAt: now,
		Type:      d.Type,
		Severity:  d.Severity,
		Title:     d.Title,
		Detail:    d.Detail,
		Source:    d.Source,
	}
	l.entries = append(l.entries, entry)
	if max := l.opts.MaxEntries; max > 0 && len(l.entries) > max {
		l.entries = append([]Entry(nil), l.entries[len(l.entries)-max:]...)
	}
	l.persistLocked(ctx)
	listeners := append([]Listener(nil), l.opts.Listeners...)
	l.mu.Unlock()

	l.logger.Info().Str("id", entry.ID).Str("title", entry.Title).
		Str("severity", string(entry.Severity)).Str("source", string(entry.Source)).
		Msg("decision recorded")
	for _, fn := range listeners {
		fn(entry)
	}
	return entry, true
}

// MarkReviewed acknowledges the entry with id. Unknown ids are ignored.
func (l *Log) MarkReviewed(ctx context.Context, id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.entries {
		if l.entries[i].ID != id {
			continue
		}
		if !l.entries[i].Acknowledged {
			l.entries[i].Acknowledged = true
			l.persistLocked(ctx)
		}
		return true
	}
	return false
}

// List returns a copy of all entries, newest first.
func (l *Log) List() []Entry {
	l.mu.Lock()
	out := append([]Entry(nil), l.entries...)
	l.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Clear removes every entry. Callers gate this behind explicit confirmation.
func (l *Log) Clear(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	if err := l.doc.Clear(ctx); err != nil {
		l.logger.Warn().Err(err).Msg("clear decision log failed")
	}
}

func (l *Log) persistLocked(ctx context.Context) {
	if err := l.doc.Save(ctx, l.entries); err != nil {
		l.logger.Warn().Err(err).Int("entries", len(l.entries)).Msg("persist decision log failed")
	}
}

// Recorder is the write side producers depend on.
type Recorder interface {
	Add(ctx context.Context, d Draft) (Entry, bool)
}

var _ Recorder = (*Log)(nil)
