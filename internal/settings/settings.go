// Package settings holds the operator-editable guardrail limits.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"opswatch/internal/storage"
)

// Guardrails are the four numeric limits consumed by the evaluator.
type Guardrails struct {
	MaxAssignDistanceKM   float64 `json:"MAX_ASSIGN_DISTANCE_KM" validate:"finite,gte=0"`
	MaxReadyWithoutDriver float64 `json:"MAX_READY_WITHOUT_DRIVER" validate:"finite,gte=0"`
	MaxCancelRate         float64 `json:"MAX_CANCEL_RATE" validate:"finite,gte=0,lte=1"`
	MaxOrdersLastHour     float64 `json:"MAX_ORDERS_LAST_HOUR" validate:"finite,gte=0"`
}

// Defaults returns the hard-coded limits used when nothing valid is persisted.
func Defaults() Guardrails {
	return Guardrails{
		MaxAssignDistanceKM:   3,
		MaxReadyWithoutDriver: 5,
		MaxCancelRate:         0.08,
		MaxOrdersLastHour:     20,
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	})
	_ = v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	})
	return v
}

// Describe renders the first failed rule of a Validate error for operators.
func Describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	msg := fe.Field() + " must satisfy " + fe.Tag()
	if fe.Param() != "" {
		msg += "=" + fe.Param()
	}
	return msg
}

// Validate reports whether every field is acceptable operator input.
func (g Guardrails) Validate() error {
	return validate.Struct(g)
}

// Store persists Guardrails and notifies subscribers of changes.
type Store struct {
	doc    *storage.Document[map[string]*float64]
	logger zerolog.Logger

	mu      sync.RWMutex
	current Guardrails
	present bool

	subMu  sync.Mutex
	nextID int
	subs   map[int]func(Guardrails)
}

// NewStore loads any persisted override from kv.
func NewStore(ctx context.Context, kv storage.KV, logger zerolog.Logger) *Store {
	s := &Store{
		doc:    storage.NewDocument[map[string]*float64](kv, storage.KeyGuardrails),
		logger: logger.With().Str("component", "settings").Logger(),
		subs:   make(map[int]func(Guardrails)),
	}
	s.load(ctx)
	return s
}

func (s *Store) load(ctx context.Context) {
	raw, found, err := s.doc.LoadRaw(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("guardrail settings unavailable; using defaults")
		return
	}
	if !found {
		return
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		s.logger.Warn().Err(err).Msg("guardrail settings corrupt; using defaults")
		return
	}
	s.current = Guardrails{
		MaxAssignDistanceKM:   field(fields, "MAX_ASSIGN_DISTANCE_KM"),
		MaxReadyWithoutDriver: field(fields, "MAX_READY_WITHOUT_DRIVER"),
		MaxCancelRate:         field(fields, "MAX_CANCEL_RATE"),
		MaxOrdersLastHour:     field(fields, "MAX_ORDERS_LAST_HOUR"),
	}
	s.present = true
}

// field decodes one number; anything unusable becomes NaN and is replaced on read.
func field(fields map[string]json.RawMessage, name string) float64 {
	raw, ok := fields[name]
	if !ok {
		return math.NaN()
	}
	var v *float64
	if err := json.Unmarshal(raw, &v); err != nil || v == nil {
		return math.NaN()
	}
	return *v
}

// Get returns the effective limits, substituting defaults field by field.
func (s *Store) Get() Guardrails {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.present {
		return Defaults()
	}
	return sanitize(s.current)
}

// Overridden reports whether an operator edit is in effect.
func (s *Store) Overridden() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.present
}

func sanitize(g Guardrails) Guardrails {
	d := Defaults()
	return Guardrails{
		MaxAssignDistanceKM:   orDefault(g.MaxAssignDistanceKM, d.MaxAssignDistanceKM),
		MaxReadyWithoutDriver: orDefault(g.MaxReadyWithoutDriver, d.MaxReadyWithoutDriver),
		MaxCancelRate:         orDefault(g.MaxCancelRate, d.MaxCancelRate),
		MaxOrdersLastHour:     orDefault(g.MaxOrdersLastHour, d.MaxOrdersLastHour),
	}
}

func orDefault(v, def float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return def
	}
	return v
}

// Set persists g as given. Callers validate input beforehand.
func (s *Store) Set(ctx context.Context, g Guardrails) {
	s.mu.Lock()
	s.current = g
	s.present = true
	s.mu.Unlock()

	if err := s.doc.Save(ctx, encodable(g)); err != nil {
		s.logger.Warn().Err(err).Msg("persist guardrail settings failed")
	}
	s.publish()
}

// encodable maps non-finite values to null since JSON cannot carry them.
func encodable(g Guardrails) map[string]*float64 {
	num := func(v float64) *float64 {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
		return &v
	}
	return map[string]*float64{
		"MAX_ASSIGN_DISTANCE_KM":   num(g.MaxAssignDistanceKM),
		"MAX_READY_WITHOUT_DRIVER": num(g.MaxReadyWithoutDriver),
		"MAX_CANCEL_RATE":          num(g.MaxCancelRate),
		"MAX_ORDERS_LAST_HOUR":     num(g.MaxOrdersLastHour),
	}
}

// Reset drops the operator override so Get returns defaults.
func (s *Store) Reset(ctx context.Context) {
	s.mu.Lock()
	s.current = Guardrails{}
	s.present = false
	s.mu.Unlock()

	if err := s.doc.Clear(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("clear guardrail settings failed")
	}
	s.publish()
}

// Subscribe registers fn for every change and returns the matching unsubscribe.
func (s *Store) Subscribe(fn func(Guardrails)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) publish() {
	value := s.Get()
	s.subMu.Lock()
	fns := make([]func(Guardrails), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(value)
	}
}

// Patch is a partial edit; nil fields keep their current value.
type Patch struct {
	MaxAssignDistanceKM   *float64 `json:"MAX_ASSIGN_DISTANCE_KM"`
	MaxReadyWithoutDriver *float64 `json:"MAX_READY_WITHOUT_DRIVER"`
	MaxCancelRate         *float64 `json:"MAX_CANCEL_RATE"`
	MaxOrdersLastHour     *float64 `json:"MAX_ORDERS_LAST_HOUR"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.MaxAssignDistanceKM == nil && p.MaxReadyWithoutDriver == nil && p.MaxCancelRate == nil && p.MaxOrdersLastHour == nil
}

// Apply overlays p on g.
func (p Patch) Apply(g Guardrails) Guardrails {
	set := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	set(&g.MaxAssignDistanceKM, p.MaxAssignDistanceKM)
	set(&g.MaxReadyWithoutDriver, p.MaxReadyWithoutDriver)
	set(&g.MaxCancelRate, p.MaxCancelRate)
	set(&g.MaxOrdersLastHour, p.MaxOrdersLastHour)
	return g
}

// Update validates p applied to the current limits and persists the result.
// Invalid input is rejected and the current limits stay in effect.
func (s *Store) Update(ctx context.Context, p Patch) (Guardrails, error) {
	next := p.Apply(s.Get())
	if err := next.Validate(); err != nil {
		return s.Get(), err
	}
	s.Set(ctx, next)
	return next, nil
}
