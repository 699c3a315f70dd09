package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Well-known keys for the engine's persisted state.
const (
	KeyGuardrails     = "opswatch/guardrails"
	KeyPriceSnapshot  = "opswatch/price_snapshot"
	KeyDecisionLog    = "opswatch/decision_log"
	KeyHealthSnapshot = "opswatch/health_snapshot"
)

// Document persists a single JSON-encoded value of type T under a fixed key.
type Document[T any] struct {
	kv  KV
	key string
}

// NewDocument binds a key on kv.
func NewDocument[T any](kv KV, key string) *Document[T] {
	return &Document[T]{kv: kv, key: key}
}

// Key reports the storage key.
func (d *Document[T]) Key() string {
	return d.key
}

// Load decodes the stored value. found is false when nothing is stored.
func (d *Document[T]) Load(ctx context.Context) (value T, found bool, err error) {
	if d == nil || d.kv == nil {
		return value, false, ErrNotConfigured
	}
	raw, err := d.kv.Get(ctx, d.key)
	if errors.Is(err, ErrNotFound) {
		return value, false, nil
	}
	if err != nil {
		return value, false, fmt.Errorf("load %s: %w", d.key, err)
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return value, false, fmt.Errorf("decode %s: %w", d.key, err)
	}
	return value, true, nil
}

// LoadRaw returns the undecoded bytes so callers can validate field by field.
func (d *Document[T]) LoadRaw(ctx context.Context) ([]byte, bool, error) {
	if d == nil || d.kv == nil {
		return nil, false, ErrNotConfigured
	}
	raw, err := d.kv.Get(ctx, d.key)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load %s: %w", d.key, err)
	}
	return raw, true, nil
}

// Save encodes and writes value, replacing any previous one.
func (d *Document[T]) Save(ctx context.Context, value T) error {
	if d == nil || d.kv == nil {
		return ErrNotConfigured
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", d.key, err)
	}
	if err := d.kv.Put(ctx, d.key, raw); err != nil {
		return fmt.Errorf("save %s: %w", d.key, err)
	}
	return nil
}

// Clear removes the stored value.
func (d *Document[T]) Clear(ctx context.Context) error {
	if d == nil || d.kv == nil {
		return ErrNotConfigured
	}
	if err := d.kv.Delete(ctx, d.key); err != nil {
		return fmt.Errorf("clear %s: %w", d.key, err)
	}
	return nil
}
