package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	createStateTableSQL = `CREATE TABLE IF NOT EXISTS ops_state (
        key        TEXT PRIMARY KEY,
        value      JSONB NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );`

	getStateSQL = `SELECT value FROM ops_state WHERE key = $1;`

	upsertStateSQL = `INSERT INTO ops_state (key, value, updated_at)
    VALUES ($1, $2, now())
    ON CONFLICT (key) DO UPDATE
    SET value      = EXCLUDED.value,
        updated_at = EXCLUDED.updated_at;`

	deleteStateSQL = `DELETE FROM ops_state WHERE key = $1;`
)

// PostgresKV keeps engine state in a single ops_state table.
type PostgresKV struct {
	pool *pgxpool.Pool
}

// NewPostgresKV wires a pgx pool into a KV store.
func NewPostgresKV(pool *pgxpool.Pool) *PostgresKV {
	return &PostgresKV{pool: pool}
}

// EnsureSchema creates the state table when missing.
func (s *PostgresKV) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, createStateTableSQL); err != nil {
		return fmt.Errorf("create ops_state table: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *PostgresKV) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *PostgresKV) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// Get reads the JSON document stored under key.
func (s *PostgresKV) Get(ctx context.Context, key string) ([]byte, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	var value []byte
	if scanErr := pool.QueryRow(ctx, getStateSQL, key).Scan(&value); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get state %s: %w", key, scanErr)
	}
	return value, nil
}

// Put upserts the document under key.
func (s *PostgresKV) Put(ctx context.Context, key string, value []byte) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, upsertStateSQL, key, value); execErr != nil {
		return fmt.Errorf("upsert state %s: %w", key, execErr)
	}
	return nil
}

// Delete removes key.
func (s *PostgresKV) Delete(ctx context.Context, key string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteStateSQL, key); execErr != nil {
		return fmt.Errorf("delete state %s: %w", key, execErr)
	}
	return nil
}

var _ KV = (*PostgresKV)(nil)
