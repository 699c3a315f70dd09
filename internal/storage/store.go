package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"opswatch/internal/config"
)

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}

// Open returns the KV configured by cfg together with its closer.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (KV, func(), error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		return NewMemoryKV(), func() {}, nil
	case config.BackendPostgres:
		pool, err := NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		kv := NewPostgresKV(pool)
		if err := kv.EnsureSchema(ctx); err != nil {
			kv.Close()
			return nil, nil, err
		}
		return kv, kv.Close, nil
	case config.BackendBadger:
		kv, err := OpenBadger(BadgerOptions{Path: cfg.Storage.Path, Logger: &logger})
		if err != nil {
			return nil, nil, err
		}
		closer := func() {
			if err := kv.Close(); err != nil {
				logger.Warn().Err(err).Msg("close badger store")
			}
		}
		return kv, closer, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage backend %q", cfg.Storage.Backend)
	}
}
