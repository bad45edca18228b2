package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolConfig tunes the pgx pool. Zero values keep pgx defaults.
type PoolConfig struct {
	MaxConns        int32
	MaxConnLifetime time.Duration
	// ApplicationName shows up in pg_stat_activity; defaults to ledgercore.
	ApplicationName string
}

// New opens a pool and pings it so a bad DSN fails at startup.
func New(ctx context.Context, dsn string, opts PoolConfig) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("platform/db: parse config: %w", err)
	}
	if opts.MaxConns > 0 {
		config.MaxConns = opts.MaxConns
	}
	if opts.MaxConnLifetime > 0 {
		config.MaxConnLifetime = opts.MaxConnLifetime
	}
	name := opts.ApplicationName
	if name == "" {
		name = "ledgercore"
	}
	config.ConnConfig.RuntimeParams["application_name"] = name

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("platform/db: new pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("platform/db: ping: %w", err)
	}

	return pool, nil
}
