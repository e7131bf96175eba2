package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolOptions mirrors config.Store: the pool bounds and the startup-ping
// timeout this module's configuration surface (§6) defines, so a caller
// can pass its loaded config straight through without restating it.
type PoolOptions struct {
	MaxConns      int32
	MinConns      int32
	HealthTimeout time.Duration
}

// NewPool opens a pgxpool.Pool against databaseURL sized per opts, then
// confirms reachability with a bounded ping (opts.HealthTimeout) rather
// than trusting the caller's ctx to carry its own deadline — the same
// startup-ping-before-serving posture Ping (health.go) applies on every
// later health check.
func NewPool(ctx context.Context, databaseURL string, opts PoolOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	cfg.MaxConns = opts.MaxConns
	cfg.MinConns = opts.MinConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, opts.HealthTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}
