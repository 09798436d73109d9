// Package db provides the PostgreSQL pool and schema migrations.
package db

import (
	"context"
	"time"

	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/config"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPool opens a pgx pool sized from cfg and pings it once.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.GetDatabaseURL())
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConfig, "parse DATABASE_URL", err)
	}

	poolConfig.MaxConns = cfg.GetDatabaseMaxConns()
	poolConfig.MinConns = cfg.GetDatabaseMinConns()
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "leadflow"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, apperr.Transport("open pool", err).WithOp("db.NewPool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, apperr.Transport("ping", err).WithOp("db.NewPool")
	}

	return pool, nil
}
