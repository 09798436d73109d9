package db

import (
	"context"
	"embed"
	"io/fs"

	"leadflow_backend/platform/config"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunMigrations applies all pending embedded migrations.
func RunMigrations(ctx context.Context, cfg config.MigrationConfig, pool *pgxpool.Pool) error {
	if !cfg.GetMigrationsEnabled() {
		return nil
	}

	migrations, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return err
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, migrations)
	if err != nil {
		return err
	}

	_, err = provider.Up(ctx)
	return err
}
