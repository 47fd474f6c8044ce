// Command migrate applies the SQL files in the migrations directory in
// lexical order, recording each applied file in schema_migrations.
package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hemidirasim/sahibparfum-sub001/internal/config"
	"github.com/hemidirasim/sahibparfum-sub001/internal/logging"
)

const createMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version    TEXT PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

func main() {
	dir := flag.String("dir", "migrations", "directory containing *.sql migrations")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.NewLoggerV2("migrate").Fatal("Failed to load configuration", logging.Fields{"error": err.Error()})
	}
	logging.Configure(cfg.LogLevel, cfg.AppEnv != config.EnvProduction)
	logger := logging.NewLoggerV2("migrate")
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Database.URL())
	if err != nil {
		logger.Fatal("Failed to open database pool", logging.Fields{"error": err.Error()})
	}
	defer pool.Close()

	applied, err := run(ctx, pool, *dir, logger)
	if err != nil {
		logger.Fatal("Migration failed", logging.Fields{"error": err.Error()})
	}
	logger.Info("Migrations complete", logging.Fields{"applied": applied})
}

func run(ctx context.Context, pool *pgxpool.Pool, dir string, logger *logging.LoggerV2) (int, error) {
	if _, err := pool.Exec(ctx, createMigrationsTable); err != nil {
		return 0, err
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return 0, err
	}
	sort.Strings(files)

	applied := 0
	for _, file := range files {
		version := filepath.Base(file)

		var exists bool
		if err := pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, version,
		).Scan(&exists); err != nil {
			return applied, err
		}
		if exists {
			logger.Debug("Migration already applied", logging.Fields{"version": version})
			continue
		}

		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return applied, err
		}

		err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(sqlBytes)); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version)
			return err
		})
		if err != nil {
			return applied, err
		}

		logger.Info("Applied migration", logging.Fields{"version": version})
		applied++
	}
	return applied, nil
}
