// migrate applies the embedded schema migrations plus River's queue tables to
// DATABASE_URL. It is idempotent: applied versions are recorded in
// schema_migrations and skipped on the next invocation.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"

	"github.com/Nastaran-Nourbakhsh/nova/migrations"
	"github.com/Nastaran-Nourbakhsh/nova/pkg/database"
)

const (
	exitSuccess = 0
	exitFailure = 1
)

func main() {
	os.Exit(run())
}

func run() int {
	// Load .env for consistency with the main API server (godotenv.Load() there).
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		slog.Error("DATABASE_URL is required")

		return exitFailure
	}

	ctx := context.Background()

	// No pgvector type registration here: the vector extension does not exist
	// until the first migration runs.
	db, err := database.NewPostgresPool(ctx, databaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)

		return exitFailure
	}
	defer db.Close()

	migrator, err := rivermigrate.New(riverpgxv5.New(db), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)

		return exitFailure
	}

	riverRes, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, &rivermigrate.MigrateOpts{})
	if err != nil {
		slog.Error("River migrations failed", "error", err)

		return exitFailure
	}

	slog.Info("River schema up to date", "applied", len(riverRes.Versions))

	applied, err := applySchemaMigrations(ctx, db)
	if err != nil {
		slog.Error("Schema migrations failed", "error", err)

		return exitFailure
	}

	slog.Info("Schema up to date", "applied", applied)

	fmt.Printf("Applied %d schema migration(s).\n", applied)

	return exitSuccess
}

// applySchemaMigrations runs each embedded SQL file that is not yet recorded
// in schema_migrations. Each file executes in one transaction together with
// its ledger insert, so a failed migration leaves no partial state behind.
func applySchemaMigrations(ctx context.Context, db *pgxpool.Pool) (int, error) {
	_, err := db.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    text PRIMARY KEY,
		applied_at timestamptz NOT NULL DEFAULT now()
	)`)
	if err != nil {
		return 0, fmt.Errorf("create schema_migrations: %w", err)
	}

	names, err := migrations.Names()
	if err != nil {
		return 0, fmt.Errorf("list migrations: %w", err)
	}

	applied := 0

	for _, name := range names {
		var exists bool

		err := db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, name,
		).Scan(&exists)
		if err != nil {
			return applied, fmt.Errorf("check migration %s: %w", name, err)
		}

		if exists {
			continue
		}

		sql, err := migrations.FS.ReadFile(name)
		if err != nil {
			return applied, fmt.Errorf("read migration %s: %w", name, err)
		}

		tx, err := db.Begin(ctx)
		if err != nil {
			return applied, fmt.Errorf("begin migration %s: %w", name, err)
		}

		if _, err := tx.Exec(ctx, string(sql)); err != nil {
			_ = tx.Rollback(ctx)

			return applied, fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, name); err != nil {
			_ = tx.Rollback(ctx)

			return applied, fmt.Errorf("record migration %s: %w", name, err)
		}

		if err := tx.Commit(ctx); err != nil {
			return applied, fmt.Errorf("commit migration %s: %w", name, err)
		}

		slog.Info("applied migration", "version", name)

		applied++
	}

	return applied, nil
}
