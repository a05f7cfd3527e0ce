/**
 * @description
 * This file applies the embedded goose migrations against the configured
 * database at startup, using pgx's database/sql adapter.
 *
 * @dependencies
 * - github.com/pressly/goose/v3: Migration runner.
 * - github.com/jackc/pgx/v5/stdlib: database/sql driver for goose.
 */

package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/crismendesconnexions/boleto-service/internal/store/migrations"
)

// RunMigrations opens a short-lived database/sql connection and applies the
// embedded migrations in order.
func RunMigrations(ctx context.Context, databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}
