// Package database opens the SQL pool behind the repositories: Postgres
// through pgx in production, pure-Go SQLite for local runs and tests.
package database

import (
	"context"
	"database/sql"
	"strings"

	"billing-lifecycle/config"
)

// Open connects to the engine named by cfg.DBDriver.
func Open(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	switch strings.ToLower(cfg.DBDriver) {
	case "sqlite", "sqlite3":
		return OpenSQLite(cfg.DBPath, DefaultSQLiteConfig())
	default:
		return OpenPostgres(ctx, cfg)
	}
}
