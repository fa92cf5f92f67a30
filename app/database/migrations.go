package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// MigrationsTable holds the schema version inside every feed cache file.
const MigrationsTable = "feed_cache_migrations"

//go:embed migrations/*.sql
var schemaFS embed.FS

// upgradeSchema brings one feed cache to the latest schema and reports its version. A
// cache left at a dirty version by an interrupted upgrade is refused.
func upgradeSchema(db *sql.DB) (uint, error) {
	source, err := iofs.New(schemaFS, "migrations")
	if err != nil {
		return 0, fmt.Errorf("failed to read embedded schema: %w", err)
	}

	target, err := sqlite.WithInstance(db, &sqlite.Config{MigrationsTable: MigrationsTable})
	if err != nil {
		return 0, fmt.Errorf("failed to attach schema driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", target)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare schema upgrade: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("failed to upgrade schema: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("schema is at dirty version %d", version)
	}
	return version, nil
}
