// Package db owns the schema: embedded migrations and the bootstrap
// that applies them.
package db

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5" // pgx v5 driver
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate brings the schema up to the latest embedded migration. It is
// idempotent: golang-migrate tracks applied versions in schema_migrations
// and only missing ones run.
//
// connURL is a postgres:// or postgresql:// URL.
func Migrate(connURL string) error {
	m, err := newMigrator(connURL)
	if err != nil {
		return err
	}
	defer closeMigrator(m)

	if err := ensureClean(m); err != nil {
		return err
	}

	switch err := m.Up(); {
	case err == nil:
	case errors.Is(err, migrate.ErrNoChange):
		slog.Debug("schema already current")
		return nil
	default:
		// m.Up aborts on the first failing migration; report whether it
		// left the schema dirty so the operator knows a force is needed.
		if v, dirty, verr := m.Version(); verr == nil && dirty {
			return fmt.Errorf("apply migrations: %w (schema dirty at version %d, run: migrate force %d)", err, v, v)
		}
		return fmt.Errorf("apply migrations: %w", err)
	}

	if v, dirty, err := m.Version(); err == nil {
		slog.Info("schema migrated", "version", v, "dirty", dirty)
	}
	return nil
}

// newMigrator builds a migrate instance over the embedded migrations.
func newMigrator(connURL string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}

	target, err := migrateURL(connURL)
	if err != nil {
		return nil, err
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, target)
	if err != nil {
		return nil, fmt.Errorf("connect for migrations: %w", err)
	}
	return m, nil
}

// ensureClean refuses to migrate on top of a half-applied migration.
func ensureClean(m *migrate.Migrate) error {
	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("schema dirty at version %d, inspect and run: migrate force %d", version, version)
	}
	return nil
}

func closeMigrator(m *migrate.Migrate) {
	srcErr, dbErr := m.Close()
	if srcErr != nil {
		slog.Warn("close migration source", "error", srcErr)
	}
	if dbErr != nil {
		slog.Warn("close migration connection", "error", dbErr)
	}
}

// migrateURL rewrites a postgres:// or postgresql:// URL onto the pgx5://
// scheme golang-migrate's pgx v5 driver registers.
func migrateURL(connURL string) (string, error) {
	u, err := url.Parse(connURL)
	if err != nil {
		return "", fmt.Errorf("parse database URL: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
		u.Scheme = "pgx5"
		return u.String(), nil
	default:
		return "", fmt.Errorf("unsupported database URL scheme %q (want postgres or postgresql)", u.Scheme)
	}
}
