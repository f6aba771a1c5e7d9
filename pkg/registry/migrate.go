package registry

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql

	"github.com/keymint/keymint/internal/logger"
	"github.com/keymint/keymint/pkg/registry/migrations"
)

// RunMigrations executes the registry schema migrations against PostgreSQL.
//
// golang-migrate takes a PostgreSQL advisory lock while applying, so
// concurrent instances sharing a database cannot race each other.
func RunMigrations(ctx context.Context, cfg *PostgresConfig) error {
	logger.Info("Running registry migrations", logger.KeyDatabase, cfg.Database)

	// golang-migrate drives a database/sql connection
	db, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	m, err := newMigrator(db, cfg.Database)
	if err != nil {
		return err
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration failed: %w", err)
	}

	if err == migrate.ErrNoChange {
		logger.Debug("Registry schema is up to date")
	} else {
		logger.Info("Registry migrations applied")
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	if err != migrate.ErrNilVersion {
		logger.Debug("Registry schema version", "version", version, "dirty", dirty)
		if dirty {
			logger.Warn("Registry schema is in dirty state, manual intervention may be required")
		}
	}

	return nil
}

// MigrationVersion returns the current registry schema version and whether
// the schema is dirty.
func MigrationVersion(cfg *PostgresConfig) (uint, bool, error) {
	db, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		return 0, false, fmt.Errorf("failed to open database connection: %w", err)
	}
	defer db.Close()

	m, err := newMigrator(db, cfg.Database)
	if err != nil {
		return 0, false, err
	}

	version, dirty, err := m.Version()
	if err != nil {
		if err == migrate.ErrNilVersion {
			return 0, false, nil
		}
		return 0, false, err
	}

	return version, dirty, nil
}

// newMigrator builds a migrate instance from the embedded migration files.
func newMigrator(db *sql.DB, databaseName string) (*migrate.Migrate, error) {
	driver, err := migratepg.WithInstance(db, &migratepg.Config{
		MigrationsTable: "schema_migrations",
		DatabaseName:    databaseName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to create source driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	return m, nil
}
