package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigrationDirection selects which way Migrate moves the schema.
type MigrationDirection int

const (
	MigrateUp MigrationDirection = iota
	MigrateDown
)

func (d MigrationDirection) String() string {
	if d == MigrateDown {
		return "down"
	}
	return "up"
}

// Migrate applies the embedded schema migrations. Down rolls back a single step. logger may be nil.
func Migrate(dsn string, direction MigrationDirection, logger migrate.Logger) (uint, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return 0, fmt.Errorf("database: parse dsn: %w", err)
	}
	cfg.MultiStatements = true
	cfg.ParseTime = true

	db, err := sql.Open(driverName, cfg.FormatDSN())
	if err != nil {
		return 0, fmt.Errorf("database: open migration connection: %w", err)
	}
	defer db.Close()

	driver, err := migratemysql.WithInstance(db, &migratemysql.Config{})
	if err != nil {
		return 0, fmt.Errorf("database: migration driver: %w", err)
	}
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return 0, fmt.Errorf("database: migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, cfg.DBName, driver)
	if err != nil {
		return 0, fmt.Errorf("database: migrator: %w", err)
	}
	if logger != nil {
		m.Log = logger
	}

	switch direction {
	case MigrateDown:
		err = m.Steps(-1)
	default:
		err = m.Up()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("database: migrate: %w", err)
	}

	version, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, fmt.Errorf("database: migration version: %w", err)
	}
	return version, nil
}
