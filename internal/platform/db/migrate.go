package db

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies every pending up migration. It reports whether anything changed.
func Migrate(dsn string) (bool, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return false, fmt.Errorf("platform/db: migrations source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(dsn))
	if err != nil {
		return false, fmt.Errorf("platform/db: migrate instance: %w", err)
	}
	upErr := m.Up()
	sourceErr, dbErr := m.Close()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return false, fmt.Errorf("platform/db: migrate up: %w", upErr)
	}
	if sourceErr != nil {
		return false, fmt.Errorf("platform/db: migrate source close: %w", sourceErr)
	}
	if dbErr != nil {
		return false, fmt.Errorf("platform/db: migrate db close: %w", dbErr)
	}
	return upErr == nil, nil
}

// migrateURL swaps the libpq scheme for the one the pgx/v5 driver registers.
func migrateURL(dsn string) string {
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, scheme) {
			return "pgx5://" + strings.TrimPrefix(dsn, scheme)
		}
	}
	return dsn
}
