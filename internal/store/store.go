// Package store persists the voice presence mirror. The in-memory
// registry is authoritative for connected clients; this mirror keeps the
// REST-visible participant list correct for polling clients and across
// server restarts. The two are independently consistent caches of the
// same fact and are deliberately never unified.
package store

import (
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Connect opens the PostgreSQL connection used by the presence mirror.
func Connect(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(dsn), &gorm.Config{})
}

// RunMigrations applies pending migrations from the migrations/ directory.
func RunMigrations(dsn string) error {
	m, err := migrate.New("file://migrations", dsn)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}
