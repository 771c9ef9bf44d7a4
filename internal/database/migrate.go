package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	mysqlmigrate "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrator applies the embedded schema migrations to the primary store.
type Migrator struct {
	db *sql.DB
}

// NewMigrator returns a Migrator bound to db.
func NewMigrator(db *sql.DB) *Migrator { return &Migrator{db: db} }

// Up pings the database and applies every pending migration.  Running it
// against an up-to-date schema is a no-op.
func (m *Migrator) Up(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := m.db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}

	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("migration conn: %w", err)
	}
	drv, err := mysqlmigrate.WithConnection(ctx, conn, &mysqlmigrate.Config{})
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("migration driver: %w", err)
	}
	mg, err := migrate.NewWithInstance("iofs", src, "mysql", drv)
	if err != nil {
		_ = drv.Close()
		return fmt.Errorf("migration init: %w", err)
	}
	// Close returns the dedicated connection; the pool stays open.
	defer mg.Close()

	if err := mg.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}
