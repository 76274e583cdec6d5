package database

import (
	"embed"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	// registers the mysql:// database driver
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	pkgerrors "github.com/pkg/errors"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrator is the part of *migrate.Migrate that Migrator drives.
type migrator interface {
	Up() error
	Down() error
	Version() (version uint, dirty bool, err error)
	Close() (source error, database error)
}

// Migrator applies the embedded schema migrations with golang-migrate.
type Migrator struct {
	m migrator
}

// NewMigrator connects to the database described by cfg. Close releases the
// connection.
func NewMigrator(cfg Config) (*Migrator, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, pkgerrors.Wrap(err, "open migration source")
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, "mysql://"+cfg.MigrationDSN())
	if err != nil {
		_ = src.Close()
		return nil, pkgerrors.Wrap(err, "initialize migrator")
	}
	return &Migrator{m: m}, nil
}

// Up applies every pending migration. An up-to-date schema is not an error.
func (m *Migrator) Up() error {
	if err := m.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return pkgerrors.Wrap(err, "migrate up")
	}
	return nil
}

// Down reverts every applied migration, dropping all auth tables.
func (m *Migrator) Down() error {
	if err := m.m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return pkgerrors.Wrap(err, "migrate down")
	}
	return nil
}

// Version reports the applied schema version, 0 when nothing is applied. A
// dirty version means a migration failed partway and needs manual repair.
func (m *Migrator) Version() (uint, bool, error) {
	v, dirty, err := m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, pkgerrors.Wrap(err, "read schema version")
	}
	return v, dirty, nil
}

func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	if dbErr != nil {
		return pkgerrors.Wrap(dbErr, "close migration database")
	}
	if srcErr != nil {
		return pkgerrors.Wrap(srcErr, "close migration source")
	}
	return nil
}
