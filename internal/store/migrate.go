package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/matheus3301/chatd/internal/store/migrations"
	"go.uber.org/zap"
)

// ErrDirtySchema means a previous migration stopped halfway. The cache file
// has to be removed or repaired by hand.
var ErrDirtySchema = errors.New("schema is dirty")

// MigrateResult describes the schema after Migrate.
type MigrateResult struct {
	Version uint
	Dirty   bool
	Changed bool
}

// migrateLog routes golang-migrate output through zap at debug level.
type migrateLog struct{ l *zap.Logger }

func (m migrateLog) Printf(format string, v ...any) {
	m.l.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (m migrateLog) Verbose() bool { return m.l.Core().Enabled(zap.DebugLevel) }

// Migrate brings the schema up to the newest embedded version. Cancelling
// ctx asks the runner to stop after the migration in flight.
func (db *DB) Migrate(ctx context.Context) (*MigrateResult, error) {
	m, err := db.migrator()
	if err != nil {
		return nil, err
	}

	if v, dirty, err := m.Version(); err == nil && dirty {
		return &MigrateResult{Version: v, Dirty: true}, fmt.Errorf("%w at version %d", ErrDirtySchema, v)
	}

	stop := context.AfterFunc(ctx, func() {
		select {
		case m.GracefulStop <- true:
		default:
		}
	})
	defer stop()

	changed := true
	if err := m.Up(); errors.Is(err, migrate.ErrNoChange) {
		changed = false
	} else if err != nil {
		return nil, fmt.Errorf("migration up: %w", err)
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
	case err != nil:
		return nil, fmt.Errorf("migration version: %w", err)
	}
	if changed {
		db.logger.Info("schema migrated", zap.Uint("version", version))
	}
	return &MigrateResult{Version: version, Dirty: dirty, Changed: changed}, nil
}

func (db *DB) migrator() (*migrate.Migrate, error) {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}
	drv, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", drv)
	if err != nil {
		return nil, fmt.Errorf("migration instance: %w", err)
	}
	m.Log = migrateLog{l: db.logger}
	return m, nil
}
