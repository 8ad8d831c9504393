package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// ErrUnavailable marks every failure to read or write the cache. Callers
// match it with errors.Is; the wrapped cause carries the detail.
var ErrUnavailable = errors.New("store unavailable")

// DB wraps a SQLite database connection for the per-session chatd.db.
//
// All query methods wait for Init to complete at least once before touching
// the schema. The gate is one-shot: it never closes again after the first
// successful Init.
type DB struct {
	*sql.DB

	logger    *zap.Logger
	ready     chan struct{}
	readyOnce sync.Once
}

// Option configures Open.
type Option func(*DB)

// WithLogger sets the logger used for schema migrations.
func WithLogger(l *zap.Logger) Option {
	return func(db *DB) { db.logger = l }
}

// Open creates a new SQLite connection with WAL mode and recommended pragmas.
func Open(path string, opts ...Option) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Verify connection.
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	out := &DB{DB: db, logger: zap.NewNop(), ready: make(chan struct{})}
	for _, opt := range opts {
		opt(out)
	}
	return out, nil
}

// Init applies pending migrations and opens the readiness gate. It is safe
// to call more than once.
func (db *DB) Init(ctx context.Context) (*MigrateResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("init", err)
	}
	result, err := db.Migrate(ctx)
	if err != nil {
		return nil, unavailable("init", err)
	}
	db.readyOnce.Do(func() { close(db.ready) })
	return result, nil
}

// Ready returns a channel closed once Init has succeeded.
func (db *DB) Ready() <-chan struct{} {
	return db.ready
}

// wait blocks until Init has completed or ctx is done.
func (db *DB) wait(ctx context.Context) error {
	select {
	case <-db.ready:
		return nil
	default:
	}
	select {
	case <-db.ready:
		return nil
	case <-ctx.Done():
		return unavailable("wait for init", ctx.Err())
	}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
