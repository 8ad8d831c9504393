package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMigrateLogsFirstRunOnly(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	db, err := Open(filepath.Join(t.TempDir(), "m.db"), WithLogger(zap.New(core)))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	first, err := db.Migrate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !first.Changed || first.Dirty {
		t.Errorf("first run = %+v, want changed and clean", first)
	}
	if n := logs.FilterMessage("schema migrated").Len(); n != 1 {
		t.Errorf("schema migrated logged %d times, want 1", n)
	}

	second, err := db.Migrate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if second.Changed || second.Version != first.Version {
		t.Errorf("second run = %+v, want unchanged at %d", second, first.Version)
	}
	if n := logs.FilterMessage("schema migrated").Len(); n != 1 {
		t.Errorf("schema migrated logged %d times after no-op, want 1", n)
	}
}

func TestMigrateRefusesDirtySchema(t *testing.T) {
	db := testDB(t)
	if _, err := db.ExecContext(context.Background(), "UPDATE schema_migrations SET dirty = 1"); err != nil {
		t.Fatal(err)
	}

	result, err := db.Migrate(context.Background())
	if !errors.Is(err, ErrDirtySchema) {
		t.Fatalf("Migrate() error = %v, want ErrDirtySchema", err)
	}
	if result == nil || !result.Dirty {
		t.Errorf("result = %+v, want Dirty", result)
	}

	if _, err := db.Init(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Init() on dirty schema error = %v, want ErrUnavailable", err)
	}
}
