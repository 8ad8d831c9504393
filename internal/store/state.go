package store

import (
	"context"
	"database/sql"
	"time"
)

// SetState upserts a sync_state key.
func (db *DB) SetState(ctx context.Context, key, value string) error {
	if err := db.wait(ctx); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO sync_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	if err != nil {
		return unavailable("set state", err)
	}
	return nil
}

// GetState returns the value for key. ok is false when the key is unset.
func (db *DB) GetState(ctx context.Context, key string) (value string, ok bool, err error) {
	if err := db.wait(ctx); err != nil {
		return "", false, err
	}
	err = db.QueryRowContext(ctx, `SELECT value FROM sync_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable("get state", err)
	}
	return value, true, nil
}
