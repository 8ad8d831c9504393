package store

import (
	"context"
	"database/sql"
	"time"
)

// UpsertContacts inserts or updates contacts in a single transaction.
// Empty fields never overwrite known values.
func (db *DB) UpsertContacts(ctx context.Context, contacts []Contact) error {
	if err := db.wait(ctx); err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for _, c := range contacts {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO contacts (id, username, email, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				username = CASE WHEN excluded.username != '' THEN excluded.username ELSE contacts.username END,
				email = CASE WHEN excluded.email != '' THEN excluded.email ELSE contacts.email END,
				updated_at = excluded.updated_at`,
			c.ID, c.Username, c.Email, now); err != nil {
			return unavailable("upsert contact", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return unavailable("commit contacts", err)
	}
	return nil
}

// GetContact returns a contact by id, or nil if unknown.
func (db *DB) GetContact(ctx context.Context, id int64) (*Contact, error) {
	if err := db.wait(ctx); err != nil {
		return nil, err
	}
	var c Contact
	err := db.QueryRowContext(ctx, `SELECT id, username, email FROM contacts WHERE id = ?`, id).
		Scan(&c.ID, &c.Username, &c.Email)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get contact", err)
	}
	return &c, nil
}

// ListContacts returns all cached contacts ordered by username.
func (db *DB) ListContacts(ctx context.Context) ([]Contact, error) {
	if err := db.wait(ctx); err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT id, username, email FROM contacts ORDER BY username, id`)
	if err != nil {
		return nil, unavailable("list contacts", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.Username, &c.Email); err != nil {
			return nil, unavailable("scan contact", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate contacts", err)
	}
	return out, nil
}
