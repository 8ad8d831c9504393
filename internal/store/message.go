package store

import (
	"context"
	"database/sql"
)

// InsertMessage appends a message. There is no de-duplication: the same
// payload inserted twice yields two rows. Existing conversation rows for the
// pair, in either direction, have last_updated moved forward to the message
// timestamp.
func (db *DB) InsertMessage(ctx context.Context, m *Message) (int64, error) {
	if err := db.wait(ctx); err != nil {
		return 0, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, unavailable("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	id, err := insertMessageTx(ctx, tx, m)
	if err != nil {
		return 0, unavailable("insert message", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, unavailable("commit message", err)
	}
	m.ID = id
	return id, nil
}

// InsertBacklog inserts a batch of messages in one transaction with the given
// read flag. Each row follows InsertMessage semantics.
func (db *DB) InsertBacklog(ctx context.Context, msgs []Message, read bool) error {
	if err := db.wait(ctx); err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i := range msgs {
		msgs[i].Read = read
		id, err := insertMessageTx(ctx, tx, &msgs[i])
		if err != nil {
			return unavailable("insert backlog message", err)
		}
		msgs[i].ID = id
	}
	if err := tx.Commit(); err != nil {
		return unavailable("commit backlog", err)
	}
	return nil
}

func insertMessageTx(ctx context.Context, tx *sql.Tx, m *Message) (int64, error) {
	m.Timestamp = NormalizeTimestamp(m.Timestamp)
	res, err := tx.ExecContext(ctx, `
		INSERT INTO messages (sender_id, recipient_id, timestamp, content, read)
		VALUES (?, ?, ?, ?, ?)`,
		m.SenderID, m.RecipientID, m.Timestamp, m.Content, m.Read)
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE conversations SET last_updated = ?
		WHERE last_updated < ?
		  AND ((user_id = ? AND chatting_user_id = ?) OR (user_id = ? AND chatting_user_id = ?))`,
		m.Timestamp, m.Timestamp, m.SenderID, m.RecipientID, m.RecipientID, m.SenderID); err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetChatHistory returns every message exchanged between userID and peerID,
// newest first. Equal timestamps fall back to insertion order, newest first.
func (db *DB) GetChatHistory(ctx context.Context, userID, peerID int64) ([]Message, error) {
	if err := db.wait(ctx); err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, sender_id, recipient_id, content, timestamp, read
		FROM messages
		WHERE (sender_id = ? AND recipient_id = ?)
		   OR (sender_id = ? AND recipient_id = ?)
		ORDER BY timestamp DESC, id DESC`,
		userID, peerID, peerID, userID)
	if err != nil {
		return nil, unavailable("query history", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.Content, &m.Timestamp, &m.Read); err != nil {
			return nil, unavailable("scan history", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate history", err)
	}
	return msgs, nil
}

// MarkRead flags every unread message sent by peerID to userID as read in a
// single UPDATE. It returns the number of rows changed.
func (db *DB) MarkRead(ctx context.Context, userID, peerID int64) (int64, error) {
	if err := db.wait(ctx); err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx, `
		UPDATE messages SET read = 1
		WHERE sender_id = ? AND recipient_id = ? AND read = 0`,
		peerID, userID)
	if err != nil {
		return 0, unavailable("mark read", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable("mark read", err)
	}
	return n, nil
}

// MessageCount returns the total number of messages.
func (db *DB) MessageCount(ctx context.Context) (int64, error) {
	if err := db.wait(ctx); err != nil {
		return 0, err
	}
	var count int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count); err != nil {
		return 0, unavailable("count messages", err)
	}
	return count, nil
}
