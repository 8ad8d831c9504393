package store

import (
	"context"
	"database/sql"
	"time"
)

// InsertConversationIfAbsent creates the (userID, peerID) row if it does not
// exist yet. created reports whether a row was added.
func (db *DB) InsertConversationIfAbsent(ctx context.Context, userID, peerID int64) (created bool, err error) {
	if err := db.wait(ctx); err != nil {
		return false, err
	}
	res, err := db.ExecContext(ctx, `
		INSERT OR IGNORE INTO conversations (user_id, chatting_user_id, last_updated)
		VALUES (?, ?, ?)`,
		userID, peerID, FormatTimestamp(time.Now()))
	if err != nil {
		return false, unavailable("insert conversation", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable("insert conversation", err)
	}
	return n > 0, nil
}

// GetConversation returns the (userID, peerID) row, or nil if absent.
func (db *DB) GetConversation(ctx context.Context, userID, peerID int64) (*Conversation, error) {
	if err := db.wait(ctx); err != nil {
		return nil, err
	}
	var c Conversation
	err := db.QueryRowContext(ctx, `
		SELECT user_id, chatting_user_id, last_updated
		FROM conversations WHERE user_id = ? AND chatting_user_id = ?`, userID, peerID).
		Scan(&c.UserID, &c.ChattingUserID, &c.LastUpdated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get conversation", err)
	}
	return &c, nil
}

// GetConversationSummaries builds the conversation list for userID: unread
// count and newest unread content per peer, most recent activity first.
// Ties keep the order in which the conversation rows were created.
func (db *DB) GetConversationSummaries(ctx context.Context, userID int64) ([]ConversationSummary, error) {
	if err := db.wait(ctx); err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT c.chatting_user_id,
			COALESCE(ct.username, ''),
			(SELECT COUNT(*) FROM messages m
				WHERE m.sender_id = c.chatting_user_id AND m.recipient_id = c.user_id AND m.read = 0),
			(SELECT m.content FROM messages m
				WHERE m.sender_id = c.chatting_user_id AND m.recipient_id = c.user_id AND m.read = 0
				ORDER BY m.timestamp DESC, m.id DESC LIMIT 1),
			c.last_updated
		FROM conversations c
		LEFT JOIN contacts ct ON ct.id = c.chatting_user_id
		WHERE c.user_id = ?
		ORDER BY c.last_updated DESC, c.rowid ASC`, userID)
	if err != nil {
		return nil, unavailable("query summaries", err)
	}
	defer func() { _ = rows.Close() }()

	summaries := []ConversationSummary{}
	for rows.Next() {
		var (
			s    ConversationSummary
			last sql.NullString
		)
		if err := rows.Scan(&s.PeerID, &s.PeerName, &s.UnreadCount, &last, &s.LastUpdated); err != nil {
			return nil, unavailable("scan summary", err)
		}
		if last.Valid {
			s.LastUnreadMessage = &last.String
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate summaries", err)
	}
	return summaries, nil
}

// ConversationCount returns the number of conversation rows for userID.
func (db *DB) ConversationCount(ctx context.Context, userID int64) (int64, error) {
	if err := db.wait(ctx); err != nil {
		return 0, err
	}
	var count int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations WHERE user_id = ?`, userID).Scan(&count); err != nil {
		return 0, unavailable("count conversations", err)
	}
	return count, nil
}
