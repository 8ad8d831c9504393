package store

import "time"

// TimestampLayout is the canonical on-disk form of message and conversation
// timestamps. Fixed width keeps lexical order equal to time order.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Message is one direct message between two users.
type Message struct {
	ID          int64  `json:"id"`
	SenderID    int64  `json:"sender_id"`
	RecipientID int64  `json:"recipient_id"`
	Content     string `json:"content"`
	Timestamp   string `json:"timestamp"`
	Read        bool   `json:"read"`
}

// Conversation is a directed (user, peer) row.
type Conversation struct {
	UserID         int64  `json:"user_id"`
	ChattingUserID int64  `json:"chatting_user_id"`
	LastUpdated    string `json:"last_updated"`
}

// ConversationSummary is the per-peer read model shown in a conversation list.
type ConversationSummary struct {
	PeerID            int64   `json:"peer_id"`
	PeerName          string  `json:"peer_name,omitempty"`
	UnreadCount       int     `json:"unread_count"`
	LastUnreadMessage *string `json:"last_unread_message"`
	LastUpdated       string  `json:"last_updated"`
}

// Contact is a cached friend entry used for display names.
type Contact struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// FormatTimestamp renders t in the canonical layout, in UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// NormalizeTimestamp rewrites an RFC 3339 value into the canonical layout.
// Values that do not parse are returned unchanged.
func NormalizeTimestamp(s string) string {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return s
	}
	return FormatTimestamp(t)
}
