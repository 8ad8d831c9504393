package api

import (
	"encoding/json"

	"github.com/matheus3301/chatd/internal/backend"
	"github.com/matheus3301/chatd/internal/store"
)

// Empty is used by calls without parameters or results.
type Empty struct{}

type GetStatusResponse struct {
	Session           string `json:"session"`
	Status            string `json:"status"`
	StatusSinceUnixMs int64  `json:"status_since_unix_ms"`
	LoggedIn          bool   `json:"logged_in"`
	UserID            int64  `json:"user_id,omitempty"`
	ActiveChat        int64  `json:"active_chat"`
	MessageCount      int64  `json:"message_count"`
	ConversationCount int64  `json:"conversation_count"`
	LastCatchUpUnixMs int64  `json:"last_catchup_unix_ms,omitempty"`
	LastCatchUpCount  int    `json:"last_catchup_count,omitempty"`
	UptimeMs          int64  `json:"uptime_ms"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

type SetUsernameRequest struct {
	Username string `json:"username"`
}

type ListConversationsResponse struct {
	Conversations []store.ConversationSummary `json:"conversations"`
}

type PeerRequest struct {
	PeerID int64 `json:"peer_id"`
}

type HistoryResponse struct {
	PeerID   int64           `json:"peer_id"`
	Messages []store.Message `json:"messages"`
}

type MarkReadResponse struct {
	Updated int64 `json:"updated"`
}

type ListFriendRequestsResponse struct {
	Requests []backend.FriendRequest `json:"requests"`
}

type RespondFriendRequestRequest struct {
	RequestID int64 `json:"request_id"`
	Accept    bool  `json:"accept"`
}

type AddFriendRequest struct {
	Email string `json:"email"`
}

type AddFriendResponse struct {
	Contact backend.Contact `json:"contact"`
}

type WatchEventsRequest struct {
	// Namespace filters events by kind prefix. Empty means everything.
	Namespace string `json:"namespace,omitempty"`
}

// EventEnvelope is one bus event as streamed to clients.
type EventEnvelope struct {
	EventID          string          `json:"event_id"`
	Session          string          `json:"session"`
	Kind             string          `json:"kind"`
	OccurredAtUnixMs int64           `json:"occurred_at_unix_ms"`
	Payload          json.RawMessage `json:"payload,omitempty"`
}

type SendRequest struct {
	PeerID  int64  `json:"peer_id"`
	Content string `json:"content"`
}

type SendResponse struct {
	Message store.Message `json:"message"`
}
