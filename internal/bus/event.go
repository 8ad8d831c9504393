package bus

import (
	"strings"
	"time"
)

// Event kinds. Subscribers filter by namespace prefix ("sync.", "message.", ...).
const (
	KindStatusChanged        = "session.status_changed"
	KindLoggedIn             = "auth.logged_in"
	KindLoggedOut            = "auth.logged_out"
	KindTokenRefreshed       = "auth.token_refreshed"
	KindSyncConnecting       = "sync.connecting"
	KindSyncConnected        = "sync.connected"
	KindSyncDisconnected     = "sync.disconnected"
	KindSyncLoggedOut        = "sync.logged_out"
	KindCatchUpDone          = "sync.catchup_done"
	KindMessageStored        = "message.stored"
	KindMessageSent          = "message.sent"
	KindMessageSendFailed    = "message.send_failed"
	KindMessagesRead         = "message.read"
	KindConversationsUpdated = "conversations.updated"
	KindChatOpened           = "chat.opened"
	KindChatClosed           = "chat.closed"
	KindFriendRequests       = "friends.requests_updated"
	KindContacts             = "friends.contacts_updated"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Namespace returns the part of kind before the first dot.
func Namespace(kind string) string {
	if i := strings.IndexByte(kind, '.'); i >= 0 {
		return kind[:i]
	}
	return kind
}
