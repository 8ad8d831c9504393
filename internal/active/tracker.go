// Package active tracks which conversation is in the foreground and keeps the
// in-memory message list shown for it.
package active

import (
	"sync"
	"sync/atomic"

	"github.com/matheus3301/chatd/internal/bus"
	"github.com/matheus3301/chatd/internal/store"
)

// None is the pointer value when no chat is open.
const None int64 = -1

// Tracker holds the active-chat pointer. Writes come from one place (open and
// close commands); reads happen on every inbound message and never block.
type Tracker struct {
	current atomic.Int64
	view    *LiveView
	bus     *bus.Bus
}

// NewTracker returns a tracker with no chat open.
func NewTracker(b *bus.Bus) *Tracker {
	t := &Tracker{view: &LiveView{}, bus: b}
	t.current.Store(None)
	return t
}

// Open makes peerID the foreground chat and seeds the view with history,
// newest first. The pointer is stored before the view switches, so a message
// that reaches the new view was already stored read.
func (t *Tracker) Open(peerID int64, history []store.Message) {
	t.current.Store(peerID)
	t.view.reset(peerID, history)
	t.bus.Emit(bus.KindChatOpened, peerID)
}

// Close clears the pointer and the view.
func (t *Tracker) Close() {
	prev := t.current.Swap(None)
	t.view.reset(None, nil)
	if prev != None {
		t.bus.Emit(bus.KindChatClosed, prev)
	}
}

// Current returns the open peer id, or None.
func (t *Tracker) Current() int64 {
	return t.current.Load()
}

// IsOpen reports whether peerID is the foreground chat.
func (t *Tracker) IsOpen(peerID int64) bool {
	return peerID != None && t.current.Load() == peerID
}

// View returns the live view of the open chat.
func (t *Tracker) View() *LiveView {
	return t.view
}

// LiveView is the message list of the open chat, newest first.
type LiveView struct {
	mu     sync.RWMutex
	peerID int64
	msgs   []store.Message
}

func (v *LiveView) reset(peerID int64, history []store.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.peerID = peerID
	v.msgs = append([]store.Message(nil), history...)
}

// Prepend adds m at the head when it belongs to the open chat. It reports
// whether the message was added.
func (v *LiveView) Prepend(userID int64, m store.Message) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.peerID == None || v.peerID == 0 {
		return false
	}
	inChat := (m.SenderID == v.peerID && m.RecipientID == userID) ||
		(m.SenderID == userID && m.RecipientID == v.peerID)
	if !inChat {
		return false
	}
	v.msgs = append([]store.Message{m}, v.msgs...)
	return true
}

// PeerID returns the peer the view belongs to, or None.
func (v *LiveView) PeerID() int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.peerID
}

// Messages returns a copy of the view, newest first.
func (v *LiveView) Messages() []store.Message {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]store.Message(nil), v.msgs...)
}
