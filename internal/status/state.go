package status

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/chatd/internal/bus"
)

// ErrInvalidTransition is returned by Transition for a move the graph forbids.
var ErrInvalidTransition = errors.New("invalid status transition")

// State represents the push channel connection state.
type State string

const (
	LoggedOut    State = "LOGGED_OUT"
	Connecting   State = "CONNECTING"
	Connected    State = "CONNECTED"
	Disconnected State = "DISCONNECTED"
)

// validTransitions defines allowed state transitions. LoggedOut is reachable
// from everywhere; leaving it requires a session.
var validTransitions = map[State][]State{
	LoggedOut:    {Connecting},
	Connecting:   {Connected, Disconnected, LoggedOut},
	Connected:    {Disconnected, LoggedOut},
	Disconnected: {Connecting, LoggedOut},
}

// Machine tracks and enforces connection state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	since   time.Time
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in LoggedOut state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: LoggedOut,
		since:   time.Now(),
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Since returns when the current state was entered.
func (m *Machine) Since() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.since
}

// Transition moves to the given state if the graph allows it.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.current, to)
	}
	m.set(to)
	return nil
}

// LogOut moves to LoggedOut from any state. It is a no-op when already there.
func (m *Machine) LogOut() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == LoggedOut {
		return
	}
	m.set(LoggedOut)
}

func (m *Machine) set(to State) {
	from := m.current
	m.current = to
	m.since = time.Now()
	m.bus.Emit(bus.KindStatusChanged, StatusChange{From: from, To: to})
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
