package status

import (
	"errors"
	"testing"
	"time"

	"github.com/matheus3301/chatd/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != LoggedOut {
		t.Errorf("initial state = %s, want LOGGED_OUT", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{LoggedOut, Connecting},
		{Connecting, Connected},
		{Connecting, Disconnected},
		{Connecting, LoggedOut},
		{Connected, Disconnected},
		{Connected, LoggedOut},
		{Disconnected, Connecting},
		{Disconnected, LoggedOut},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); err != nil {
				t.Errorf("Transition(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestInvalidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{LoggedOut, Connected},
		{LoggedOut, Disconnected},
		{Connected, Connecting},
		{Disconnected, Connected},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("Transition(%s -> %s) error = %v, want ErrInvalidTransition", tt.from, tt.to, err)
			}
			if m.Current() != tt.from {
				t.Errorf("state changed to %s after rejected transition", m.Current())
			}
		})
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("session.", 10)
	defer unsub()

	m := NewMachine(b)
	if err := m.Transition(Connecting); err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-ch:
		if evt.Kind != bus.KindStatusChanged {
			t.Errorf("event kind = %q, want %s", evt.Kind, bus.KindStatusChanged)
		}
		change, ok := evt.Payload.(StatusChange)
		if !ok {
			t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
		}
		if change.From != LoggedOut || change.To != Connecting {
			t.Errorf("change = %v -> %v, want LOGGED_OUT -> CONNECTING", change.From, change.To)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for status event")
	}
}

func TestLogOutFromAnyState(t *testing.T) {
	for _, from := range []State{LoggedOut, Connecting, Connected, Disconnected} {
		t.Run(string(from), func(t *testing.T) {
			b := bus.New()
			m := NewMachine(b)
			walkTo(t, m, from)

			ch, unsub := b.Subscribe("session.", 10)
			defer unsub()

			m.LogOut()
			if m.Current() != LoggedOut {
				t.Errorf("state = %s, want LOGGED_OUT", m.Current())
			}

			select {
			case <-ch:
				if from == LoggedOut {
					t.Error("LogOut() from LOGGED_OUT emitted an event")
				}
			case <-time.After(50 * time.Millisecond):
				if from != LoggedOut {
					t.Error("LogOut() did not emit an event")
				}
			}
		})
	}
}

// walkTo drives the machine through valid transitions to the target state.
func walkTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	paths := map[State][]State{
		LoggedOut:    {},
		Connecting:   {Connecting},
		Connected:    {Connecting, Connected},
		Disconnected: {Connecting, Connected, Disconnected},
	}
	for _, s := range paths[target] {
		if err := m.Transition(s); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}
