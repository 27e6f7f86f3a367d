package channel

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"chatsyncd/internal/bus"
)

// State represents the realtime channel lifecycle state.
type State string

const (
	Closed       State = "CLOSED"
	Connecting   State = "CONNECTING"
	Open         State = "OPEN"
	Reconnecting State = "RECONNECTING"
)

// validTransitions defines allowed channel state transitions. Closed is
// reachable from everywhere because Disconnect is allowed at any point.
var validTransitions = map[State][]State{
	Closed:       {Connecting, Reconnecting},
	Connecting:   {Open, Reconnecting, Closed},
	Open:         {Closed},
	Reconnecting: {Connecting, Closed},
}

// Machine tracks and enforces channel state transitions. Transitions into
// Open publish channel.open, transitions out of Open publish channel.closed;
// each fires exactly once per connection establishment or loss.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Closed state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Closed,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to

	if m.bus == nil {
		return nil
	}
	kind := "channel.state_changed"
	if to == Open {
		kind = "channel.open"
	} else if from == Open {
		kind = "channel.closed"
	}
	m.bus.Publish(bus.Event{
		Kind:      kind,
		Timestamp: time.Now(),
		Payload:   StateChange{From: from, To: to},
	})
	return nil
}

// StateChange is the payload for channel state events.
type StateChange struct {
	From State
	To   State
}
