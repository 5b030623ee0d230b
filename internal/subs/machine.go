// Package subs opens and supervises the five real-time subscription
// channels and translates every inbound event into entity cache mutations.
package subs

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/parley/internal/bus"
	"github.com/matheus3301/parley/internal/transport"
)

// State is a subscription channel's lifecycle state.
type State string

const (
	Closed  State = "CLOSED"
	Opening State = "OPENING"
	Open    State = "OPEN"
)

// validTransitions defines allowed state transitions. OPENING only becomes
// OPEN on the server's acknowledgment; a second open of a non-CLOSED
// channel is a programming error surfaced by Transition.
var validTransitions = map[State][]State{
	Closed:  {Opening},
	Opening: {Open, Closed},
	Open:    {Closed},
}

// Machine tracks and enforces one channel's state transitions.
type Machine struct {
	mu      sync.RWMutex
	channel transport.Channel
	current State
	bus     *bus.Bus
}

// NewMachine creates a machine for the channel, starting Closed.
func NewMachine(channel transport.Channel, b *bus.Bus) *Machine {
	return &Machine{
		channel: channel,
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

// Transition attempts to move to a new state. Returns an error if the
// transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("channel %s: invalid transition from %s to %s", m.channel, m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Emit(bus.KindSubsStatusChanged, StatusChange{
			Channel: m.channel,
			From:    from,
			To:      to,
		})
	}
	return nil
}

// StatusChange is the payload for channel status change events.
type StatusChange struct {
	Channel transport.Channel
	From    State
	To      State
}
