package rebuild

import (
	"errors"
	"fmt"
	"sync"
)

// State is one step of a job's lifecycle.
type State string

const (
	StateIdle         State = "idle"
	StateAnalyzing    State = "analyzing"
	StateStrategizing State = "strategizing"
	StateExecuting    State = "executing"
	StateValidating   State = "validating"
	StateRetrying     State = "retrying"
	StateSuccess      State = "success"
	StateSkipped      State = "skipped"
	StateFailed       State = "failed"
	StateCancelled    State = "cancelled"
)

// ErrIllegalTransition is returned for moves the lifecycle does not allow.
var ErrIllegalTransition = errors.New("illegal state transition")

var transitions = map[State][]State{
	StateIdle:         {StateAnalyzing},
	StateAnalyzing:    {StateStrategizing},
	StateStrategizing: {StateExecuting},
	StateExecuting:    {StateValidating},
	StateValidating:   {StateSuccess, StateSkipped, StateRetrying},
	StateRetrying:     {StateStrategizing},
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	switch s {
	case StateSuccess, StateSkipped, StateFailed, StateCancelled:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is allowed. Failed and Cancelled
// are reachable from every non-terminal state.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed || to == StateCancelled {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Machine tracks one job. It is safe for concurrent use.
type Machine struct {
	mu      sync.Mutex
	state   State
	history []State
	// OnChange, if set, is called after every accepted transition.
	OnChange func(from, to State)
}

func NewMachine() *Machine {
	return &Machine{state: StateIdle, history: []State{StateIdle}}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// To moves the machine to s or returns ErrIllegalTransition.
func (m *Machine) To(s State) error {
	m.mu.Lock()
	from := m.state
	if !CanTransition(from, s) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, s)
	}
	m.state = s
	m.history = append(m.history, s)
	cb := m.OnChange
	m.mu.Unlock()
	if cb != nil {
		cb(from, s)
	}
	return nil
}

// History returns every state visited, oldest first.
func (m *Machine) History() []State {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]State, len(m.history))
	copy(out, m.history)
	return out
}
