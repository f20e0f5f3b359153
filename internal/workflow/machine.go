package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is returned when a trigger is not permitted in
	// the current state.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidState is returned when a state is unknown.
	ErrInvalidState = errors.New("invalid state")
)

// transitions is the full lifecycle graph. Re-validating an already
// validated record is permitted: humans may edit and re-approve any number
// of times before finalization.
var transitions = map[State]map[Trigger]State{
	StatePending: {
		TriggerValidate: StateHumanValidated,
	},
	StateHumanValidated: {
		TriggerValidate: StateHumanValidated,
		TriggerFinalize: StateFinalized,
	},
	StateFinalized: {},
}

// Machine tracks the current lifecycle state of one pending invoice and
// validates transitions against the graph above.
type Machine struct {
	current State
}

// NewMachine creates a machine positioned at the given state.
func NewMachine(initial State) (*Machine, error) {
	if !initial.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidState, initial)
	}
	return &Machine{current: initial}, nil
}

// State returns the current state.
func (m *Machine) State() State {
	return m.current
}

// CanFire returns true if the trigger is permitted in the current state.
func (m *Machine) CanFire(trigger Trigger) bool {
	_, ok := transitions[m.current][trigger]
	return ok
}

// Fire executes the trigger, moving to the new state if allowed.
func (m *Machine) Fire(trigger Trigger) error {
	next, ok := transitions[m.current][trigger]
	if !ok {
		return fmt.Errorf("%w: cannot fire %s from state %s",
			ErrInvalidTransition, trigger, m.current)
	}
	m.current = next
	return nil
}

// PermittedTriggers returns all triggers that can fire in the current state.
func (m *Machine) PermittedTriggers() []Trigger {
	out := make([]Trigger, 0, len(transitions[m.current]))
	for t := range transitions[m.current] {
		out = append(out, t)
	}
	return out
}
