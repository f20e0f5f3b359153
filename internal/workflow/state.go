// Package workflow tracks the validation lifecycle of a pending invoice:
// pending -> human_validated -> finalized.
package workflow

// State is a stage in the pending-invoice validation lifecycle. The string
// values double as the persisted validation_status column.
type State string

const (
	StatePending        State = "pending"
	StateHumanValidated State = "human_validated"
	StateFinalized      State = "finalized"
)

var validStates = map[State]bool{
	StatePending:        true,
	StateHumanValidated: true,
	StateFinalized:      true,
}

// IsValid returns true if the state is a known lifecycle state.
func (s State) IsValid() bool {
	return validStates[s]
}

// IsTerminal returns true if no further transitions are allowed.
func (s State) IsTerminal() bool {
	return s == StateFinalized
}

func (s State) String() string {
	return string(s)
}

// ParseState maps a stored validation_status to a lifecycle state. Legacy
// rows carry "validated" or "pending_validation"; both map onto the modern
// vocabulary.
func ParseState(status string) State {
	switch status {
	case "", "pending", "pending_validation":
		return StatePending
	case "human_validated", "validated":
		return StateHumanValidated
	case "finalized":
		return StateFinalized
	default:
		return StatePending
	}
}

// Trigger is an event that can cause a lifecycle transition.
type Trigger string

const (
	// TriggerValidate records a human approving (possibly after editing)
	// the extracted fields.
	TriggerValidate Trigger = "VALIDATE"

	// TriggerFinalize promotes a human-validated record into the
	// canonical invoice store.
	TriggerFinalize Trigger = "FINALIZE"
)

func (t Trigger) String() string {
	return string(t)
}
