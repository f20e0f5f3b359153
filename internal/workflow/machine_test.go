package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycleHappyPath(t *testing.T) {
	m, err := NewMachine(StatePending)
	require.NoError(t, err)

	require.NoError(t, m.Fire(TriggerValidate))
	assert.Equal(t, StateHumanValidated, m.State())

	require.NoError(t, m.Fire(TriggerFinalize))
	assert.Equal(t, StateFinalized, m.State())
	assert.True(t, m.State().IsTerminal())
}

func TestRevalidationIsAllowed(t *testing.T) {
	m, err := NewMachine(StateHumanValidated)
	require.NoError(t, err)

	// Humans may edit and re-approve repeatedly before finalization.
	require.NoError(t, m.Fire(TriggerValidate))
	require.NoError(t, m.Fire(TriggerValidate))
	assert.Equal(t, StateHumanValidated, m.State())
}

func TestCannotFinalizeFromPending(t *testing.T) {
	m, err := NewMachine(StatePending)
	require.NoError(t, err)

	assert.False(t, m.CanFire(TriggerFinalize))
	err = m.Fire(TriggerFinalize)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatePending, m.State())
}

func TestFinalizedIsTerminal(t *testing.T) {
	m, err := NewMachine(StateFinalized)
	require.NoError(t, err)

	assert.Empty(t, m.PermittedTriggers())
	assert.ErrorIs(t, m.Fire(TriggerValidate), ErrInvalidTransition)
	assert.ErrorIs(t, m.Fire(TriggerFinalize), ErrInvalidTransition)
}

func TestNewMachineRejectsUnknownState(t *testing.T) {
	_, err := NewMachine(State("bogus"))
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestParseStateLegacyValues(t *testing.T) {
	tests := []struct {
		in   string
		want State
	}{
		{"pending", StatePending},
		{"pending_validation", StatePending},
		{"validated", StateHumanValidated},
		{"human_validated", StateHumanValidated},
		{"finalized", StateFinalized},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseState(tt.in), "input %q", tt.in)
	}
}
