package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextStatus_AllowedTransitions(t *testing.T) {
	tests := []struct {
		action LifecycleAction
		from   ContractStatus
		want   ContractStatus
	}{
		{ActionActivate, ContractDraft, ContractActive},
		{ActionActivate, ContractSuspended, ContractActive},
		{ActionSuspend, ContractActive, ContractSuspended},
		{ActionClose, ContractActive, ContractClosed},
		{ActionClose, ContractSuspended, ContractClosed},
		{ActionCancel, ContractDraft, ContractCancelled},
	}
	for _, tt := range tests {
		got, err := NextStatus(tt.action, tt.from)
		require.NoError(t, err, "%s from %s", tt.action, tt.from)
		assert.Equal(t, tt.want, got)
	}
}

func TestNextStatus_RejectedTransitions(t *testing.T) {
	rejected := []struct {
		action LifecycleAction
		from   ContractStatus
	}{
		{ActionActivate, ContractActive},
		{ActionActivate, ContractClosed},
		{ActionActivate, ContractCancelled},
		{ActionSuspend, ContractDraft},
		{ActionSuspend, ContractSuspended},
		{ActionClose, ContractDraft},
		{ActionClose, ContractClosed},
		{ActionCancel, ContractActive},
		{ActionCancel, ContractSuspended},
		{ActionCancel, ContractClosed},
	}
	for _, tt := range rejected {
		_, err := NextStatus(tt.action, tt.from)
		require.Error(t, err, "%s from %s", tt.action, tt.from)
		assert.ErrorIs(t, err, ErrInvalidTransition)

		var te *TransitionError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, string(tt.action), te.Action)
		assert.Equal(t, tt.from, te.From)
	}
}

func TestNextStatus_TerminalStatesHaveNoExit(t *testing.T) {
	for _, from := range []ContractStatus{ContractClosed, ContractCancelled} {
		for action := range transitions {
			_, err := NextStatus(action, from)
			assert.ErrorIs(t, err, ErrInvalidTransition, "%s from %s must be rejected", action, from)
		}
	}
}

func TestNextStatus_UnknownActionPanics(t *testing.T) {
	assert.Panics(t, func() {
		_, _ = NextStatus(LifecycleAction("archive"), ContractActive)
	})
}
