package core

import "fmt"

// LifecycleAction is a named contract status transition.
type LifecycleAction string

const (
	ActionActivate LifecycleAction = "activate"
	ActionSuspend  LifecycleAction = "suspend"
	ActionClose    LifecycleAction = "close"
	ActionCancel   LifecycleAction = "cancel"
)

// transitions maps each action to its admissible source statuses and target.
// CLOSED and CANCELLED are terminal: no action lists them as a source.
var transitions = map[LifecycleAction]struct {
	from map[ContractStatus]bool
	to   ContractStatus
}{
	ActionActivate: {from: map[ContractStatus]bool{ContractDraft: true, ContractSuspended: true}, to: ContractActive},
	ActionSuspend:  {from: map[ContractStatus]bool{ContractActive: true}, to: ContractSuspended},
	ActionClose:    {from: map[ContractStatus]bool{ContractActive: true, ContractSuspended: true}, to: ContractClosed},
	ActionCancel:   {from: map[ContractStatus]bool{ContractDraft: true}, to: ContractCancelled},
}

// NextStatus returns the status reached by applying action from the given
// status. A non-member (action, from) pair is a user error and returns
// TransitionError; an unknown action is a programming error and panics.
func NextStatus(action LifecycleAction, from ContractStatus) (ContractStatus, error) {
	t, ok := transitions[action]
	if !ok {
		panic(fmt.Sprintf("unknown lifecycle action %q", action))
	}
	if !t.from[from] {
		return "", &TransitionError{Action: string(action), From: from}
	}
	return t.to, nil
}
