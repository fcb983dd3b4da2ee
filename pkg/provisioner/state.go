package provisioner

import (
	"time"
)

// State is a position in the provisioning workflow.
type State uint8

const (
	StateStart State = iota
	StateRentQueried
	StateFunded
	StateAccountCreated
	StateInstructionSubmitted
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateRentQueried:
		return "rent_queried"
	case StateFunded:
		return "funded"
	case StateAccountCreated:
		return "account_created"
	case StateInstructionSubmitted:
		return "instruction_submitted"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// IsTerminal reports whether no further transitions can happen from s.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

// Transition records a state change within a run.
type Transition struct {
	From State
	To   State
	At   time.Time
}

// canTransition reports whether from -> to is a legal workflow edge. Every
// non-terminal state can fail, and otherwise states only advance one at a
// time.
func canTransition(from, to State) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	return to == from+1
}
