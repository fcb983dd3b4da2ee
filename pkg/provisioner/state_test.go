package provisioner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestState(t *testing.T) {
	for state, expected := range map[State]string{
		StateStart:                "start",
		StateRentQueried:          "rent_queried",
		StateFunded:               "funded",
		StateAccountCreated:       "account_created",
		StateInstructionSubmitted: "instruction_submitted",
		StateDone:                 "done",
		StateFailed:               "failed",
		State(100):                "unknown",
	} {
		assert.Equal(t, expected, state.String())
	}

	assert.True(t, StateDone.IsTerminal())
	assert.True(t, StateFailed.IsTerminal())
	assert.False(t, StateFunded.IsTerminal())
}

func TestCanTransition(t *testing.T) {
	path := []State{StateStart, StateRentQueried, StateFunded, StateAccountCreated, StateInstructionSubmitted, StateDone}
	for i := 1; i < len(path); i++ {
		assert.True(t, canTransition(path[i-1], path[i]))
		assert.True(t, canTransition(path[i-1], StateFailed))
	}

	assert.False(t, canTransition(StateStart, StateFunded))
	assert.False(t, canTransition(StateFunded, StateRentQueried))
	assert.False(t, canTransition(StateDone, StateFailed))
	assert.False(t, canTransition(StateFailed, StateRentQueried))
}
