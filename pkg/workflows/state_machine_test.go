package workflows

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	sm := NewStateMachine(map[string][]string{
		"pending":  {"accepted", "declined", "withdrawn", "expired"},
		"accepted": {},
	})

	assert.True(t, sm.CanTransition("pending", "accepted"))
	assert.True(t, sm.CanTransition("pending", "withdrawn"))
	assert.False(t, sm.CanTransition("accepted", "pending"))
	assert.False(t, sm.CanTransition("declined", "pending"))
	assert.False(t, sm.CanTransition("unknown", "accepted"))
}

func TestIsTerminal(t *testing.T) {
	sm := NewStateMachine(map[string][]string{
		"draft":  {"issued"},
		"issued": {"pending_sponsor"},
	})

	assert.False(t, sm.IsTerminal("draft"))
	assert.True(t, sm.IsTerminal("withdrawn"))
	assert.True(t, sm.IsTerminal("sponsor_rejected"))
}

func TestGetAllowedTransitions(t *testing.T) {
	sm := NewStateMachine(map[string][]string{"draft": {"issued"}})

	assert.Equal(t, []string{"issued"}, sm.GetAllowedTransitions("draft"))
	assert.Empty(t, sm.GetAllowedTransitions("issued"))
}
