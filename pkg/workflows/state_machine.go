package workflows

// StateMachine enforces negotiation status transitions
type StateMachine struct {
	allowedTransitions map[string][]string
}

// NewStateMachine creates a new state machine with allowed transitions.
// A status with an empty (or absent) transition list is terminal.
func NewStateMachine(allowedTransitions map[string][]string) *StateMachine {
	return &StateMachine{allowedTransitions: allowedTransitions}
}

// CanTransition checks if a status transition is allowed
func (sm *StateMachine) CanTransition(from, to string) bool {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return false
	}
	for _, allowedTo := range allowed {
		if allowedTo == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed from a status
func (sm *StateMachine) IsTerminal(status string) bool {
	return len(sm.allowedTransitions[status]) == 0
}

// GetAllowedTransitions returns the allowed next statuses for a given status
func (sm *StateMachine) GetAllowedTransitions(from string) []string {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return []string{}
	}
	return allowed
}
