package jobq

// State represents a job lifecycle state.
// Use the exported constants (StatePending, StateProcessing, etc.) instead of
// raw strings to avoid typos.
type State string

const (
	// StatePending holds jobs waiting for claim. A pending job is eligible once NextRunAt has passed.
	StatePending State = "pending"
	// StateProcessing holds jobs claimed by exactly one dispatcher.
	StateProcessing State = "processing"
	// StateFailed marks pending jobs rescheduled after a retryable failure.
	// Stores persist them as pending with a non-empty LastError.
	StateFailed State = "failed"
	// StateCompleted holds jobs whose command succeeded (terminal).
	StateCompleted State = "completed"
	// StateDead holds jobs that exhausted their retries (terminal, operator-resettable).
	StateDead State = "dead"
)

// AllStates lists every valid job state in a stable order.
var AllStates = []State{StatePending, StateProcessing, StateFailed, StateCompleted, StateDead}

// String returns the raw string value of the state.
func (s State) String() string { return string(s) }

// IsTerminal reports whether no further transition happens without operator action.
func (s State) IsTerminal() bool { return s == StateCompleted || s == StateDead }

// ParseState converts a string into a State, returning an error for unknown values.
func ParseState(s string) (State, error) {
	switch s {
	case string(StatePending):
		return StatePending, nil
	case string(StateProcessing):
		return StateProcessing, nil
	case string(StateFailed):
		return StateFailed, nil
	case string(StateCompleted):
		return StateCompleted, nil
	case string(StateDead):
		return StateDead, nil
	default:
		return "", ErrUnknownState
	}
}
