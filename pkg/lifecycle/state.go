// Package lifecycle runs the long-lived components of the identity daemon
// (store, key-set cache, HTTP listener) under a single state machine.
//
// The flow for a healthy process is:
//
//	Unknown → Starting → Running → Stopping → Stopped
//
// Any non-terminal state may transition to Failed. Components start in
// registration order and stop in reverse order, so the HTTP listener is
// drained before the store it depends on is closed.
//
// Lifecycle operations create OpenTelemetry spans named "lifecycle.Start"
// and "lifecycle.Stop".
package lifecycle

// State is the lifecycle state of a [Runner]. The zero value is not valid;
// runners begin in [StateUnknown].
type State string

const (
	// StateUnknown is the state of a runner that has not been started.
	StateUnknown State = "unknown"

	// StateStarting is set while component start hooks execute.
	StateStarting State = "starting"

	// StateRunning is the only state in which [Runner.Health] can report
	// healthy.
	StateRunning State = "running"

	// StateStopping is set while component stop hooks execute.
	StateStopping State = "stopping"

	// StateStopped indicates a clean shutdown.
	StateStopped State = "stopped"

	// StateFailed indicates a start or stop hook returned an error.
	StateFailed State = "failed"
)

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// Valid reports whether s is a recognized state.
func (s State) Valid() bool {
	switch s {
	case StateUnknown, StateStarting, StateRunning,
		StateStopping, StateStopped, StateFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether s is [StateStopped] or [StateFailed].
func (s State) IsTerminal() bool {
	return s == StateStopped || s == StateFailed
}

// Transition matrix:
//
//	Unknown  → Starting, Failed
//	Starting → Running, Failed
//	Running  → Stopping, Failed
//	Stopping → Stopped, Failed
//
// A process is not restarted in place; terminal states have no exits.
var validTransitions = map[State][]State{
	StateUnknown:  {StateStarting, StateFailed},
	StateStarting: {StateRunning, StateFailed},
	StateRunning:  {StateStopping, StateFailed},
	StateStopping: {StateStopped, StateFailed},
}

// ValidTransition reports whether from may move to to. Same-state
// transitions are rejected.
func ValidTransition(from, to State) bool {
	if from == to {
		return false
	}
	for _, t := range validTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}
