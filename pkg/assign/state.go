package assign

// State is the stage of one assignment submission
type State int

const (
	// StateIdle means nothing has been submitted yet
	StateIdle State = iota
	// StateResolvingConfigs means the instance and its profiles are being read
	StateResolvingConfigs
	// StateSubmitting means the create request is in flight
	StateSubmitting
	// StateSucceeded means the interface was created
	StateSucceeded
	// StateFailed means resolution or submission failed
	StateFailed
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateResolvingConfigs:
		return "ResolvingConfigs"
	case StateSubmitting:
		return "Submitting"
	case StateSucceeded:
		return "Succeeded"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further transition follows
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// validTransitions lists the states each state may move to
var validTransitions = map[State][]State{
	StateIdle:             {StateResolvingConfigs},
	StateResolvingConfigs: {StateSubmitting, StateFailed},
	StateSubmitting:       {StateSucceeded, StateFailed},
}

func canTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
