package pipeline

// State identifies where a run is in its lifecycle.
type State string

const (
	StateStarted    State = "started"
	StateDecoding   State = "decoding"
	StateAnalyzing  State = "analyzing"
	StateRendering  State = "rendering"
	StateFinalizing State = "finalizing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// allowedTransitions is the authority on lifecycle order. Analysis and
// rendering overlap in time; the reported state advances to rendering once
// the overlay pass starts while analysis continues in the background. An
// illegal transition is a programming error and panics in setState.
var allowedTransitions = map[State]map[State]bool{
	StateStarted:    {StateDecoding: true, StateFailed: true},
	StateDecoding:   {StateAnalyzing: true, StateFailed: true},
	StateAnalyzing:  {StateRendering: true, StateFailed: true},
	StateRendering:  {StateFinalizing: true, StateFailed: true},
	StateFinalizing: {StateCompleted: true, StateFailed: true},
	StateCompleted:  {},
	StateFailed:     {},
}

// IsKnown reports whether s is a recognized lifecycle state.
func IsKnown(s State) bool {
	_, ok := allowedTransitions[s]
	return ok
}

// CanTransition reports whether a run may move from one state to another.
func CanTransition(from, to State) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// IsTerminal reports whether the state ends a run.
func IsTerminal(s State) bool {
	return s == StateCompleted || s == StateFailed
}
