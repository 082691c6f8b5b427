package pipeline

// State is a step of a pipeline run.
type State int

const (
	StateInit State = iota
	StateFetching
	StateParsing
	StateAggregating
	StateDeciding
	StatePublishing
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateInit:        "init",
	StateFetching:    "fetching",
	StateParsing:     "parsing",
	StateAggregating: "aggregating",
	StateDeciding:    "deciding",
	StatePublishing:  "publishing",
	StateDone:        "done",
	StateFailed:      "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further step follows s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}
