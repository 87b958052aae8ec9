package session

type State int

const (
	Idle State = iota
	Recording
	Transcribing
	Generating
	Synthesizing
	Farewell
	Stopped
)

var stateNames = [...]string{
	Idle:         "idle",
	Recording:    "recording",
	Transcribing: "transcribing",
	Generating:   "generating",
	Synthesizing: "synthesizing",
	Farewell:     "farewell",
	Stopped:      "stopped",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
