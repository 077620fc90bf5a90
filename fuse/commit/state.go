package commit

// State is a sequencer state.
type State int

const (
	StateIdle State = iota
	StateSenseEnable
	StateSetAddress
	StateWrite
	StatePollIdle
	StateVerify
	StateDone
	StateRetry
	StateFailed
)

var stateNames = [...]string{
	StateIdle:        "idle",
	StateSenseEnable: "sense-enable",
	StateSetAddress:  "set-address",
	StateWrite:       "write",
	StatePollIdle:    "poll-idle",
	StateVerify:      "verify",
	StateDone:        "done",
	StateRetry:       "retry",
	StateFailed:      "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Terminal reports whether s ends a commit.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}
