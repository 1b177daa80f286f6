package campaign

// State is a campaign lifecycle phase.
type State int32

const (
	Idle State = iota
	WarmingUp
	Stabilizing
	Stressing
	Draining
	Done
)

var stateNames = [...]string{"idle", "warmup", "stabilizing", "stress", "draining", "done"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
