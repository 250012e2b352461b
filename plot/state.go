package plot

type State int32

const (
	Idle State = iota
	Running
	Completed
	Stopped
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Stopped:
		return "stopped"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether a run has ended in s.
func (s State) Terminal() bool {
	return s == Completed || s == Stopped || s == Failed
}
