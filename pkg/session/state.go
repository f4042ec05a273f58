package session

// State is a position in the session lifecycle:
//
//	WaitingForGate -> Configured -> Streaming -> Completed
//	      |                             |------> Cancelled
//	      +-> Cancelled                 +------> Failed
type State int32

const (
	WaitingForGate State = iota
	Configured
	Streaming
	Completed
	Cancelled
	Failed
)

func (s State) String() string {
	switch s {
	case WaitingForGate:
		return "waiting_for_gate"
	case Configured:
		return "configured"
	case Streaming:
		return "streaming"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == Completed || s == Cancelled || s == Failed
}
