package model

// State is a step in a task's lifecycle.
//
//	queued → resolving → downloading → embedding → done
//
// Any state may move to failed or canceled. Done, failed and canceled are
// terminal and sticky.
type State int

const (
	StateQueued State = iota
	StateResolving
	StateDownloading
	StateEmbedding
	StateDone
	StateFailed
	StateCanceled
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateResolving:
		return "resolving"
	case StateDownloading:
		return "downloading"
	case StateEmbedding:
		return "embedding"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	case StateCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can happen from s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateCanceled
}
