package cache

// State 是条目状态机的对外表示。
type State int

const (
	StateIdle State = iota
	StateDownloading
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDownloading:
		return "downloading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// entryState 以变体承载各状态独有的字段：只有 readyState 有路径，
// 只有 downloadingState 有等待队列，只有 failedState 有错误。
type entryState interface {
	kind() State
}

type idleState struct{}

type downloadingState struct {
	waiters []waiter
}

type readyState struct {
	path string
	size int64
}

type failedState struct {
	err error
}

func (idleState) kind() State        { return StateIdle }
func (downloadingState) kind() State { return StateDownloading }
func (readyState) kind() State       { return StateReady }
func (failedState) kind() State      { return StateFailed }
