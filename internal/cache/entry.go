package cache

import (
	"sync"
	"time"
)

// GotFileFunc 接收解析结果：成功时 path 非空、err 为 nil；失败时 path 为空。
type GotFileFunc func(h *Handle, path string, err error)

// ProgressFunc 观察下载进度，total 未知时为 -1。在下载 goroutine 中调用。
type ProgressFunc func(received, total int64)

// waiter 是下载期间排队的一次 GetFile。
type waiter struct {
	handle   *Handle
	cb       GotFileFunc
	progress ProgressFunc
}

// delivery 是已有结果、等待投递的一次回调。
type delivery struct {
	handle *Handle
	cb     GotFileFunc
	path   string
	err    error
}

// entry 是单个键的状态与簿记，所有字段受 mu 保护（key/name 不可变）。
type entry struct {
	key  Key
	name string
	// uri 是下次下载使用的来源地址，显式键下可随请求更新。
	uri  string

	mu         sync.Mutex
	state      entryState
	lastAccess time.Time
	refs       int
	// detached 表示条目已离开索引（淘汰、失效或清空）。
	detached    bool
	invalidated bool
	// queue/dispatching 串行化回调投递，保证同一条目内 FIFO。
	queue       []delivery
	dispatching bool
}

func newEntry(key Key, uri, name string) *entry {
	return &entry{
		key:   key,
		uri:   uri,
		name:  name,
		state: idleState{},
	}
}

// evictableLocked 判断条目能否被淘汰：已就绪、未被固定、没有待投递的回调。
func (e *entry) evictableLocked() bool {
	if _, ok := e.state.(readyState); !ok {
		return false
	}
	return e.refs == 0 && !e.dispatching && len(e.queue) == 0
}

// enqueueLocked 追加待投递回调，返回调用方是否需要启动投递循环。
func (e *entry) enqueueLocked(items ...delivery) bool {
	e.queue = append(e.queue, items...)
	if e.dispatching || len(e.queue) == 0 {
		return false
	}
	e.dispatching = true
	return true
}

// progressListeners 返回当前等待者的进度回调，同一句柄只保留一次。
func (e *entry) progressListeners() []ProgressFunc {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.state.(downloadingState)
	if !ok {
		return nil
	}
	seen := make(map[*Handle]struct{}, len(st.waiters))
	var listeners []ProgressFunc
	for _, w := range st.waiters {
		if w.progress == nil {
			continue
		}
		if _, dup := seen[w.handle]; dup {
			continue
		}
		seen[w.handle] = struct{}{}
		listeners = append(listeners, w.progress)
	}
	return listeners
}

func (e *entry) reportProgress(received, total int64) {
	for _, fn := range e.progressListeners() {
		fn(received, total)
	}
}
