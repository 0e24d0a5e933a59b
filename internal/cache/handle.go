package cache

import (
	"context"
	"sync"
	"time"
)

// Handle 是调用方持有的条目引用。条目被淘汰或清空后，GetFile 会按键重新解析。
type Handle struct {
	m        *Manager
	key      Key
	uri      string
	progress ProgressFunc

	mu    sync.Mutex
	entry *entry
}

// Key 返回规范化后的缓存键。
func (h *Handle) Key() Key {
	return h.key
}

// URI 返回规范化后的来源地址；未指定显式键时与 Key 相同。
func (h *Handle) URI() string {
	return h.uri
}

func (h *Handle) current() *entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.entry
}

// rebind 将已离开索引的句柄指向索引中同键的条目（必要时新建）。
func (h *Handle) rebind(inst *instance, stale *entry) *entry {
	e, reused := h.m.resolve(inst, h.key, h.uri)
	h.mu.Lock()
	if h.entry == stale {
		h.entry = e
	}
	e = h.entry
	h.mu.Unlock()
	if reused {
		h.m.evict(inst)
	}
	return e
}

// GetFile 异步解析本地文件，从不阻塞在 I/O 上。结果通过 cb 投递，
// 同一条目上的回调按调用顺序触发。未初始化、已关闭等错误会同步交给 cb。
func (h *Handle) GetFile(cb GotFileFunc) {
	inst, err := h.m.active()
	if err != nil {
		if cb != nil {
			cb(h, "", err)
		}
		return
	}

	e := h.current()
	for {
		if h.m.request(inst, e, waiter{handle: h, cb: cb, progress: h.progress}) {
			return
		}
		e.mu.Lock()
		invalidated := e.invalidated
		e.mu.Unlock()
		if invalidated {
			h.m.invoke(e, delivery{handle: h, cb: cb, err: ErrInvalidated})
			return
		}
		e = h.rebind(inst, e)
	}
}

type fileResult struct {
	path string
	err  error
}

// File 是 GetFile 的阻塞形式。ctx 结束只放弃等待，不取消已开始的下载。
func (h *Handle) File(ctx context.Context) (string, error) {
	ch := make(chan fileResult, 1)
	h.GetFile(func(_ *Handle, path string, err error) {
		ch <- fileResult{path: path, err: err}
	})
	select {
	case r := <-ch:
		return r.path, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Err 返回最近一次下载失败的错误；条目不处于 Failed 状态时为 nil。
func (h *Handle) Err() error {
	e := h.current()
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.state.(failedState); ok {
		return st.err
	}
	return nil
}

// State 返回条目当前状态。
func (h *Handle) State() State {
	e := h.current()
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.kind()
}

// CachedPath 在条目已就绪时返回本地路径，否则返回空串。不更新 lastAccess。
func (h *Handle) CachedPath() string {
	e := h.current()
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.state.(readyState); ok {
		return st.path
	}
	return ""
}

// Size 返回已就绪文件的字节数，未就绪时为 0。
func (h *Handle) Size() int64 {
	e := h.current()
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.state.(readyState); ok {
		return st.size
	}
	return 0
}

func (h *Handle) LastAccess() time.Time {
	e := h.current()
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastAccess
}

// AddRef 固定条目，固定期间不会被淘汰、清空或失效。
func (h *Handle) AddRef() error {
	inst, err := h.m.active()
	if err != nil {
		return err
	}
	e := h.current()
	for {
		e.mu.Lock()
		if !e.detached {
			e.refs++
			e.mu.Unlock()
			return nil
		}
		invalidated := e.invalidated
		e.mu.Unlock()
		if invalidated {
			return ErrInvalidated
		}
		e = h.rebind(inst, e)
	}
}

// Release 解除一次固定，返回剩余的固定次数。最后一次解除后重新检查容量。
func (h *Handle) Release() int {
	e := h.current()
	e.mu.Lock()
	if e.refs > 0 {
		e.refs--
	}
	refs := e.refs
	evictable := refs == 0 && e.evictableLocked()
	e.mu.Unlock()

	if evictable {
		if inst, err := h.m.active(); err == nil {
			h.m.evict(inst)
		}
	}
	return refs
}

func (h *Handle) RefCount() int {
	e := h.current()
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.refs
}

// Invalidate 将键从索引移除并删除文件。下载中、被固定或正在投递回调时返回 ErrEntryBusy。
// 之后经由同一条目的 GetFile 得到 ErrInvalidated。
func (h *Handle) Invalidate() error {
	inst, err := h.m.active()
	if err != nil {
		return err
	}
	own := h.current()

	inst.index.mu.Lock()
	defer inst.index.mu.Unlock()

	target, indexed := inst.index.entries[h.key]
	if indexed {
		target.mu.Lock()
		_, downloading := target.state.(downloadingState)
		if downloading || target.refs > 0 || target.dispatching || len(target.queue) > 0 {
			target.mu.Unlock()
			return ErrEntryBusy
		}
		target.state = idleState{}
		target.detached = true
		target.invalidated = true
		target.mu.Unlock()
		inst.index.removeLocked(target)
	}
	if own != target {
		own.mu.Lock()
		if own.detached {
			own.invalidated = true
		}
		own.mu.Unlock()
	}

	if err := inst.store.Remove(own.name); err != nil {
		return err
	}
	h.m.logEntry(own, "invalidate").WithField("indexed", indexed).Info("cache_invalidated")
	return nil
}
