package cache

import "fmt"

func (m *Manager) dispatch(inst *instance, e *entry) {
	if m.mode == CallbackAsync {
		go m.drain(inst, e)
		return
	}
	m.drain(inst, e)
}

// drain 依次投递条目队列中的回调，投递期间不持有任何锁。
// 投递结束后条目重新成为淘汰候选，因此再检查一次容量。
func (m *Manager) drain(inst *instance, e *entry) {
	for {
		e.mu.Lock()
		if len(e.queue) == 0 {
			e.dispatching = false
			_, ready := e.state.(readyState)
			e.mu.Unlock()
			if ready {
				m.evict(inst)
			}
			return
		}
		batch := e.queue
		e.queue = nil
		e.mu.Unlock()

		for _, d := range batch {
			m.invoke(e, d)
		}
	}
}

func (m *Manager) invoke(e *entry, d delivery) {
	if d.cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.logEntry(e, "callback").WithField("panic", fmt.Sprint(r)).Error("callback_panicked")
		}
	}()
	if d.err != nil {
		d.cb(d.handle, "", d.err)
		return
	}
	d.cb(d.handle, d.path, nil)
}
