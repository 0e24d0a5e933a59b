package cache

import (
	"time"
)

// Stats 汇总索引与磁盘的当前状态。
type Stats struct {
	Root           string `json:"root"`
	Capacity       int    `json:"capacity"`
	Entries        int    `json:"entries"`
	Idle           int    `json:"idle"`
	Downloading    int    `json:"downloading"`
	Ready          int    `json:"ready"`
	Failed         int    `json:"failed"`
	ReadyBytes     int64  `json:"ready_bytes"`
	DiskFiles      int    `json:"disk_files"`
	DiskBytes      int64  `json:"disk_bytes"`
	AvailableBytes int64  `json:"available_bytes"`
}

// EntryInfo 是单个条目的诊断快照。
type EntryInfo struct {
	Key        Key       `json:"key"`
	URI        string    `json:"uri"`
	State      string    `json:"state"`
	Path       string    `json:"path,omitempty"`
	SizeBytes  int64     `json:"size_bytes"`
	LastAccess time.Time `json:"last_access,omitempty"`
	Refs       int       `json:"refs"`
	Waiters    int       `json:"waiters"`
	Error      string    `json:"error,omitempty"`
}

func (e *entry) info() EntryInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	info := EntryInfo{
		Key:        e.key,
		URI:        e.uri,
		State:      e.state.kind().String(),
		LastAccess: e.lastAccess,
		Refs:       e.refs,
	}
	switch st := e.state.(type) {
	case readyState:
		info.Path = st.path
		info.SizeBytes = st.size
	case downloadingState:
		info.Waiters = len(st.waiters)
	case failedState:
		info.Error = st.err.Error()
	}
	return info
}

// Snapshot 返回按键排序的条目诊断信息。
func (m *Manager) Snapshot() ([]EntryInfo, error) {
	inst, err := m.active()
	if err != nil {
		return nil, err
	}
	entries := inst.index.list()
	out := make([]EntryInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.info())
	}
	return out, nil
}

// Stats 统计各状态条目数、Ready 字节数与根目录下的文件。
func (m *Manager) Stats() (Stats, error) {
	inst, err := m.active()
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Root: inst.root, Capacity: inst.capacity}
	for _, e := range inst.index.list() {
		info := e.info()
		stats.Entries++
		switch info.State {
		case StateIdle.String():
			stats.Idle++
		case StateDownloading.String():
			stats.Downloading++
		case StateReady.String():
			stats.Ready++
			stats.ReadyBytes += info.SizeBytes
		case StateFailed.String():
			stats.Failed++
		}
	}

	m.observeStats(stats)

	objects, err := inst.store.List()
	if err != nil {
		return stats, err
	}
	for _, obj := range objects {
		stats.DiskFiles++
		stats.DiskBytes += obj.SizeBytes
	}
	avail, err := inst.store.Available()
	if err != nil {
		avail = -1
	}
	stats.AvailableBytes = avail
	return stats, nil
}
