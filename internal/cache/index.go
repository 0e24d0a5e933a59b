package cache

import (
	"sort"
	"sync"
)

// index 是键到条目的映射。近期性由条目的 lastAccess 推导，不单独维护链表。
type index struct {
	mu       sync.Mutex
	capacity int
	entries  map[Key]*entry
}

func newIndex(capacity int) *index {
	return &index{
		capacity: capacity,
		entries:  make(map[Key]*entry),
	}
}

func (ix *index) lookup(key Key) (*entry, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	e, ok := ix.entries[key]
	return e, ok
}

// getOrCreate 在索引锁内完成查找与插入，并发创建同一键时只有一个条目胜出。
func (ix *index) getOrCreate(key Key, create func() *entry) (*entry, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if e, ok := ix.entries[key]; ok {
		return e, false
	}
	e := create()
	ix.entries[key] = e
	return e, true
}

// removeLocked 仅在映射仍指向 e 时删除，调用方持有 ix.mu。
func (ix *index) removeLocked(e *entry) bool {
	if cur, ok := ix.entries[e.key]; ok && cur == e {
		delete(ix.entries, e.key)
		return true
	}
	return false
}

// list 返回按键排序的条目快照。
func (ix *index) list() []*entry {
	ix.mu.Lock()
	out := make([]*entry, 0, len(ix.entries))
	for _, e := range ix.entries {
		out = append(out, e)
	}
	ix.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}
