package cache

import (
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// candidate 是在条目锁内取得的淘汰快照。
type candidate struct {
	e          *entry
	lastAccess time.Time
}

// currentLocked 判断快照是否仍然有效：条目仍可淘汰且期间没有被访问。调用方持有 c.e.mu。
func (c candidate) currentLocked() bool {
	return c.e.evictableLocked() && c.e.lastAccess.Equal(c.lastAccess)
}

// evict 在 Ready 条目数超过容量时，按 lastAccess 从旧到新淘汰（相同时按键排序）。
// 被固定、下载中或仍有待投递回调的条目跳过；没有可淘汰条目时停止，容量为软上限。
// 文件在索引锁内删除，避免与同键的重新创建交错。
func (m *Manager) evict(inst *instance) {
	inst.index.mu.Lock()
	defer inst.index.mu.Unlock()

	for {
		ready := 0
		var candidates []candidate
		for _, e := range inst.index.entries {
			e.mu.Lock()
			if _, ok := e.state.(readyState); ok {
				ready++
				if e.evictableLocked() {
					candidates = append(candidates, candidate{e: e, lastAccess: e.lastAccess})
				}
			}
			e.mu.Unlock()
		}
		if ready <= inst.index.capacity {
			return
		}
		if len(candidates) == 0 {
			m.logger.WithFields(logrus.Fields{
				"action":   "evict",
				"ready":    ready,
				"capacity": inst.index.capacity,
			}).Debug("cache_over_capacity")
			return
		}

		sort.Slice(candidates, func(i, j int) bool {
			a, b := candidates[i], candidates[j]
			if !a.lastAccess.Equal(b.lastAccess) {
				return a.lastAccess.Before(b.lastAccess)
			}
			return a.e.key < b.e.key
		})

		victim := candidates[0].e
		victim.mu.Lock()
		if !candidates[0].currentLocked() {
			// 快照之后被访问或固定，重新挑选。
			victim.mu.Unlock()
			continue
		}
		st := victim.state.(readyState)
		victim.state = idleState{}
		victim.detached = true
		victim.mu.Unlock()

		inst.index.removeLocked(victim)
		log := m.logEntry(victim, "evict").WithFields(logrus.Fields{
			"size_bytes": st.size,
			"ready":      ready - 1,
			"capacity":   inst.index.capacity,
		})
		if err := inst.store.Remove(victim.name); err != nil {
			log.WithError(err).Warn("cache_evict_remove_failed")
			continue
		}
		m.observeEviction()
		log.Info("cache_evicted")
	}
}
