package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 条目仍在投递回调时另一个下载完成，投递结束后容量必须恢复。
func TestCapacityRestoredAfterSlowDelivery(t *testing.T) {
	m, dl := newTestManager(t, 1)

	hA, err := m.GetCache(uriA, nil)
	require.NoError(t, err)
	entered := make(chan struct{})
	unblock := make(chan struct{})
	hA.GetFile(func(_ *Handle, _ string, err error) {
		assert.NoError(t, err)
		close(entered)
		<-unblock
	})
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("callback for a.mp4 not delivered")
	}

	mustFile(t, m, uriB)
	close(unblock)
	settle(t, hA)
	requireWithinCapacity(t, m)

	mustFile(t, m, uriB)
	requireWithinCapacity(t, m)
	require.Eventually(t, func() bool {
		keys := snapshotKeys(t, m)
		return len(keys) == 1 && keys[0] == key(t, uriB)
	}, time.Second, time.Millisecond)
	assert.Equal(t, 1, dl.count(uriA))
}

func TestReleaseRestoresCapacity(t *testing.T) {
	m, _ := newTestManager(t, 1)

	hA, err := m.GetCache(uriA, nil)
	require.NoError(t, err)
	require.NoError(t, hA.AddRef())
	pathA, err := hA.File(context.Background())
	require.NoError(t, err)

	hB, err := m.GetCache(uriB, nil)
	require.NoError(t, err)
	require.NoError(t, hB.AddRef())
	_, err = hB.File(context.Background())
	require.NoError(t, err)
	settle(t, hA)
	settle(t, hB)

	stats, err := m.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Ready, "pinned entries keep the cache over capacity")

	assert.Equal(t, 0, hA.Release())
	requireWithinCapacity(t, m)
	assert.NoFileExists(t, pathA)
	assert.Equal(t, []Key{key(t, uriB)}, snapshotKeys(t, m))
	assert.Equal(t, 0, hB.Release())
}

func TestEvictionTieBreaksByKey(t *testing.T) {
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := New(Options{
		Downloader: newFakeDownloader(),
		MaxWorkers: 2,
		Clock:      func() time.Time { return fixed },
	})
	require.NoError(t, m.Initialize(t.TempDir(), 2))
	t.Cleanup(func() { m.Close() })

	mustFile(t, m, uriC)
	mustFile(t, m, uriB)
	mustFile(t, m, uriA)

	require.Eventually(t, func() bool {
		stats, err := m.Stats()
		return err == nil && stats.Ready == 2
	}, time.Second, time.Millisecond)
	assert.Equal(t, []Key{key(t, uriA), key(t, uriC)}, snapshotKeys(t, m))
}

func TestCandidateStaleAfterHit(t *testing.T) {
	e := newEntry(key(t, uriA), uriA, "a")
	e.state = readyState{path: "/cache/a", size: 1}
	e.lastAccess = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	c := candidate{e: e, lastAccess: e.lastAccess}
	e.mu.Lock()
	defer e.mu.Unlock()
	assert.True(t, c.currentLocked())

	e.lastAccess = e.lastAccess.Add(time.Second)
	assert.False(t, c.currentLocked(), "a hit after the snapshot must not be evicted")

	e.lastAccess = c.lastAccess
	e.refs = 1
	assert.False(t, c.currentLocked(), "pinned entries are never candidates")
}

func requireWithinCapacity(t *testing.T, m *Manager) {
	t.Helper()
	require.Eventually(t, func() bool {
		stats, err := m.Stats()
		return err == nil && stats.Ready <= stats.Capacity
	}, time.Second, time.Millisecond, "ready entries stay above capacity")
}
