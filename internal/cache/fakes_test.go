package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/amv-media/amvcache/internal/fetch"
)

const fakeBody = "fake media payload"

// fakeDownloader 通过真实的 Backend 落盘，可按 URI 注入失败，也可整体阻塞。
type fakeDownloader struct {
	mu      sync.Mutex
	calls   map[string]int
	fail    map[string]error
	gate    chan struct{}
	started chan struct{}
}

func newFakeDownloader() *fakeDownloader {
	return &fakeDownloader{
		calls:   make(map[string]int),
		fail:    make(map[string]error),
		started: make(chan struct{}, 64),
	}
}

func (f *fakeDownloader) Fetch(ctx context.Context, req fetch.Request) (fetch.Result, error) {
	f.mu.Lock()
	f.calls[req.URI]++
	failErr := f.fail[req.URI]
	gate := f.gate
	f.mu.Unlock()

	select {
	case f.started <- struct{}{}:
	default:
	}
	if gate != nil {
		<-gate
	}
	if failErr != nil {
		return fetch.Result{}, failErr
	}

	tmp, err := req.Target.CreateTemp()
	if err != nil {
		return fetch.Result{}, err
	}
	if _, err := tmp.WriteString(fakeBody); err != nil {
		tmp.Close()
		return fetch.Result{}, err
	}
	if err := tmp.Close(); err != nil {
		return fetch.Result{}, err
	}
	if req.Progress != nil {
		req.Progress(int64(len(fakeBody)), int64(len(fakeBody)))
	}
	obj, err := req.Target.Commit(tmp.Name(), req.Name)
	if err != nil {
		return fetch.Result{}, err
	}
	return fetch.Result{Path: obj.Path, SizeBytes: obj.SizeBytes}, nil
}

// block 让后续下载停在闸门处，返回的函数放行全部下载（可重复调用）。
func (f *fakeDownloader) block() func() {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			f.gate = nil
			f.mu.Unlock()
			close(gate)
		})
	}
}

func (f *fakeDownloader) failWith(uri string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, uri)
		return
	}
	f.fail[uri] = err
}

func (f *fakeDownloader) count(uri string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[uri]
}

func (f *fakeDownloader) waitStarted(t *testing.T) {
	t.Helper()
	select {
	case <-f.started:
	case <-time.After(2 * time.Second):
		t.Fatal("download did not start")
	}
}

// fakeClock 每次读取前进一秒，保证 lastAccess 严格递增。
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestManager(t *testing.T, capacity int) (*Manager, *fakeDownloader) {
	t.Helper()
	dl := newFakeDownloader()
	m := New(Options{
		Downloader: dl,
		MaxWorkers: 2,
		Clock:      newFakeClock().Now,
	})
	require.NoError(t, m.Initialize(t.TempDir(), capacity))
	t.Cleanup(func() { m.Close() })
	return m, dl
}
