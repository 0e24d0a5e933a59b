package cache

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amv-media/amvcache/internal/fetch"
	"github.com/amv-media/amvcache/internal/logging"
	"github.com/amv-media/amvcache/internal/metrics"
	"github.com/amv-media/amvcache/internal/storage"
)

// Downloader 执行实际的远端下载，fetch.Downloader 为默认实现。
type Downloader interface {
	Fetch(ctx context.Context, req fetch.Request) (fetch.Result, error)
}

// CallbackMode 决定回调在哪个 goroutine 上投递。
type CallbackMode string

const (
	// CallbackInline 在解析出结果的 goroutine 上投递：命中时为调用方，下载完成时为下载 worker。
	CallbackInline CallbackMode = "inline"
	// CallbackAsync 每轮投递新起一个 goroutine。
	CallbackAsync CallbackMode = "async"
)

// Options 注入 Manager 的依赖，零值字段使用默认值。
type Options struct {
	Downloader   Downloader
	Logger       *logrus.Logger
	MaxWorkers   int
	CallbackMode CallbackMode
	// Clock 用于 lastAccess，测试可注入单调时钟。
	Clock func() time.Time
	// OpenStorage 在 Initialize 时打开根目录，默认 storage.NewLocal。
	OpenStorage func(root string) (storage.Backend, error)
	// Metrics 为空时不采集指标。
	Metrics *metrics.Metrics
}

// Manager 是缓存子系统的门面：显式构造、Initialize 后使用、Close 释放。
type Manager struct {
	downloader Downloader
	logger     *logrus.Logger
	workers    int
	mode       CallbackMode
	now        func() time.Time
	open       func(root string) (storage.Backend, error)
	metrics    *metrics.Metrics

	mu     sync.RWMutex
	inst   *instance
	closed bool
}

// instance 汇总 Initialize 之后才存在的运行时状态。
type instance struct {
	root     string
	capacity int
	store    storage.Backend
	index    *index
	pool     *pool
}

// New 构造尚未初始化的 Manager。
func New(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	downloader := opts.Downloader
	if downloader == nil {
		downloader = fetch.New(fetch.Options{Logger: logger})
	}
	mode := opts.CallbackMode
	if mode == "" {
		mode = CallbackInline
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	open := opts.OpenStorage
	if open == nil {
		open = func(root string) (storage.Backend, error) {
			return storage.NewLocal(root)
		}
	}
	return &Manager{
		downloader: downloader,
		logger:     logger,
		workers:    opts.MaxWorkers,
		mode:       mode,
		now:        clock,
		open:       open,
		metrics:    opts.Metrics,
	}
}

// Initialize 打开缓存根目录并设置容量。相同参数重复调用是幂等的，
// 参数不同则返回 ErrAlreadyInitialized，不会悄悄改配置。
func (m *Manager) Initialize(root string, capacity int) error {
	if capacity <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	if root == "" {
		return errors.New("cache root required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve cache root: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.inst != nil {
		if m.inst.root == abs && m.inst.capacity == capacity {
			return nil
		}
		return fmt.Errorf("%w: have %s/%d, got %s/%d",
			ErrAlreadyInitialized, m.inst.root, m.inst.capacity, abs, capacity)
	}

	store, err := m.open(abs)
	if err != nil {
		return fmt.Errorf("%w: open cache root: %w", ErrStorage, err)
	}
	m.inst = &instance{
		root:     abs,
		capacity: capacity,
		store:    store,
		index:    newIndex(capacity),
		pool:     newPool(m.workers),
	}

	m.logger.WithFields(logrus.Fields{
		"action":      "cache_init",
		"root":        abs,
		"capacity":    capacity,
		"max_workers": m.workers,
		"callbacks":   string(m.mode),
	}).Info("cache_initialized")
	return nil
}

// Close 拒绝新下载，等待进行中的下载完成（其等待者仍会收到结果），之后所有操作返回 ErrClosed。
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	inst := m.inst
	m.mu.Unlock()

	if inst != nil {
		inst.pool.close()
	}
	m.logger.WithField("action", "cache_close").Info("cache_closed")
	return nil
}

func (m *Manager) active() (*instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	if m.inst == nil {
		return nil, ErrNotInitialized
	}
	return m.inst, nil
}

// GetCache 返回 uri 对应条目的句柄，不存在时创建；不发起任何下载。
// listener 可为空，用于观察经由该句柄加入的下载进度。
func (m *Manager) GetCache(uri string, listener ProgressFunc) (*Handle, error) {
	return m.GetCacheKeyed(uri, "", listener)
}

// GetCacheKeyed 与 GetCache 相同，但 key 非空时以它代替由 uri 推导的键。
// 同一 key 的不同 uri 共享一个条目，下次下载使用最近一次请求的 uri。
func (m *Manager) GetCacheKeyed(uri, key string, listener ProgressFunc) (*Handle, error) {
	inst, err := m.active()
	if err != nil {
		return nil, err
	}
	k, source, err := resolveKey(uri, key)
	if err != nil {
		return nil, err
	}

	e, reused := m.resolve(inst, k, source)
	if reused {
		m.evict(inst)
	}
	return &Handle{m: m, key: k, uri: source, entry: e, progress: listener}, nil
}

// Peek 查找已存在的条目，不创建。
func (m *Manager) Peek(uri string) (*Handle, bool, error) {
	inst, err := m.active()
	if err != nil {
		return nil, false, err
	}
	key, err := NormalizeKey(uri)
	if err != nil {
		return nil, false, err
	}
	return m.peek(inst, key)
}

// PeekKey 按 GetCacheKeyed 使用的显式键查找条目。
func (m *Manager) PeekKey(key string) (*Handle, bool, error) {
	inst, err := m.active()
	if err != nil {
		return nil, false, err
	}
	k, err := ExplicitKey(key)
	if err != nil {
		return nil, false, err
	}
	return m.peek(inst, k)
}

func (m *Manager) peek(inst *instance, key Key) (*Handle, bool, error) {
	e, ok := inst.index.lookup(key)
	if !ok {
		return nil, false, nil
	}
	e.mu.Lock()
	uri := e.uri
	e.mu.Unlock()
	return &Handle{m: m, key: key, uri: uri, entry: e}, true, nil
}

// HasCache 判断键是否在索引中，或根目录下已有对应文件。
func (m *Manager) HasCache(uri string) (bool, error) {
	return m.HasCacheKeyed(uri, "")
}

// HasCacheKeyed 与 HasCache 相同，key 非空时按显式键判断。
func (m *Manager) HasCacheKeyed(uri, key string) (bool, error) {
	inst, err := m.active()
	if err != nil {
		return false, err
	}
	k, _, err := resolveKey(uri, key)
	if err != nil {
		return false, err
	}
	if _, ok := inst.index.lookup(k); ok {
		return true, nil
	}
	return inst.store.Exists(inst.store.NameFor(string(k))), nil
}

// resolve 查找或创建条目；新建时若磁盘上已有文件则直接以 Ready 状态复用。
// 第二个返回值表示是否复用了磁盘文件（需要检查容量）。
func (m *Manager) resolve(inst *instance, key Key, uri string) (*entry, bool) {
	reused := false
	e, _ := inst.index.getOrCreate(key, func() *entry {
		e := newEntry(key, uri, inst.store.NameFor(string(key)))
		obj, err := inst.store.Stat(e.name)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				m.logEntry(e, "stat").WithError(err).Warn("cache_stat_failed")
			}
			m.logEntry(e, "create").Debug("cache_entry_created")
			return e
		}
		now := m.now()
		e.state = readyState{path: obj.Path, size: obj.SizeBytes}
		e.lastAccess = now
		if err := inst.store.Touch(e.name, now); err != nil {
			m.logEntry(e, "touch").WithError(err).Warn("cache_touch_failed")
		}
		reused = true
		m.logEntry(e, "reuse").WithField("size_bytes", obj.SizeBytes).Info("cache_entry_reused")
		return e
	})
	return e, reused
}

// request 在条目上执行一次 GetFile。条目已离开索引时返回 false，由句柄重新解析。
func (m *Manager) request(inst *instance, e *entry, w waiter) bool {
	e.mu.Lock()
	if e.detached {
		e.mu.Unlock()
		return false
	}

	switch st := e.state.(type) {
	case readyState:
		now := m.now()
		e.lastAccess = now
		start := e.enqueueLocked(delivery{handle: w.handle, cb: w.cb, path: st.path})
		e.mu.Unlock()
		if err := inst.store.Touch(e.name, now); err != nil {
			m.logEntry(e, "touch").WithError(err).Debug("cache_touch_failed")
		}
		m.logEntry(e, "get_file").Debug("cache_hit")
		m.observeLookup(lookupHit)
		if start {
			m.dispatch(inst, e)
		}
	case downloadingState:
		st.waiters = append(st.waiters, w)
		e.state = st
		waiting := len(st.waiters)
		e.mu.Unlock()
		m.logEntry(e, "get_file").WithField("waiters", waiting).Debug("cache_join_download")
		m.observeLookup(lookupJoined)
	default:
		// idle 或 failed：清除旧错误并发起唯一一次下载。
		if w.handle != nil && w.handle.uri != "" {
			e.uri = w.handle.uri
		}
		uri := e.uri
		e.state = downloadingState{waiters: []waiter{w}}
		e.mu.Unlock()
		m.logEntry(e, "get_file").Debug("cache_miss")
		m.observeLookup(lookupMiss)
		m.startDownload(inst, e, uri)
	}
	return true
}

func (m *Manager) startDownload(inst *instance, e *entry, uri string) {
	inst.pool.submit(func(ctx context.Context) {
		started := m.now()
		res, err := m.downloader.Fetch(ctx, fetch.Request{
			URI:      uri,
			Name:     e.name,
			Target:   inst.store,
			Progress: e.reportProgress,
		})
		m.complete(inst, e, res, err, started)
	}, func(err error) {
		m.complete(inst, e, fetch.Result{}, err, m.now())
	})
}

// complete 原子地切换条目状态，把等待者转入投递队列，淘汰超额条目后再投递回调。
// 刚完成的条目在投递结束前不可淘汰，因此本轮不会删掉正要交给等待者的文件。
func (m *Manager) complete(inst *instance, e *entry, res fetch.Result, err error, started time.Time) {
	start, waiters := m.finish(e, res, err)

	elapsed := m.now().Sub(started)
	m.observeDownload(res, err, elapsed)

	fields := logging.EntryFields(e.name, string(e.key), "")
	fields["action"] = "download"
	fields["waiters"] = waiters
	fields["elapsed_ms"] = elapsed.Milliseconds()
	if err != nil {
		fields["state"] = StateFailed.String()
		m.logger.WithFields(fields).WithError(err).Warn("download_failed")
	} else {
		fields["state"] = StateReady.String()
		fields["size_bytes"] = res.SizeBytes
		m.logger.WithFields(fields).Info("download_complete")
		m.evict(inst)
	}

	if start {
		m.dispatch(inst, e)
	}
}

// finish 把下载中的条目切换为 Ready 或 Failed，并把等待者转成待投递回调。
// 返回是否需要启动投递循环，以及等待者数量。
func (m *Manager) finish(e *entry, res fetch.Result, err error) (bool, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, _ := e.state.(downloadingState)
	items := make([]delivery, 0, len(st.waiters))
	if err == nil {
		e.state = readyState{path: res.Path, size: res.SizeBytes}
		e.lastAccess = m.now()
	} else {
		e.state = failedState{err: err}
	}
	for _, w := range st.waiters {
		items = append(items, delivery{handle: w.handle, cb: w.cb, path: res.Path, err: err})
	}
	return e.enqueueLocked(items...), len(items)
}

// PutFile 将已有本地文件导入为 Ready 条目；move 为 true 时优先 rename。
// 键已在索引或磁盘上存在时返回 ErrExists。导入期间条目处于下载中状态，
// 并发的 GetFile 会等待导入结果，索引锁只在占位与失败回滚时持有。
func (m *Manager) PutFile(uri, src string, move bool) (*Handle, error) {
	inst, err := m.active()
	if err != nil {
		return nil, err
	}
	key, err := NormalizeKey(uri)
	if err != nil {
		return nil, err
	}

	inst.index.mu.Lock()
	if _, ok := inst.index.entries[key]; ok {
		inst.index.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrExists, key)
	}
	e := newEntry(key, string(key), inst.store.NameFor(string(key)))
	if inst.store.Exists(e.name) {
		inst.index.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrExists, key)
	}
	e.state = downloadingState{}
	inst.index.entries[key] = e
	inst.index.mu.Unlock()

	obj, err := inst.store.Import(src, e.name, move)
	if err != nil {
		err = fmt.Errorf("%w: import %s: %w", ErrStorage, src, err)
		inst.index.mu.Lock()
		inst.index.removeLocked(e)
		e.mu.Lock()
		e.detached = true
		e.mu.Unlock()
		inst.index.mu.Unlock()
		if start, _ := m.finish(e, fetch.Result{}, err); start {
			m.dispatch(inst, e)
		}
		return nil, err
	}

	start, _ := m.finish(e, fetch.Result{Path: obj.Path, SizeBytes: obj.SizeBytes}, nil)
	m.logEntry(e, "put_file").WithField("size_bytes", obj.SizeBytes).Info("cache_entry_imported")
	m.evict(inst)
	if start {
		m.dispatch(inst, e)
	}
	return &Handle{m: m, key: key, uri: string(key), entry: e}, nil
}

// Clear 移除所有可移除的条目并删除其文件；下载中、被固定或投递中的条目保留。
func (m *Manager) Clear() error {
	inst, err := m.active()
	if err != nil {
		return err
	}

	inst.index.mu.Lock()
	defer inst.index.mu.Unlock()

	var errs []error
	removed := 0
	for _, e := range inst.index.entries {
		e.mu.Lock()
		_, downloading := e.state.(downloadingState)
		if downloading || e.refs > 0 || e.dispatching || len(e.queue) > 0 {
			e.mu.Unlock()
			continue
		}
		e.detached = true
		e.state = idleState{}
		e.mu.Unlock()

		inst.index.removeLocked(e)
		if err := inst.store.Remove(e.name); err != nil {
			errs = append(errs, err)
		}
		removed++
	}
	m.logger.WithFields(logrus.Fields{"action": "cache_clear", "removed": removed}).Info("cache_cleared")
	return errors.Join(errs...)
}

func (m *Manager) logEntry(e *entry, action string) *logrus.Entry {
	fields := logging.EntryFields(e.name, string(e.key), "")
	delete(fields, "state")
	fields["action"] = action
	return m.logger.WithFields(fields)
}
