package cache

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// pool 限制并发下载数。提交不阻塞：每个任务一个 goroutine，在信号量上排队。
type pool struct {
	sem *semaphore.Weighted

	// queueCtx 在 close 时取消，只影响尚未拿到槽位的任务；已开始的下载跑完为止。
	queueCtx context.Context
	cancel   context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func newPool(workers int) *pool {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &pool{
		sem:      semaphore.NewWeighted(int64(workers)),
		queueCtx: ctx,
		cancel:   cancel,
	}
}

// submit 排队执行 task；pool 已关闭或排队期间被关闭时改为调用 rejected。
func (p *pool) submit(task func(ctx context.Context), rejected func(error)) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		rejected(ErrClosed)
		return
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(p.queueCtx, 1); err != nil {
			rejected(ErrClosed)
			return
		}
		defer p.sem.Release(1)
		task(context.Background())
	}()
}

// close 拒绝新任务，取消排队中的任务，并等待运行中的下载结束。
func (p *pool) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}
