package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/strongdm/crashdispatch/pkg/dispatch"
)

// Unbounded is the queue capacity for a pool whose queue never fills.
const Unbounded = -1

// PoolOption configures a Pool.
type PoolOption func(*poolConfig)

type poolConfig struct {
	workers       int
	queueCapacity int
	onRejected    func()
}

// WithWorkers sets the maximum number of concurrent sends (default: 8).
func WithWorkers(n int) PoolOption {
	return func(c *poolConfig) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithQueueCapacity sets how many tasks may wait for a busy worker
// (default: 1000). Zero means a task is accepted only if a worker can start
// it right away; Unbounded (or any negative value) never refuses.
func WithQueueCapacity(n int) PoolOption {
	return func(c *poolConfig) {
		c.queueCapacity = n
	}
}

// WithOnRejected sets a callback invoked each time a task is refused.
func WithOnRejected(fn func()) PoolOption {
	return func(c *poolConfig) {
		c.onRejected = fn
	}
}

// Pool runs tasks on at most a fixed number of goroutines, started on demand,
// with a bounded FIFO queue in front of them. When every worker is busy and
// the queue is full, Execute refuses the task with dispatch.ErrRejected
// instead of blocking.
type Pool struct {
	workers    int
	capacity   int
	onRejected func()

	mu      sync.Mutex
	running int
	queue   []func()
	closed  bool
	wg      sync.WaitGroup
}

// NewPool creates a bounded pool executor.
func NewPool(opts ...PoolOption) *Pool {
	cfg := &poolConfig{
		workers:       8,
		queueCapacity: 1000,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	capacity := cfg.queueCapacity
	if capacity < 0 {
		capacity = Unbounded
	}

	return &Pool{
		workers:    cfg.workers,
		capacity:   capacity,
		onRejected: cfg.onRejected,
	}
}

// Execute starts task on an idle worker slot, queues it, or refuses it.
func (p *Pool) Execute(task func()) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return dispatch.ErrExecutorClosed
	}

	if p.running < p.workers {
		p.running++
		p.wg.Add(1)
		p.mu.Unlock()
		go p.work(task)
		return nil
	}

	if p.capacity == Unbounded || len(p.queue) < p.capacity {
		p.queue = append(p.queue, task)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if p.onRejected != nil {
		p.onRejected()
	}
	return fmt.Errorf("%w: %d workers busy and queue of %d full", dispatch.ErrRejected, p.workers, p.capacity)
}

// work runs task, then keeps draining the queue. The worker exits as soon
// as the queue is empty; the next Execute starts a new one.
func (p *Pool) work(task func()) {
	defer p.wg.Done()
	for {
		runTask(task)

		p.mu.Lock()
		if len(p.queue) == 0 {
			p.running--
			p.mu.Unlock()
			return
		}
		task = p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.mu.Unlock()
	}
}

// Running returns the number of busy workers.
func (p *Pool) Running() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Queued returns the number of tasks waiting for a worker.
func (p *Pool) Queued() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Close refuses new tasks and waits until queued and running tasks finish
// or ctx ends.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	return waitGroupContext(ctx, &p.wg)
}

// runTask runs task, containing a panic so the worker slot is not lost.
func runTask(task func()) {
	defer func() {
		_ = recover()
	}()
	task()
}
