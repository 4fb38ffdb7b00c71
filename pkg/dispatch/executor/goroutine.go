package executor

import (
	"context"
	"sync"

	"github.com/strongdm/crashdispatch/pkg/dispatch"
)

// Goroutine runs every task on its own goroutine. It never refuses work
// until it is closed.
type Goroutine struct {
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewGoroutine creates an unbounded asynchronous executor.
func NewGoroutine() *Goroutine {
	return &Goroutine{}
}

// Execute starts task on a new goroutine.
func (g *Goroutine) Execute(task func()) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return dispatch.ErrExecutorClosed
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		runTask(task)
	}()
	return nil
}

// Close refuses new tasks and waits for running ones or for ctx to end.
func (g *Goroutine) Close(ctx context.Context) error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()

	return waitGroupContext(ctx, &g.wg)
}

// waitGroupContext waits for wg or returns ctx.Err() first.
func waitGroupContext(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
