// Package bench compares how many reports a blocking and a non-blocking
// dispatcher deliver in a fixed window when every send is slow.
package bench

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/strongdm/crashdispatch/pkg/dispatch"
	"github.com/strongdm/crashdispatch/pkg/dispatch/executor"
)

// Options configures a comparison run.
type Options struct {
	Sends   int           // dispatch calls per configuration
	Delay   time.Duration // artificial latency of every send
	Window  time.Duration // observation window
	Workers int           // pool size of the asynchronous configuration
}

// DefaultOptions returns 200 sends of 100ms each observed for one second on 8 workers.
func DefaultOptions() Options {
	return Options{
		Sends:   200,
		Delay:   100 * time.Millisecond,
		Window:  time.Second,
		Workers: 8,
	}
}

// Result holds the completed send counts at the end of the window.
type Result struct {
	Sync  int64
	Async int64
}

// DelayedClient sleeps before counting each report.
type DelayedClient struct {
	Delay time.Duration

	// Stop, when closed, aborts pending sleeps without counting.
	Stop <-chan struct{}

	sent atomic.Int64
}

// Send sleeps for Delay, then counts the report.
func (c *DelayedClient) Send(ctx context.Context, report dispatch.Report) error {
	select {
	case <-time.After(c.Delay):
	case <-c.Stop:
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}
	c.sent.Add(1)
	return nil
}

// Count returns the number of completed sends.
func (c *DelayedClient) Count() int64 {
	return c.sent.Load()
}

// Compare drives opts.Sends sequential dispatch calls through a synchronous
// and a pooled dispatcher at the same time and counts completed sends after
// opts.Window. Both dispatchers are closed before Compare returns, but the
// counts are taken at the end of the window.
func Compare(ctx context.Context, opts Options) (Result, error) {
	stop := make(chan struct{})
	stopSends := sync.OnceFunc(func() { close(stop) })
	defer stopSends()

	syncClient := &DelayedClient{Delay: opts.Delay, Stop: stop}
	asyncClient := &DelayedClient{Delay: opts.Delay, Stop: stop}

	pool := executor.NewPool(
		executor.WithWorkers(opts.Workers),
		executor.WithQueueCapacity(executor.Unbounded),
	)

	syncDispatcher, err := dispatch.New(fixedFactory(syncClient), executor.Sync())
	if err != nil {
		return Result{}, err
	}
	asyncDispatcher, err := dispatch.New(fixedFactory(asyncClient), pool)
	if err != nil {
		return Result{}, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go drive(runCtx, syncDispatcher, opts.Sends)
	go drive(runCtx, asyncDispatcher, opts.Sends)

	select {
	case <-time.After(opts.Window):
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	result := Result{Sync: syncClient.Count(), Async: asyncClient.Count()}

	// Abort in-flight and queued sends instead of waiting them out.
	stopSends()
	cancel()
	closeCtx, closeCancel := context.WithTimeout(context.Background(), opts.Window)
	defer closeCancel()
	_ = syncDispatcher.Close(closeCtx)
	_ = asyncDispatcher.Close(closeCtx)

	return result, nil
}

// drive issues n sequential dispatch calls from a single worker.
func drive(ctx context.Context, d *dispatch.Dispatcher, n int) {
	ctx = dispatch.NewWorker(ctx)
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			return
		}
		_ = d.Send(ctx, fmt.Errorf("bench failure %d", i))
	}
}

// fixedFactory always returns client.
func fixedFactory(client dispatch.ReportClient) dispatch.ClientFactory {
	return dispatch.ClientFactoryFunc(func() (dispatch.ReportClient, error) {
		return client, nil
	})
}
