package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
)

// recordingClient captures reports for verification in tests.
type recordingClient struct {
	mu      sync.Mutex
	reports []Report
	sendErr error
	closed  atomic.Bool
	closes  atomic.Int32

	// sendsAfterClose counts sends that arrived on a closed client.
	sendsAfterClose atomic.Int32
}

func (c *recordingClient) Send(ctx context.Context, report Report) error {
	if c.closed.Load() {
		c.sendsAfterClose.Add(1)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = append(c.reports, report)
	return c.sendErr
}

func (c *recordingClient) Close() error {
	c.closes.Add(1)
	c.closed.Store(true)
	return nil
}

func (c *recordingClient) getReports() []Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]Report, len(c.reports))
	copy(result, c.reports)
	return result
}

// countingFactory builds a new recordingClient per call and counts calls.
type countingFactory struct {
	mu      sync.Mutex
	calls   atomic.Int32
	clients []*recordingClient
	err     error
}

func (f *countingFactory) NewClient() (ReportClient, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	client := &recordingClient{}
	f.mu.Lock()
	f.clients = append(f.clients, client)
	f.mu.Unlock()
	return client, nil
}

func (f *countingFactory) closedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.clients {
		if c.closed.Load() {
			n++
		}
	}
	return n
}

func (f *countingFactory) allReports() []Report {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []Report
	for _, c := range f.clients {
		all = append(all, c.getReports()...)
	}
	return all
}

// inline runs tasks on the caller and counts them.
type inline struct {
	tasks atomic.Int32
}

func (e *inline) Execute(task func()) error {
	e.tasks.Add(1)
	task()
	return nil
}

// queued holds tasks until run is called, like an executor whose workers
// are busy.
type queued struct {
	mu    sync.Mutex
	tasks []func()
}

func (e *queued) Execute(task func()) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tasks = append(e.tasks, task)
	return nil
}

func (e *queued) run() {
	e.mu.Lock()
	tasks := e.tasks
	e.tasks = nil
	e.mu.Unlock()
	for _, task := range tasks {
		task()
	}
}

// RuntimeFailure and IndexOutOfRange model a failure "hierarchy": the
// latter embeds the former and so shares its methods.
type RuntimeFailure struct {
	Msg string
}

func (e *RuntimeFailure) Error() string { return "runtime: " + e.Msg }

type IndexOutOfRange struct {
	RuntimeFailure
	Index int
}
