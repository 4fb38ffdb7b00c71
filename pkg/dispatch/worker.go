// worker.go carries worker identity through context.Context and caches one
// ReportClient per worker.

package dispatch

import (
	"context"
	"io"
	"sync"

	"github.com/google/uuid"
)

// WorkerID identifies an independent unit of execution, typically the
// goroutine serving one inbound request or one long-running consumer loop.
type WorkerID string

// Context key type (unexported to avoid collisions)
type workerKey struct{}

// WithWorker returns a context carrying the given worker identity.
// A context must not be shared by goroutines that run at the same time
// unless they should share one ReportClient.
func WithWorker(ctx context.Context, id WorkerID) context.Context {
	return context.WithValue(ctx, workerKey{}, id)
}

// NewWorker returns a context carrying a freshly generated worker identity.
func NewWorker(ctx context.Context) context.Context {
	return WithWorker(ctx, WorkerID(uuid.NewString()))
}

// WorkerFromContext extracts the worker identity from ctx.
// Returns the empty WorkerID if none is set.
func WorkerFromContext(ctx context.Context) WorkerID {
	id, _ := ctx.Value(workerKey{}).(WorkerID)
	return id
}

// clientEntry is one client plus the sends submitted against it that have not
// finished yet. A released entry closes its client when the last of those
// sends completes, or at once if none are pending.
type clientEntry struct {
	id     WorkerID
	client ReportClient

	mu       sync.Mutex
	inflight int
	released bool
	closed   bool

	// onLateClose receives the error of a close that ran after release
	// returned, on the goroutine of the last send.
	onLateClose func(id WorkerID, err error)
}

// acquire records one more pending send. It fails once the entry has been
// released, so callers never submit work to a client that may be closing.
func (e *clientEntry) acquire() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return false
	}
	e.inflight++
	return true
}

// done marks one pending send finished.
func (e *clientEntry) done() {
	e.mu.Lock()
	e.inflight--
	closeNow := e.shouldCloseLocked()
	e.mu.Unlock()

	if closeNow {
		if err := closeClient(e.client); err != nil && e.onLateClose != nil {
			e.onLateClose(e.id, err)
		}
	}
}

// release marks the entry released. The client is closed here when no send
// is pending; otherwise the last done call closes it and release returns nil.
func (e *clientEntry) release() error {
	e.mu.Lock()
	e.released = true
	closeNow := e.shouldCloseLocked()
	e.mu.Unlock()

	if closeNow {
		return closeClient(e.client)
	}
	return nil
}

func (e *clientEntry) shouldCloseLocked() bool {
	if e.released && e.inflight == 0 && !e.closed {
		e.closed = true
		return true
	}
	return false
}

func closeClient(client ReportClient) error {
	if closer, ok := client.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// workerClients maps each worker to the client created on its first report.
//
// A worker runs sequentially, so the load-then-store for a given key is never
// raced by another goroutine; sync.Map only protects the map structure shared
// across workers.
type workerClients struct {
	factory ClientFactory
	clients sync.Map // WorkerID -> *clientEntry

	// onCreate is called after the factory returns a new client.
	onCreate func(id WorkerID)
	// onLateClose is handed to every entry; see clientEntry.
	onLateClose func(id WorkerID, err error)
}

// clientFor returns the entry bound to id with one send already acquired,
// creating the client on first use. The caller must call done exactly once.
//
// The empty WorkerID gets a new, uncached entry on every call. It starts out
// released, so its client is closed as soon as that one send finishes.
func (w *workerClients) clientFor(id WorkerID) (*clientEntry, error) {
	if id != "" {
		if v, ok := w.clients.Load(id); ok {
			if entry := v.(*clientEntry); entry.acquire() {
				return entry, nil
			}
		}
	}

	client, err := w.factory.NewClient()
	if err != nil {
		return nil, err
	}
	if w.onCreate != nil {
		w.onCreate(id)
	}

	entry := &clientEntry{
		id:          id,
		client:      client,
		inflight:    1,
		released:    id == "",
		onLateClose: w.onLateClose,
	}
	if id != "" {
		w.clients.Store(id, entry)
	}
	return entry, nil
}

// release drops the client bound to id and closes it once its pending sends
// have finished, if it is an io.Closer. It reports whether a client was bound.
func (w *workerClients) release(id WorkerID) (bool, error) {
	v, ok := w.clients.LoadAndDelete(id)
	if !ok {
		return false, nil
	}
	return true, v.(*clientEntry).release()
}

// releaseAll drops every cached client and returns how many were dropped.
func (w *workerClients) releaseAll() (int, []error) {
	var (
		released int
		errs     []error
	)
	w.clients.Range(func(key, _ any) bool {
		ok, err := w.release(key.(WorkerID))
		if ok {
			released++
		}
		if err != nil {
			errs = append(errs, err)
		}
		return true
	})
	return released, errs
}

// size returns the number of cached clients.
func (w *workerClients) size() int {
	n := 0
	w.clients.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
