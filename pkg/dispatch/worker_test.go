package dispatch

import (
	"context"
	"errors"
	"testing"
)

func TestWorkerRoundTrip(t *testing.T) {
	ctx := WithWorker(context.Background(), "consumer-7")

	if got := WorkerFromContext(ctx); got != "consumer-7" {
		t.Errorf("WorkerFromContext = %q, want %q", got, "consumer-7")
	}
}

func TestWorkerFromContext_NotSet(t *testing.T) {
	if got := WorkerFromContext(context.Background()); got != "" {
		t.Errorf("WorkerFromContext = %q, want empty", got)
	}
}

func TestNewWorker_Unique(t *testing.T) {
	a := WorkerFromContext(NewWorker(context.Background()))
	b := WorkerFromContext(NewWorker(context.Background()))

	if a == "" || b == "" {
		t.Fatal("NewWorker should set a non-empty identity")
	}
	if a == b {
		t.Errorf("NewWorker produced the same identity twice: %q", a)
	}
}

func TestWorker_DerivedContextKeepsIdentity(t *testing.T) {
	ctx := WithWorker(context.Background(), "w1")
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if got := WorkerFromContext(ctx); got != "w1" {
		t.Errorf("WorkerFromContext = %q, want %q", got, "w1")
	}
}

func TestWorkerClients_CachesPerWorker(t *testing.T) {
	factory := &countingFactory{}
	created := 0
	w := &workerClients{factory: factory, onCreate: func(WorkerID) { created++ }}

	e1, err := w.clientFor("a")
	if err != nil {
		t.Fatalf("clientFor() error = %v", err)
	}
	e2, _ := w.clientFor("a")
	e3, _ := w.clientFor("b")

	if e1.client != e2.client {
		t.Error("the same worker should get the same client")
	}
	if e1.client == e3.client {
		t.Error("different workers should get different clients")
	}
	if created != 2 {
		t.Errorf("onCreate called %d times, want 2", created)
	}
	if w.size() != 2 {
		t.Errorf("size() = %d, want 2", w.size())
	}
}

func TestWorkerClients_FactoryErrorNotCached(t *testing.T) {
	factory := &countingFactory{err: errors.New("unavailable")}
	w := &workerClients{factory: factory}

	if _, err := w.clientFor("a"); err == nil {
		t.Fatal("clientFor() should return the factory error")
	}
	factory.err = nil
	if _, err := w.clientFor("a"); err != nil {
		t.Fatalf("clientFor() error = %v after factory recovered", err)
	}
	if n := factory.calls.Load(); n != 2 {
		t.Errorf("factory called %d times, want 2", n)
	}
}

func TestWorkerClients_ReleaseAll(t *testing.T) {
	factory := &countingFactory{}
	w := &workerClients{factory: factory}
	for _, id := range []WorkerID{"a", "b", "c"} {
		entry, err := w.clientFor(id)
		if err != nil {
			t.Fatalf("clientFor(%q) error = %v", id, err)
		}
		entry.done()
	}

	released, errs := w.releaseAll()

	if released != 3 || len(errs) != 0 {
		t.Errorf("releaseAll() = %d, %v; want 3, no errors", released, errs)
	}
	if w.size() != 0 {
		t.Errorf("size() = %d after releaseAll, want 0", w.size())
	}
	for i, c := range factory.clients {
		if !c.closed.Load() {
			t.Errorf("client %d was not closed", i)
		}
	}
}

func TestWorkerClients_ReleaseWaitsForPendingSends(t *testing.T) {
	factory := &countingFactory{}
	w := &workerClients{factory: factory}

	first, _ := w.clientFor("a")
	second, _ := w.clientFor("a")

	if _, err := w.release("a"); err != nil {
		t.Fatalf("release() error = %v", err)
	}
	client := factory.clients[0]
	if client.closed.Load() {
		t.Fatal("client closed while sends were pending")
	}

	first.done()
	if client.closed.Load() {
		t.Fatal("client closed before the last pending send finished")
	}
	second.done()
	if n := client.closes.Load(); n != 1 {
		t.Errorf("client closed %d times, want 1", n)
	}
}

func TestWorkerClients_ReleasedEntryNotReused(t *testing.T) {
	factory := &countingFactory{}
	w := &workerClients{factory: factory}

	entry, _ := w.clientFor("a")
	if _, err := w.release("a"); err != nil {
		t.Fatalf("release() error = %v", err)
	}
	if entry.acquire() {
		t.Error("acquire() succeeded on a released entry")
	}

	next, err := w.clientFor("a")
	if err != nil {
		t.Fatalf("clientFor() error = %v", err)
	}
	if next == entry {
		t.Error("clientFor() returned the released entry")
	}
	entry.done()
	next.done()
}

func TestWorkerClients_LateCloseErrorReported(t *testing.T) {
	closeErr := errors.New("close failed")
	var (
		gotID  WorkerID
		gotErr error
	)
	w := &workerClients{
		factory: ClientFactoryFunc(func() (ReportClient, error) { return failingCloser{err: closeErr}, nil }),
		onLateClose: func(id WorkerID, err error) {
			gotID, gotErr = id, err
		},
	}

	entry, _ := w.clientFor("a")
	if _, err := w.release("a"); err != nil {
		t.Fatalf("release() error = %v with a send pending", err)
	}
	entry.done()

	if gotID != "a" || !errors.Is(gotErr, closeErr) {
		t.Errorf("onLateClose got (%q, %v), want (a, %v)", gotID, gotErr, closeErr)
	}
}

type failingCloser struct {
	err error
}

func (failingCloser) Send(context.Context, Report) error { return nil }
func (c failingCloser) Close() error                     { return c.err }
