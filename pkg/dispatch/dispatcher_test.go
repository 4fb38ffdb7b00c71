package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(t *testing.T, opts ...Option) (*Dispatcher, *countingFactory, *inline) {
	t.Helper()
	factory := &countingFactory{}
	exec := &inline{}
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	d, err := New(factory, exec, opts...)
	require.NoError(t, err)
	return d, factory, exec
}

func TestNew_RejectsNilCollaborators(t *testing.T) {
	_, err := New(nil, &inline{})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = New(&countingFactory{}, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestNew_AppliesRegistrar(t *testing.T) {
	d, _, _ := newTestDispatcher(t, WithRegistrar(RegistrarFunc(func(r *ExclusionRegistry) error {
		return Exclude[*IndexOutOfRange](r)
	})))

	assert.True(t, d.Exclusions().IsExcluded(reflect.TypeFor[*IndexOutOfRange]()))
}

func TestNew_RegistrarErrorFails(t *testing.T) {
	boom := errors.New("boom")
	_, err := New(&countingFactory{}, &inline{}, WithRegistrar(RegistrarFunc(func(*ExclusionRegistry) error {
		return boom
	})))
	assert.ErrorIs(t, err, boom)
}

func TestNew_SharesExclusionRegistry(t *testing.T) {
	shared := NewExclusionRegistry()
	d, _, _ := newTestDispatcher(t, WithExclusions(shared))

	require.NoError(t, d.Register(reflect.TypeFor[*RuntimeFailure]()))
	assert.True(t, shared.IsExcluded(reflect.TypeFor[*RuntimeFailure]()))
}

func TestDispatch_ExcludedTypeHasNoSideEffects(t *testing.T) {
	d, factory, exec := newTestDispatcher(t)
	require.NoError(t, Exclude[*IndexOutOfRange](d.Exclusions()))

	ctx := NewWorker(context.Background())
	require.NoError(t, d.Send(ctx, &IndexOutOfRange{Index: 3}))
	require.NoError(t, d.SendTags(ctx, &IndexOutOfRange{}, "a"))

	assert.Equal(t, int32(0), factory.calls.Load(), "no client must be created")
	assert.Equal(t, int32(0), exec.tasks.Load(), "no task must be submitted")
	assert.Empty(t, factory.allReports())
}

func TestDispatch_EmbeddedTypeRegisteredEmbeddingInstanceIsSent(t *testing.T) {
	d, factory, _ := newTestDispatcher(t)
	require.NoError(t, Exclude[*RuntimeFailure](d.Exclusions()))

	require.NoError(t, d.Send(NewWorker(context.Background()), &IndexOutOfRange{}))

	assert.Equal(t, int32(1), factory.calls.Load())
	assert.Len(t, factory.allReports(), 1)
}

func TestDispatch_EmbeddingTypeRegisteredEmbeddedInstanceIsSent(t *testing.T) {
	d, factory, _ := newTestDispatcher(t)
	require.NoError(t, Exclude[*IndexOutOfRange](d.Exclusions()))

	require.NoError(t, d.Send(NewWorker(context.Background()), &RuntimeFailure{}))

	assert.Equal(t, int32(1), factory.calls.Load())
}

func TestDispatch_WrappedExcludedTypeIsSent(t *testing.T) {
	d, factory, _ := newTestDispatcher(t)
	require.NoError(t, Exclude[*RuntimeFailure](d.Exclusions()))

	err := fmt.Errorf("handler: %w", &RuntimeFailure{Msg: "x"})
	require.NoError(t, d.Send(NewWorker(context.Background()), err))

	reports := factory.allReports()
	require.Len(t, reports, 1)
	assert.Equal(t, "*fmt.wrapError", reports[0].FailureType)
	assert.Equal(t, []string{"*dispatch.RuntimeFailure"}, reports[0].Causes)
}

func TestDispatch_NonErrorValues(t *testing.T) {
	d, factory, _ := newTestDispatcher(t)
	ctx := NewWorker(context.Background())

	require.NoError(t, d.Send(ctx, "plain string failure"))
	require.NoError(t, d.Send(ctx, 42))

	reports := factory.allReports()
	require.Len(t, reports, 2)
	assert.Equal(t, "string", reports[0].FailureType)
	assert.Equal(t, "plain string failure", reports[0].Message)
	assert.Equal(t, "42", reports[1].Message)

	// Exact type registration applies to non-error values too.
	require.NoError(t, Exclude[string](d.Exclusions()))
	require.NoError(t, d.Send(ctx, "suppressed"))
	assert.Len(t, factory.allReports(), 2)
}

func TestDispatch_NilFailure(t *testing.T) {
	d, factory, exec := newTestDispatcher(t)

	err := d.Send(context.Background(), nil)

	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, int32(0), factory.calls.Load())
	assert.Equal(t, int32(0), exec.tasks.Load())
}

func TestDispatch_SameWorkerCreatesOneClient(t *testing.T) {
	d, factory, _ := newTestDispatcher(t)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ctx := NewWorker(context.Background())
		assert.NoError(t, d.Send(ctx, &RuntimeFailure{}))
		assert.NoError(t, d.Send(ctx, &RuntimeFailure{}))
	}()
	wg.Wait()

	assert.Equal(t, int32(1), factory.calls.Load())
	assert.Len(t, factory.allReports(), 2)
}

func TestDispatch_TwoWorkersCreateTwoClients(t *testing.T) {
	d, factory, _ := newTestDispatcher(t)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx := NewWorker(context.Background())
			<-start
			assert.NoError(t, d.Send(ctx, &RuntimeFailure{}))
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(2), factory.calls.Load())
	factory.mu.Lock()
	defer factory.mu.Unlock()
	require.Len(t, factory.clients, 2)
	assert.NotSame(t, factory.clients[0], factory.clients[1])
	assert.Len(t, factory.clients[0].getReports(), 1)
	assert.Len(t, factory.clients[1].getReports(), 1)
}

func TestDispatch_ManyWorkersNeverShareClients(t *testing.T) {
	d, factory, _ := newTestDispatcher(t)
	const workers = 32
	const perWorker = 5

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx := NewWorker(context.Background())
			for j := 0; j < perWorker; j++ {
				assert.NoError(t, d.Send(ctx, &RuntimeFailure{}))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(workers), factory.calls.Load())
	factory.mu.Lock()
	defer factory.mu.Unlock()
	for _, client := range factory.clients {
		reports := client.getReports()
		require.Len(t, reports, perWorker)
		for _, r := range reports {
			assert.Equal(t, reports[0].Worker, r.Worker, "a client only serves one worker")
		}
	}
}

func TestDispatch_NoWorkerIdentityGetsUncachedClient(t *testing.T) {
	d, factory, _ := newTestDispatcher(t)

	require.NoError(t, d.Send(context.Background(), &RuntimeFailure{}))
	require.NoError(t, d.Send(context.Background(), &RuntimeFailure{}))

	assert.Equal(t, int32(2), factory.calls.Load())
	assert.Equal(t, 0, d.clients.size())
}

func TestDispatch_NoWorkerIdentityClosesClientAfterSend(t *testing.T) {
	d, factory, _ := newTestDispatcher(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, d.Send(context.Background(), &RuntimeFailure{}))
	}
	require.NoError(t, d.Close(context.Background()))

	assert.Equal(t, int32(5), factory.calls.Load())
	assert.Equal(t, 5, factory.closedCount(), "every one-off client is closed")
	assert.Len(t, factory.allReports(), 5)
}

func TestDispatch_NoWorkerIdentityClosesClientWhenQueuedSendRuns(t *testing.T) {
	factory := &countingFactory{}
	exec := &queued{}
	d, err := New(factory, exec)
	require.NoError(t, err)

	require.NoError(t, d.Send(context.Background(), &RuntimeFailure{}))
	assert.Equal(t, 0, factory.closedCount(), "closed before its send ran")

	exec.run()

	assert.Equal(t, 1, factory.closedCount())
	assert.Equal(t, int32(0), factory.clients[0].sendsAfterClose.Load())
	assert.Len(t, factory.allReports(), 1)
}

func TestDispatch_NoWorkerIdentityClosesClientOnRejection(t *testing.T) {
	factory := &countingFactory{}
	rejecting := ExecutorFunc(func(task func()) error {
		return fmt.Errorf("%w: queue full", ErrRejected)
	})
	d, err := New(factory, rejecting, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)

	require.ErrorIs(t, d.Send(context.Background(), &RuntimeFailure{}), ErrRejected)

	assert.Equal(t, 1, factory.closedCount())
}

func TestDispatch_TagsAndDataRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		send func(d *Dispatcher, ctx context.Context, failure error) error
	}{
		{"variadic", func(d *Dispatcher, ctx context.Context, f error) error {
			return d.Dispatch(ctx, NewRequest(f, NewTagSet("a", "b", "a", ""), map[string]string{"k": "v"}))
		}},
		{"set", func(d *Dispatcher, ctx context.Context, f error) error {
			return d.SendData(ctx, f, TagSet{"a": {}, "b": {}}, map[string]string{"k": "v"})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, factory, _ := newTestDispatcher(t)

			require.NoError(t, tt.send(d, NewWorker(context.Background()), &RuntimeFailure{Msg: "x"}))

			reports := factory.allReports()
			require.Len(t, reports, 1)
			assert.Equal(t, NewTagSet("a", "b"), reports[0].Tags)
			assert.Equal(t, map[string]string{"k": "v"}, reports[0].Data)
		})
	}
}

func TestDispatch_CallShapesNormalize(t *testing.T) {
	d, factory, _ := newTestDispatcher(t)
	ctx := NewWorker(context.Background())
	failure := &RuntimeFailure{Msg: "x"}

	require.NoError(t, d.Send(ctx, failure))
	require.NoError(t, d.SendTags(ctx, failure, "poppinparty", "morfonica", "poppinparty"))
	require.NoError(t, d.SendTagSet(ctx, failure, NewTagSet("poppinparty", "morfonica")))
	require.NoError(t, d.SendData(ctx, failure, NewTagSet("poppinparty"), map[string]string{"vocal": "mashiro", "bass": "nanami"}))

	reports := factory.allReports()
	require.Len(t, reports, 4)
	assert.Empty(t, reports[0].Tags)
	assert.Empty(t, reports[0].Data)
	assert.Equal(t, reports[1].Tags, reports[2].Tags)
	assert.Equal(t, map[string]string{"vocal": "mashiro", "bass": "nanami"}, reports[3].Data)
	assert.Equal(t, int32(1), factory.calls.Load())
}

func TestDispatch_ExecutorRejectionPropagates(t *testing.T) {
	factory := &countingFactory{}
	rejecting := ExecutorFunc(func(task func()) error {
		return fmt.Errorf("%w: queue full", ErrRejected)
	})
	d, err := New(factory, rejecting, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)

	err = d.Send(NewWorker(context.Background()), &RuntimeFailure{})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRejected)
	assert.Empty(t, factory.allReports(), "rejected report is dropped")
}

func TestDispatch_FactoryErrorPropagates(t *testing.T) {
	boom := errors.New("cannot build client")
	factory := &countingFactory{err: boom}
	exec := &inline{}
	d, err := New(factory, exec)
	require.NoError(t, err)

	err = d.Send(NewWorker(context.Background()), &RuntimeFailure{})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(0), exec.tasks.Load())
}

func TestDispatch_SendErrorIsIgnored(t *testing.T) {
	client := &recordingClient{sendErr: errors.New("backend down")}
	d, err := New(ClientFactoryFunc(func() (ReportClient, error) { return client, nil }), &inline{})
	require.NoError(t, err)

	assert.NoError(t, d.Send(NewWorker(context.Background()), &RuntimeFailure{}))
	assert.Len(t, client.getReports(), 1)
}

func TestDispatch_SendContextSurvivesCancellation(t *testing.T) {
	var sendCtx context.Context
	client := ClientFactoryFunc(func() (ReportClient, error) {
		return clientFunc(func(ctx context.Context, r Report) error {
			sendCtx = ctx
			return nil
		}), nil
	})
	var queued func()
	deferred := ExecutorFunc(func(task func()) error {
		queued = task
		return nil
	})
	d, err := New(client, deferred)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(NewWorker(context.Background()))
	require.NoError(t, d.Send(ctx, &RuntimeFailure{}))
	cancel()
	queued()

	require.NotNil(t, sendCtx)
	assert.NoError(t, sendCtx.Err())
	assert.Equal(t, WorkerFromContext(ctx), WorkerFromContext(sendCtx))
}

func TestDispatch_ReportFields(t *testing.T) {
	d, factory, _ := newTestDispatcher(t, WithEnvironment())
	ctx := WithWorker(context.Background(), "worker-1")

	require.NoError(t, d.Send(ctx, &RuntimeFailure{Msg: "disk full"}))

	reports := factory.allReports()
	require.Len(t, reports, 1)
	r := reports[0]
	assert.Len(t, r.ID, 36)
	assert.False(t, r.Timestamp.IsZero())
	assert.Equal(t, "*dispatch.RuntimeFailure", r.FailureType)
	assert.Equal(t, "runtime: disk full", r.Message)
	assert.NotEmpty(t, r.Fingerprint)
	assert.Equal(t, WorkerID("worker-1"), r.Worker)
	require.NotNil(t, r.Environment)
	assert.Positive(t, r.Environment.GoroutineCount)
}

func TestDispatch_Scrubbing(t *testing.T) {
	d, factory, _ := newTestDispatcher(t, WithDefaultScrubbing())

	failure := errors.New("login failed for user@example.com with password=hunter2")
	data := map[string]string{"api_key": "sk-live", "order": "42"}
	require.NoError(t, d.SendData(NewWorker(context.Background()), failure, nil, data))

	reports := factory.allReports()
	require.Len(t, reports, 1)
	assert.NotContains(t, reports[0].Message, "user@example.com")
	assert.NotContains(t, reports[0].Message, "hunter2")
	assert.Equal(t, "[REDACTED]", reports[0].Data["api_key"])
	assert.Equal(t, "42", reports[0].Data["order"])
	assert.Same(t, failure, reports[0].Failure, "the failure value itself is never rewritten")
}

func TestDispatch_StackTraceFromData(t *testing.T) {
	d, factory, _ := newTestDispatcher(t)

	data := map[string]string{StackTraceKey: "goroutine 1 [running]:\nmain.main()", "k": "v"}
	require.NoError(t, d.SendData(NewWorker(context.Background()), "boom", nil, data))

	reports := factory.allReports()
	require.Len(t, reports, 1)
	assert.True(t, strings.HasPrefix(reports[0].StackTrace, "goroutine 1"))
	assert.Equal(t, map[string]string{"k": "v"}, reports[0].Data)
}

func TestReleaseWorker_ClosesAndRecreates(t *testing.T) {
	d, factory, _ := newTestDispatcher(t)
	ctx := NewWorker(context.Background())
	id := WorkerFromContext(ctx)

	require.NoError(t, d.Send(ctx, &RuntimeFailure{}))
	require.NoError(t, d.ReleaseWorker(id))

	factory.mu.Lock()
	first := factory.clients[0]
	factory.mu.Unlock()
	assert.True(t, first.closed.Load())

	require.NoError(t, d.Send(ctx, &RuntimeFailure{}))
	assert.Equal(t, int32(2), factory.calls.Load())

	assert.NoError(t, d.ReleaseWorker("unknown"))
}

func TestClose_ReleasesClientsAndExecutor(t *testing.T) {
	factory := &countingFactory{}
	exec := &closingExecutor{}
	d, err := New(factory, exec)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, d.Send(NewWorker(context.Background()), &RuntimeFailure{}))
	}

	require.NoError(t, d.Close(context.Background()))

	assert.True(t, exec.closed)
	assert.Equal(t, 0, d.clients.size())
	factory.mu.Lock()
	defer factory.mu.Unlock()
	for _, c := range factory.clients {
		assert.True(t, c.closed.Load())
	}
}

func TestReleaseWorker_KeepsClientOpenForQueuedSends(t *testing.T) {
	factory := &countingFactory{}
	exec := &queued{}
	d, err := New(factory, exec)
	require.NoError(t, err)
	ctx := WithWorker(context.Background(), "conn-1")

	for i := 0; i < 3; i++ {
		require.NoError(t, d.Send(ctx, &RuntimeFailure{}))
	}
	require.NoError(t, d.ReleaseWorker("conn-1"))

	client := factory.clients[0]
	assert.False(t, client.closed.Load(), "closed with sends still queued")

	exec.run()

	assert.Equal(t, int32(0), client.sendsAfterClose.Load())
	assert.Equal(t, int32(1), client.closes.Load())
	assert.Len(t, client.getReports(), 3)
}

func TestClose_UndrainedExecutorLeavesBusyClientsOpen(t *testing.T) {
	factory := &countingFactory{}
	exec := &stuckExecutor{}
	d, err := New(factory, exec)
	require.NoError(t, err)

	require.NoError(t, d.Send(WithWorker(context.Background(), "a"), &RuntimeFailure{}))

	err = d.Close(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, d.clients.size())
	assert.Equal(t, 0, factory.closedCount(), "closed while its send was queued")

	exec.run()

	assert.Equal(t, 1, factory.closedCount())
	assert.Equal(t, int32(0), factory.clients[0].sendsAfterClose.Load())
}

type clientFunc func(ctx context.Context, r Report) error

func (f clientFunc) Send(ctx context.Context, r Report) error { return f(ctx, r) }

type closingExecutor struct {
	inline
	closed bool
}

func (e *closingExecutor) Close(ctx context.Context) error {
	e.closed = true
	return nil
}

// stuckExecutor never drains before Close gives up.
type stuckExecutor struct {
	queued
}

func (e *stuckExecutor) Close(ctx context.Context) error {
	return context.DeadlineExceeded
}
