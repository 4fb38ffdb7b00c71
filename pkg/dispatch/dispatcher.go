// dispatcher.go provides the Dispatcher, the entry point for reporting failures.

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

// Option configures a Dispatcher.
type Option func(*dispatcherConfig)

type dispatcherConfig struct {
	exclusions  *ExclusionRegistry
	registrar   Registrar
	logger      *slog.Logger
	metrics     *Metrics
	scrubber    *Scrubber
	environment bool
}

// WithExclusions shares an existing registry instead of creating an empty one.
func WithExclusions(r *ExclusionRegistry) Option {
	return func(c *dispatcherConfig) {
		c.exclusions = r
	}
}

// WithRegistrar populates the exclusion registry while the Dispatcher is built.
func WithRegistrar(r Registrar) Option {
	return func(c *dispatcherConfig) {
		c.registrar = r
	}
}

// WithLogger sets the logger (default: slog.Default()).
func WithLogger(logger *slog.Logger) Option {
	return func(c *dispatcherConfig) {
		c.logger = logger
	}
}

// WithMetrics records dispatch outcomes and client creation.
func WithMetrics(m *Metrics) Option {
	return func(c *dispatcherConfig) {
		c.metrics = m
	}
}

// WithScrubber redacts report messages, stack traces and data before sending.
func WithScrubber(cfg ScrubberConfig) Option {
	return func(c *dispatcherConfig) {
		c.scrubber = NewScrubber(cfg)
	}
}

// WithDefaultScrubbing enables scrubbing with production-safe defaults.
func WithDefaultScrubbing() Option {
	return func(c *dispatcherConfig) {
		c.scrubber = NewScrubber(DefaultScrubberConfig())
	}
}

// WithEnvironment attaches process metrics to every report.
func WithEnvironment() Option {
	return func(c *dispatcherConfig) {
		c.environment = true
	}
}

// Dispatcher decides whether a failure is reported and submits the send.
//
// Each worker (see WithWorker) gets its own ReportClient from the factory on
// its first non-excluded failure and keeps it until ReleaseWorker or Close.
// A Dispatcher is safe for concurrent use by any number of workers.
type Dispatcher struct {
	exclusions  *ExclusionRegistry
	clients     *workerClients
	executor    Executor
	logger      *slog.Logger
	metrics     *Metrics
	scrubber    *Scrubber
	environment bool
	startTime   time.Time
}

// New creates a Dispatcher that builds clients with factory and runs sends on executor.
func New(factory ClientFactory, executor Executor, opts ...Option) (*Dispatcher, error) {
	if factory == nil {
		return nil, fmt.Errorf("%w: the client factory must not be nil", ErrInvalidArgument)
	}
	if executor == nil {
		return nil, fmt.Errorf("%w: the executor must not be nil", ErrInvalidArgument)
	}

	cfg := &dispatcherConfig{
		registrar: NoopRegistrar{},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.exclusions == nil {
		cfg.exclusions = NewExclusionRegistry()
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	if err := cfg.registrar.RegisterExclusions(cfg.exclusions); err != nil {
		return nil, fmt.Errorf("register exclusions: %w", err)
	}

	d := &Dispatcher{
		exclusions:  cfg.exclusions,
		executor:    executor,
		logger:      cfg.logger,
		metrics:     cfg.metrics,
		scrubber:    cfg.scrubber,
		environment: cfg.environment,
		startTime:   time.Now(),
	}
	d.clients = &workerClients{
		factory: factory,
		onCreate: func(id WorkerID) {
			d.metrics.RecordClientCreated(id != "")
			d.logger.Debug("report client created", "worker", string(id))
		},
		onLateClose: func(id WorkerID, err error) {
			d.logger.Warn("report client close failed", "worker", string(id), "error", err)
		},
	}

	return d, nil
}

// Exclusions returns the registry consulted by Dispatch.
func (d *Dispatcher) Exclusions() *ExclusionRegistry {
	return d.exclusions
}

// Register excludes failures whose dynamic type is exactly t.
func (d *Dispatcher) Register(t reflect.Type) error {
	return d.exclusions.Register(t)
}

// Send reports failure without tags or data.
func (d *Dispatcher) Send(ctx context.Context, failure any) error {
	return d.Dispatch(ctx, NewRequest(failure, nil, nil))
}

// SendTags reports failure with the given tags. Duplicates collapse and
// empty tags are dropped.
func (d *Dispatcher) SendTags(ctx context.Context, failure any, tags ...string) error {
	return d.Dispatch(ctx, NewRequest(failure, NewTagSet(tags...), nil))
}

// SendTagSet reports failure with the given tag set.
func (d *Dispatcher) SendTagSet(ctx context.Context, failure any, tags TagSet) error {
	return d.Dispatch(ctx, NewRequest(failure, tags, nil))
}

// SendData reports failure with tags and custom data.
func (d *Dispatcher) SendData(ctx context.Context, failure any, tags TagSet, data map[string]string) error {
	return d.Dispatch(ctx, NewRequest(failure, tags, data))
}

// Dispatch reports req.
//
// It returns nil without side effects when the failure's dynamic type is
// excluded. Otherwise it obtains the calling worker's client and submits the
// send to the executor. With a synchronous executor the send has finished when
// Dispatch returns; with an asynchronous one it has only been accepted.
//
// A refusal by the executor is returned as is and the report is dropped.
// Errors returned by the client's Send are never seen here.
//
// Without a worker identity the client is built for this one report and
// closed, if it is an io.Closer, once the send has run or been refused.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) error {
	failure := req.Failure()
	if failure == nil {
		return fmt.Errorf("%w: the failure must not be nil", ErrInvalidArgument)
	}

	failureType := reflect.TypeOf(failure)
	if d.exclusions.IsExcluded(failureType) {
		d.metrics.RecordDispatch(OutcomeExcluded)
		d.logger.Debug("failure excluded from reporting", "type", failureType.String())
		return nil
	}

	worker := WorkerFromContext(ctx)
	entry, err := d.clients.clientFor(worker)
	if err != nil {
		d.metrics.RecordDispatch(OutcomeFailed)
		return fmt.Errorf("create report client: %w", err)
	}

	report := d.buildReport(req, worker)

	// The send may outlive the caller's request.
	sendCtx := context.WithoutCancel(ctx)
	done := sync.OnceFunc(entry.done)
	if err := d.executor.Execute(func() {
		defer done()
		_ = entry.client.Send(sendCtx, report)
	}); err != nil {
		done()
		d.metrics.RecordDispatch(OutcomeRejected)
		d.logger.Warn("report submission refused",
			"type", report.FailureType,
			"report_id", report.ID,
			"error", err,
		)
		return err
	}

	d.metrics.RecordDispatch(OutcomeSubmitted)
	return nil
}

// buildReport turns req into a Report, applying scrubbing and fingerprinting.
func (d *Dispatcher) buildReport(req Request, worker WorkerID) Report {
	report := newReport(req, worker)

	if d.scrubber != nil {
		report.Message = d.scrubber.ScrubMessage(report.Message)
		report.StackTrace = d.scrubber.ScrubStackTrace(report.StackTrace)
		report.Data = d.scrubber.ScrubData(report.Data)
	}
	if d.environment {
		report.Environment = CaptureEnvironment(d.startTime)
	}

	report.Fingerprint = Fingerprint(report)
	return report
}

// ReleaseWorker ends the lifetime of a worker. Its client is dropped and
// closed if it implements io.Closer. Sends still queued on the executor keep
// the client open; the last of them closes it. The next report from the same
// identity builds a new client.
func (d *Dispatcher) ReleaseWorker(id WorkerID) error {
	released, err := d.clients.release(id)
	if released {
		d.metrics.RecordClientReleased()
	}
	return err
}

// Close shuts the executor down (when it supports it), waiting for queued
// sends up to ctx's deadline, then releases every cached client. A client
// whose sends are still running when the deadline passes is closed by its
// last send instead.
func (d *Dispatcher) Close(ctx context.Context) error {
	var errs []error
	if closer, ok := d.executor.(closableExecutor); ok {
		if err := closer.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close executor: %w", err))
		}
	}

	released, clientErrs := d.clients.releaseAll()
	for i := 0; i < released; i++ {
		d.metrics.RecordClientReleased()
	}
	errs = append(errs, clientErrs...)

	return errors.Join(errs...)
}
