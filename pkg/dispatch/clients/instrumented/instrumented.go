// Package instrumented decorates a report client with tracing, metrics and
// logging of send outcomes.
//
// The dispatcher never looks at what Send returned; wrap the client with
// this package to make failed deliveries visible.
package instrumented

import (
	"context"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/strongdm/crashdispatch/pkg/dispatch"
)

// TracerName is the instrumentation scope used when no tracer is supplied.
const TracerName = "github.com/strongdm/crashdispatch"

// Option configures the decorator.
type Option func(*instrumentedConfig)

type instrumentedConfig struct {
	metrics *dispatch.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
}

// WithMetrics records send status and latency.
func WithMetrics(m *dispatch.Metrics) Option {
	return func(c *instrumentedConfig) {
		c.metrics = m
	}
}

// WithLogger logs failed sends (default: slog.Default()).
func WithLogger(logger *slog.Logger) Option {
	return func(c *instrumentedConfig) {
		c.logger = logger
	}
}

// WithTracer sets the tracer (default: otel.Tracer(TracerName)).
func WithTracer(tracer trace.Tracer) Option {
	return func(c *instrumentedConfig) {
		c.tracer = tracer
	}
}

type instrumentedClient struct {
	inner   dispatch.ReportClient
	metrics *dispatch.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
}

// Wrap decorates inner.
func Wrap(inner dispatch.ReportClient, opts ...Option) dispatch.ReportClient {
	cfg := &instrumentedConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.tracer == nil {
		cfg.tracer = otel.Tracer(TracerName)
	}
	return &instrumentedClient{
		inner:   inner,
		metrics: cfg.metrics,
		logger:  cfg.logger,
		tracer:  cfg.tracer,
	}
}

// Factory decorates every client produced by inner.
func Factory(inner dispatch.ClientFactory, opts ...Option) dispatch.ClientFactory {
	return dispatch.ClientFactoryFunc(func() (dispatch.ReportClient, error) {
		client, err := inner.NewClient()
		if err != nil {
			return nil, err
		}
		return Wrap(client, opts...), nil
	})
}

// Send forwards to the inner client inside a span and records the outcome.
func (c *instrumentedClient) Send(ctx context.Context, report dispatch.Report) error {
	ctx, span := c.tracer.Start(ctx, "crashdispatch.send",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("crashdispatch.report_id", report.ID),
			attribute.String("crashdispatch.failure_type", report.FailureType),
			attribute.String("crashdispatch.fingerprint", report.Fingerprint),
			attribute.Int("crashdispatch.tags", len(report.Tags)),
		),
	)
	defer span.End()

	start := time.Now()
	err := c.inner.Send(ctx, report)
	c.metrics.RecordSend(err, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("report send failed",
			"report_id", report.ID,
			"type", report.FailureType,
			"error", err,
		)
		return err
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// Close closes the inner client if it implements io.Closer.
func (c *instrumentedClient) Close() error {
	if closer, ok := c.inner.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
