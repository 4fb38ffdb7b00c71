// Package bootstrap turns an AppConfig into a ready Dispatcher.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/strongdm/crashdispatch/internal/config"
	"github.com/strongdm/crashdispatch/pkg/dispatch"
	"github.com/strongdm/crashdispatch/pkg/dispatch/clients/httpclient"
	"github.com/strongdm/crashdispatch/pkg/dispatch/clients/instrumented"
	"github.com/strongdm/crashdispatch/pkg/dispatch/clients/multi"
	"github.com/strongdm/crashdispatch/pkg/dispatch/clients/noop"
	"github.com/strongdm/crashdispatch/pkg/dispatch/clients/redisqueue"
	"github.com/strongdm/crashdispatch/pkg/dispatch/clients/stderr"
	"github.com/strongdm/crashdispatch/pkg/dispatch/executor"
)

// App holds a configured Dispatcher and the resources it depends on.
type App struct {
	Dispatcher *dispatch.Dispatcher
	Metrics    *dispatch.Metrics
	Executor   dispatch.Executor

	closers []func() error
}

// Build wires a Dispatcher from cfg. registrar may be nil.
func Build(cfg *config.AppConfig, logger *slog.Logger, registrar dispatch.Registrar) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{}

	if cfg.Metrics.Enabled {
		app.Metrics = dispatch.NewMetrics()
	}

	factory, err := app.clientFactory(cfg, logger)
	if err != nil {
		_ = app.closeResources()
		return nil, err
	}

	app.Executor = NewExecutor(cfg.Executor, logger)

	opts := []dispatch.Option{
		dispatch.WithLogger(logger),
		dispatch.WithMetrics(app.Metrics),
	}
	if registrar != nil {
		opts = append(opts, dispatch.WithRegistrar(registrar))
	}
	if cfg.Scrubbing {
		opts = append(opts, dispatch.WithDefaultScrubbing())
	}
	if cfg.Environment {
		opts = append(opts, dispatch.WithEnvironment())
	}

	d, err := dispatch.New(factory, app.Executor, opts...)
	if err != nil {
		_ = app.closeResources()
		return nil, fmt.Errorf("create dispatcher: %w", err)
	}
	app.Dispatcher = d

	logger.Info("dispatcher configured",
		"clients", cfg.Client.Kinds,
		"executor", cfg.Executor.Mode,
		"exclusions", d.Exclusions().Len(),
	)
	return app, nil
}

// NewExecutor builds the executor selected by cfg. An empty mode means the
// caller's goroutine runs each send.
func NewExecutor(cfg config.ExecutorConfig, logger *slog.Logger) dispatch.Executor {
	switch cfg.Mode {
	case config.ExecutorGoroutine:
		return executor.NewGoroutine()
	case config.ExecutorPool:
		capacity := config.DefaultQueueCapacity
		if cfg.QueueCapacity != nil {
			capacity = *cfg.QueueCapacity
		}
		return executor.NewPool(
			executor.WithWorkers(cfg.Workers),
			executor.WithQueueCapacity(capacity),
			executor.WithOnRejected(func() {
				logger.Debug("report pool saturated", "workers", cfg.Workers, "queue_capacity", capacity)
			}),
		)
	default:
		return executor.Sync()
	}
}

// clientFactory builds one factory per configured kind and fans out when
// more than one is configured.
func (a *App) clientFactory(cfg *config.AppConfig, logger *slog.Logger) (dispatch.ClientFactory, error) {
	factories := make([]dispatch.ClientFactory, 0, len(cfg.Client.Kinds))

	for _, kind := range cfg.Client.Kinds {
		switch kind {
		case config.ClientHTTP:
			httpCfg := httpclient.Config{
				Endpoint:       cfg.Client.HTTP.Endpoint,
				APIKey:         cfg.Client.HTTP.APIKey,
				Version:        cfg.Version,
				Tags:           cfg.Tags,
				ConnectTimeout: cfg.Client.HTTP.ConnectTimeout,
				RequestTimeout: cfg.Client.HTTP.RequestTimeout,
			}
			if p := cfg.Client.HTTP.Proxy; p != nil {
				httpCfg.Proxy = &httpclient.Proxy{Host: p.Host, Port: p.Port}
			}
			f, err := httpclient.Factory(httpCfg)
			if err != nil {
				return nil, err
			}
			factories = append(factories, f)

		case config.ClientRedis:
			rdb := redis.NewClient(&redis.Options{
				Addr:     cfg.Client.Redis.Addr,
				Password: cfg.Client.Redis.Password,
				DB:       cfg.Client.Redis.DB,
			})
			a.closers = append(a.closers, rdb.Close)
			factories = append(factories, redisqueue.Factory(rdb,
				redisqueue.WithKey(cfg.Client.Redis.Key),
				redisqueue.WithMaxLen(cfg.Client.Redis.MaxLen),
				redisqueue.WithVersion(cfg.Version),
				redisqueue.WithTags(cfg.Tags...),
			))

		case config.ClientStderr:
			var opts []stderr.Option
			if cfg.Client.Stderr.Verbose {
				opts = append(opts, stderr.WithVerbose())
			}
			factories = append(factories, stderr.Factory(opts...))

		case config.ClientNoop:
			factories = append(factories, noop.Factory())

		default:
			return nil, fmt.Errorf("unknown client kind %q", kind)
		}
	}

	var factory dispatch.ClientFactory
	switch len(factories) {
	case 0:
		factory = noop.Factory()
	case 1:
		factory = factories[0]
	default:
		factory = multi.Factory(factories...)
	}

	if cfg.Client.Instrument {
		factory = instrumented.Factory(factory,
			instrumented.WithMetrics(a.Metrics),
			instrumented.WithLogger(logger),
		)
	}
	return factory, nil
}

// Close shuts the dispatcher down, then releases shared connections.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Dispatcher != nil {
		errs = append(errs, a.Dispatcher.Close(ctx))
	}
	errs = append(errs, a.closeResources())
	return errors.Join(errs...)
}

func (a *App) closeResources() error {
	var errs []error
	for _, closeFn := range a.closers {
		errs = append(errs, closeFn())
	}
	a.closers = nil
	return errors.Join(errs...)
}
