// Package dispatch forwards application failures to a remote crash-reporting
// backend without blocking the code that caught them.
//
// A Dispatcher decides, for every failure handed to it, whether the failure is
// reported at all and, if so, submits the send to an Executor. Report clients
// are expensive to build, so each worker reuses the one client it was given on
// its first report.
//
// # Core Components
//
//   - ExclusionRegistry: exact-type suppression list, populated before traffic
//   - Dispatcher: exclusion check, worker-scoped client lookup, executor submit
//   - ReportClient / ClientFactory: the transport, supplied by the caller
//   - Executor: how a send runs (caller goroutine, unbounded, bounded pool)
//
// # Quick Start
//
//	d, err := dispatch.New(
//	    dispatch.ClientFactoryFunc(func() (dispatch.ReportClient, error) {
//	        return httpclient.New(cfg)
//	    }),
//	    executor.NewPool(executor.WithWorkers(8), executor.WithQueueCapacity(64)),
//	)
//	if err := dispatch.Exclude[*NotFoundError](d.Exclusions()); err != nil {
//	    return err
//	}
//
//	ctx = dispatch.NewWorker(ctx)
//	defer d.ReleaseWorker(dispatch.WorkerFromContext(ctx))
//	if err := d.SendTags(ctx, failure, "checkout"); err != nil {
//	    // reporting is saturated; the caller decides what to do
//	}
//
// # Design Principles
//
//   - Exclusion is exact: registering a type never suppresses wrappers,
//     embedders or the types it embeds
//   - Submission errors are returned, never swallowed or retried
//   - The dispatcher never looks at what a client's Send returned
package dispatch
