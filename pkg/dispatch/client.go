// client.go defines the ReportClient and ClientFactory collaborators.

package dispatch

import "context"

// ReportClient transmits a single report to a crash-reporting backend.
//
// A client is only ever used by the worker it was created for, but its Send
// may run on an executor goroutine, so Send must not assume it runs on the
// worker's goroutine. The error returned by Send is never consumed by the
// Dispatcher; decorate the client to observe it.
type ReportClient interface {
	Send(ctx context.Context, report Report) error
}

// ClientFactory builds ReportClients. NewClient must be safe for concurrent use.
type ClientFactory interface {
	NewClient() (ReportClient, error)
}

// ClientFactoryFunc adapts a function to the ClientFactory interface.
type ClientFactoryFunc func() (ReportClient, error)

// NewClient calls f().
func (f ClientFactoryFunc) NewClient() (ReportClient, error) {
	return f()
}
