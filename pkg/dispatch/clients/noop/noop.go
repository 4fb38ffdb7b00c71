// Package noop provides a report client that discards all reports.
// Useful for tests and for disabling reporting without touching call sites.
package noop

import (
	"context"

	"github.com/strongdm/crashdispatch/pkg/dispatch"
)

// noopClient discards all reports.
type noopClient struct{}

// New creates a client that discards all reports.
func New() dispatch.ReportClient {
	return noopClient{}
}

// Factory returns a ClientFactory producing noop clients.
func Factory() dispatch.ClientFactory {
	return dispatch.ClientFactoryFunc(func() (dispatch.ReportClient, error) {
		return New(), nil
	})
}

// Send discards the report and returns nil.
func (noopClient) Send(ctx context.Context, report dispatch.Report) error {
	return nil
}
