// Package multi provides a report client that fans out to several clients.
// Every client receives every report; errors are aggregated.
package multi

import (
	"context"
	"errors"
	"io"

	"github.com/strongdm/crashdispatch/pkg/dispatch"
)

// multiClient fans out to multiple clients.
type multiClient struct {
	clients []dispatch.ReportClient
}

// New creates a client that sends to every given client.
// Errors are aggregated via errors.Join.
func New(clients ...dispatch.ReportClient) dispatch.ReportClient {
	return &multiClient{clients: clients}
}

// Factory returns a ClientFactory that asks every factory for a client and
// combines them. If any factory fails, the clients already built are closed.
func Factory(factories ...dispatch.ClientFactory) dispatch.ClientFactory {
	return dispatch.ClientFactoryFunc(func() (dispatch.ReportClient, error) {
		clients := make([]dispatch.ReportClient, 0, len(factories))
		for _, f := range factories {
			client, err := f.NewClient()
			if err != nil {
				closeErr := New(clients...).(io.Closer).Close()
				return nil, errors.Join(err, closeErr)
			}
			clients = append(clients, client)
		}
		return New(clients...), nil
	})
}

// Send sends the report to all clients, collecting any errors.
// All clients are called even if some return errors.
func (m *multiClient) Send(ctx context.Context, report dispatch.Report) error {
	var errs []error
	for _, client := range m.clients {
		if err := client.Send(ctx, report); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every client that implements io.Closer.
func (m *multiClient) Close() error {
	var errs []error
	for _, client := range m.clients {
		if closer, ok := client.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
