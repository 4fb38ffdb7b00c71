// Package stderr provides a report client that prints reports in a
// human-readable format. Useful for development and debugging.
package stderr

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/strongdm/crashdispatch/pkg/dispatch"
)

// Option configures the stderr client.
type Option func(*stderrConfig)

type stderrConfig struct {
	verbose bool
	out     io.Writer
}

// WithVerbose includes stack traces.
func WithVerbose() Option {
	return func(c *stderrConfig) {
		c.verbose = true
	}
}

// WithWriter redirects output (default: os.Stderr).
func WithWriter(w io.Writer) Option {
	return func(c *stderrConfig) {
		c.out = w
	}
}

// stderrClient writes reports in human-readable format.
type stderrClient struct {
	verbose bool
	out     io.Writer
}

// New creates a client that writes to stderr.
func New(opts ...Option) dispatch.ReportClient {
	cfg := &stderrConfig{out: os.Stderr}
	for _, opt := range opts {
		opt(cfg)
	}
	return &stderrClient{
		verbose: cfg.verbose,
		out:     cfg.out,
	}
}

// Factory returns a ClientFactory producing stderr clients with opts.
func Factory(opts ...Option) dispatch.ClientFactory {
	return dispatch.ClientFactoryFunc(func() (dispatch.ReportClient, error) {
		return New(opts...), nil
	})
}

// Send formats the report and writes it in a single call so reports from
// concurrent workers do not interleave.
func (s *stderrClient) Send(ctx context.Context, report dispatch.Report) error {
	var b strings.Builder

	// Format: [CRASHDISPATCH] <timestamp> <failure_type> (worker: <id>)
	timestamp := report.Timestamp.Format("2006-01-02T15:04:05Z07:00")
	fmt.Fprintf(&b, "[CRASHDISPATCH] %s %s", timestamp, report.FailureType)
	if report.Worker != "" {
		fmt.Fprintf(&b, " (worker: %s)", report.Worker)
	}
	b.WriteString("\n")

	if report.Message != "" {
		fmt.Fprintf(&b, "        Message: %s\n", report.Message)
	}
	if len(report.Causes) > 0 {
		fmt.Fprintf(&b, "        Caused by: %s\n", strings.Join(report.Causes, " <- "))
	}
	if report.Fingerprint != "" {
		fmt.Fprintf(&b, "        Fingerprint: %s\n", report.Fingerprint)
	}
	if len(report.Tags) > 0 {
		fmt.Fprintf(&b, "        Tags: %s\n", strings.Join(report.Tags.Slice(), ", "))
	}
	if len(report.Data) > 0 {
		keys := make([]string, 0, len(report.Data))
		for k := range report.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, k+"="+report.Data[k])
		}
		fmt.Fprintf(&b, "        Data: %s\n", strings.Join(pairs, " "))
	}

	if s.verbose && report.StackTrace != "" {
		b.WriteString("        Stack trace:\n")
		for _, line := range strings.Split(report.StackTrace, "\n") {
			fmt.Fprintf(&b, "          %s\n", line)
		}
	}

	_, err := io.WriteString(s.out, b.String())
	return err
}
