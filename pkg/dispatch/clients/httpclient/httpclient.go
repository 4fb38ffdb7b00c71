// Package httpclient provides a report client that POSTs JSON reports to a
// crash-reporting endpoint.
//
// Settings that a vendor SDK would keep in process-wide state (proxy, connect
// timeout, application version, common tags) are explicit Config fields, so
// two dispatchers in one process can report to different backends.
package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/strongdm/crashdispatch/pkg/dispatch"
	"github.com/strongdm/crashdispatch/pkg/dispatch/clients/wire"
)

// APIKeyHeader carries Config.APIKey on every request.
const APIKeyHeader = "X-ApiKey"

// DefaultConnectTimeout is used when Config.ConnectTimeout is zero.
const DefaultConnectTimeout = 10 * time.Second

// Proxy is an HTTP proxy for outgoing requests.
type Proxy struct {
	Host string
	Port int
}

// Config configures the HTTP client.
type Config struct {
	// Endpoint is the URL reports are POSTed to. Required.
	Endpoint string

	// APIKey authenticates the application. Required.
	APIKey string

	// Version of the reporting application, included in every report.
	Version string

	// Tags are applied to every report in addition to the request tags.
	Tags []string

	// ConnectTimeout bounds connection establishment (default: 10s).
	ConnectTimeout time.Duration

	// RequestTimeout bounds a whole send. Zero means no limit.
	RequestTimeout time.Duration

	// Proxy routes requests through an HTTP proxy when Host and Port are set.
	Proxy *Proxy
}

// ProxyConfigured reports whether both proxy host and port are set.
func (c Config) ProxyConfigured() bool {
	return c.Proxy != nil && c.Proxy.Host != "" && c.Proxy.Port > 0
}

// Validate checks the required fields.
func (c Config) Validate() error {
	var errs []error
	if c.Endpoint == "" {
		errs = append(errs, errors.New("endpoint is required"))
	} else if u, err := url.Parse(c.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("endpoint %q is not an absolute URL", c.Endpoint))
	}
	if c.APIKey == "" {
		errs = append(errs, errors.New("api key is required"))
	}
	if c.ConnectTimeout < 0 {
		errs = append(errs, errors.New("connect timeout must not be negative"))
	}
	return errors.Join(errs...)
}

// Client sends reports over HTTP. Each Client owns its own connection pool.
type Client struct {
	endpoint string
	apiKey   string
	version  string
	tags     dispatch.TagSet
	timeout  time.Duration
	http     *http.Client
}

// New builds a Client from cfg.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid http client config: %w", err)
	}

	connectTimeout := cfg.ConnectTimeout
	if connectTimeout == 0 {
		connectTimeout = DefaultConnectTimeout
	}

	transport := &http.Transport{
		DialContext:         (&net.Dialer{Timeout: connectTimeout}).DialContext,
		TLSHandshakeTimeout: connectTimeout,
		MaxIdleConns:        2,
		IdleConnTimeout:     90 * time.Second,
	}
	if cfg.ProxyConfigured() {
		proxyURL := &url.URL{
			Scheme: "http",
			Host:   net.JoinHostPort(cfg.Proxy.Host, strconv.Itoa(cfg.Proxy.Port)),
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return &Client{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		version:  cfg.Version,
		tags:     dispatch.NewTagSet(cfg.Tags...),
		timeout:  cfg.RequestTimeout,
		http:     &http.Client{Transport: otelhttp.NewTransport(transport)},
	}, nil
}

// Factory validates cfg once and returns a ClientFactory producing a new
// Client per call.
func Factory(cfg Config) (dispatch.ClientFactory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid http client config: %w", err)
	}
	return dispatch.ClientFactoryFunc(func() (dispatch.ReportClient, error) {
		return New(cfg)
	}), nil
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("report rejected by backend: status %d: %s", e.StatusCode, e.Body)
}

// Send POSTs the report.
func (c *Client) Send(ctx context.Context, report dispatch.Report) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, err := wire.Encode(wire.FromReport(report, c.version, c.tags))
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(APIKeyHeader, c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send report: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(msg)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}
