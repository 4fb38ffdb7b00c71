// Package redisqueue provides a report client that appends JSON reports to a
// Redis list, for deployments where a separate forwarder owns delivery to the
// crash-reporting backend.
package redisqueue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/strongdm/crashdispatch/pkg/dispatch"
	"github.com/strongdm/crashdispatch/pkg/dispatch/clients/wire"
)

// DefaultKey is the list reports are pushed to.
const DefaultKey = "crashdispatch:reports"

// Pusher is the subset of redis.Cmdable used by the client.
// *redis.Client and *redis.ClusterClient satisfy it.
type Pusher interface {
	TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
}

// Option configures the client.
type Option func(*redisConfig)

type redisConfig struct {
	key     string
	maxLen  int64
	version string
	tags    dispatch.TagSet
}

// WithKey sets the list key (default: DefaultKey).
func WithKey(key string) Option {
	return func(c *redisConfig) {
		if key != "" {
			c.key = key
		}
	}
}

// WithMaxLen caps the list, keeping the newest reports. Zero disables trimming.
func WithMaxLen(n int64) Option {
	return func(c *redisConfig) {
		if n >= 0 {
			c.maxLen = n
		}
	}
}

// WithVersion sets the application version stamped on every report.
func WithVersion(version string) Option {
	return func(c *redisConfig) {
		c.version = version
	}
}

// WithTags adds common tags to every report.
func WithTags(tags ...string) Option {
	return func(c *redisConfig) {
		c.tags = dispatch.NewTagSet(tags...)
	}
}

// redisClient pushes reports to a Redis list.
type redisClient struct {
	pusher  Pusher
	key     string
	maxLen  int64
	version string
	tags    dispatch.TagSet
}

// New creates a client pushing to p.
func New(p Pusher, opts ...Option) dispatch.ReportClient {
	cfg := &redisConfig{key: DefaultKey}
	for _, opt := range opts {
		opt(cfg)
	}
	return &redisClient{
		pusher:  p,
		key:     cfg.key,
		maxLen:  cfg.maxLen,
		version: cfg.version,
		tags:    cfg.tags,
	}
}

// Factory returns a ClientFactory whose clients share p. A go-redis client
// is a connection pool and safe for concurrent use, so only the lightweight
// wrapper is built per worker.
func Factory(p Pusher, opts ...Option) dispatch.ClientFactory {
	return dispatch.ClientFactoryFunc(func() (dispatch.ReportClient, error) {
		return New(p, opts...), nil
	})
}

// Send appends the encoded report to the list. The push and the trim run in
// one MULTI/EXEC, so the list never stays above its cap.
func (c *redisClient) Send(ctx context.Context, report dispatch.Report) error {
	payload, err := wire.Encode(wire.FromReport(report, c.version, c.tags))
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	_, err = c.pusher.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, c.key, payload)
		if c.maxLen > 0 {
			pipe.LTrim(ctx, c.key, -c.maxLen, -1)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("push report: %w", err)
	}
	return nil
}
