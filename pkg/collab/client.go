package collab

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Client provides instance-scoped Redis operations for the collaboration
// engine. All keys and channels are automatically namespaced with the
// instance name. The client is safe for concurrent use from multiple
// goroutines.
type Client struct {
	rdb      *redis.Client
	instance string
}

// NewClient creates a collaboration client for the given instance.
// The instance name namespaces every key and channel; it must not be empty.
func NewClient(redisOpts *redis.Options, instance string) (*Client, error) {
	if instance == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &Client{
		rdb:      redis.NewClient(redisOpts),
		instance: instance,
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for startup and health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Instance returns the namespace this client operates in.
func (c *Client) Instance() string {
	return c.instance
}
