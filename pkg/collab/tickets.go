package collab

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// One-time connection tickets.
//
// Browsers cannot attach auth headers to a WebSocket upgrade, so clients
// first request a short-lived ticket over authenticated HTTP and present
// it as a query parameter on the upgrade. Tickets live in the shared
// store with a TTL - never in a process-local map - so any server replica
// can redeem them and restarts cannot leak or lose them.

// CreateTicket issues a one-time ticket bound to userID, valid for ttl.
func (c *Client) CreateTicket(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id cannot be empty")
	}
	token := uuid.New().String()
	if err := c.rdb.Set(ctx, TicketKey(c.instance, token), userID, ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store ticket: %w", err)
	}
	return token, nil
}

// ConsumeTicket redeems a ticket exactly once, returning the user it was
// issued to. A second redemption, or redemption after expiry, returns
// ErrNotFound.
func (c *Client) ConsumeTicket(ctx context.Context, token string) (string, error) {
	userID, err := c.rdb.GetDel(ctx, TicketKey(c.instance, token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("ticket %s: %w", token, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to consume ticket: %w", err)
	}
	return userID, nil
}
