package collab

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Presence tracking.
//
// A board's online set holds user ids. Each (board, user) pair also has a
// set of live connection ids so a user with several browser tabs appears
// online exactly once and stays online until the last tab closes. A
// reverse mapping from connection id to (user, board) supports cleanup on
// disconnect. Everything carries a TTL refreshed by heartbeats and board
// activity: a crashed or partitioned client fails open to offline.

// JoinBoard registers a connection of userID on boardID and refreshes the
// presence TTLs. Idempotent: joining twice with the same or a different
// connection leaves the user in the online set exactly once.
func (c *Client) JoinBoard(ctx context.Context, boardID, userID, connID string, ttl time.Duration) error {
	pipe := c.rdb.TxPipeline()

	connKey := ConnKey(c.instance, connID)
	pipe.HSet(ctx, connKey, "user_id", userID, "board_id", boardID)
	pipe.Expire(ctx, connKey, ttl)

	connsKey := UserConnsKey(c.instance, boardID, userID)
	pipe.SAdd(ctx, connsKey, connID)
	pipe.Expire(ctx, connsKey, ttl)

	onlineKey := OnlineKey(c.instance, boardID)
	pipe.SAdd(ctx, onlineKey, userID)
	pipe.Expire(ctx, onlineKey, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to join board %s: %w", boardID, err)
	}
	return nil
}

// LeaveBoard removes a connection using its reverse mapping. When it was
// the user's last live connection on the board, the user leaves the online
// set too. Returns the (userID, boardID) the connection belonged to, or
// empty strings when the mapping has already expired (a no-op).
func (c *Client) LeaveBoard(ctx context.Context, connID string) (userID, boardID string, err error) {
	connKey := ConnKey(c.instance, connID)
	mapping, err := c.rdb.HGetAll(ctx, connKey).Result()
	if err != nil {
		return "", "", fmt.Errorf("failed to read connection mapping %s: %w", connID, err)
	}
	if len(mapping) == 0 {
		// Mapping already expired; nothing to clean up.
		return "", "", nil
	}
	userID = mapping["user_id"]
	boardID = mapping["board_id"]

	connsKey := UserConnsKey(c.instance, boardID, userID)
	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, connKey)
	pipe.SRem(ctx, connsKey, connID)
	remaining := pipe.SCard(ctx, connsKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", "", fmt.Errorf("failed to remove connection %s: %w", connID, err)
	}

	if remaining.Val() == 0 {
		pipe := c.rdb.TxPipeline()
		pipe.SRem(ctx, OnlineKey(c.instance, boardID), userID)
		pipe.Del(ctx, connsKey)
		if _, err := pipe.Exec(ctx); err != nil {
			return "", "", fmt.Errorf("failed to remove user %s from board %s: %w", userID, boardID, err)
		}
	}
	return userID, boardID, nil
}

// Heartbeat refreshes the presence TTLs of a live connection. Returns
// false when the connection mapping has already expired; the caller should
// re-join in that case.
func (c *Client) Heartbeat(ctx context.Context, connID string, ttl time.Duration) (bool, error) {
	connKey := ConnKey(c.instance, connID)
	mapping, err := c.rdb.HGetAll(ctx, connKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to read connection mapping %s: %w", connID, err)
	}
	if len(mapping) == 0 {
		return false, nil
	}
	userID := mapping["user_id"]
	boardID := mapping["board_id"]

	pipe := c.rdb.TxPipeline()
	pipe.Expire(ctx, connKey, ttl)
	pipe.Expire(ctx, UserConnsKey(c.instance, boardID, userID), ttl)
	pipe.Expire(ctx, OnlineKey(c.instance, boardID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to refresh presence for %s: %w", connID, err)
	}
	return true, nil
}

// ListOnline returns the users currently present on a board, sorted.
// Users whose connection set has expired are pruned on the way out, so a
// crashed lone client disappears even while other users keep the board's
// online set alive.
func (c *Client) ListOnline(ctx context.Context, boardID string) ([]string, error) {
	onlineKey := OnlineKey(c.instance, boardID)
	members, err := c.rdb.SMembers(ctx, onlineKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list online users for board %s: %w", boardID, err)
	}

	online := make([]string, 0, len(members))
	for _, userID := range members {
		exists, err := c.rdb.Exists(ctx, UserConnsKey(c.instance, boardID, userID)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to check connections of %s: %w", userID, err)
		}
		if exists == 0 {
			// Stale entry: every connection of this user has expired.
			c.rdb.SRem(ctx, onlineKey, userID)
			continue
		}
		online = append(online, userID)
	}
	sort.Strings(online)
	return online, nil
}
