package collab

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Advisory distributed locks.
//
// A lock is a single Redis key set with NX+PX: at most one live entry per
// key at any instant, expiring automatically after its TTL so a crashed
// holder cannot block an entity forever. Locks are advisory and exist only
// to serialize overlapping edits of the same entity during one guarded
// mutation; they are not long-held pessimistic locks.

// releaseScript deletes the lock only when the stored owner matches the
// caller, so a release after expiry cannot delete someone else's lock.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// AcquireLock atomically takes the lock for entityKey on behalf of owner,
// with expiry. Returns false when another owner holds it. Acquisition is a
// single SET NX PX round trip; there is no retry or queueing here - a
// denied acquire must be surfaced to the user as "locked, try again".
func (c *Client) AcquireLock(ctx context.Context, entityKey, owner string, ttl time.Duration) (bool, error) {
	if owner == "" {
		return false, fmt.Errorf("lock owner cannot be empty")
	}
	ok, err := c.rdb.SetNX(ctx, LockKey(c.instance, entityKey), owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", entityKey, err)
	}
	return ok, nil
}

// ReleaseLock releases the lock for entityKey if and only if owner still
// holds it (compare-and-delete). Releasing an expired or reacquired lock
// is a no-op, never an error.
func (c *Client) ReleaseLock(ctx context.Context, entityKey, owner string) error {
	err := releaseScript.Run(ctx, c.rdb, []string{LockKey(c.instance, entityKey)}, owner).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release lock %s: %w", entityKey, err)
	}
	return nil
}

// LockOwner returns the current owner of an entity lock, or "" when the
// lock is free. Intended for diagnostics and tests.
func (c *Client) LockOwner(ctx context.Context, entityKey string) (string, error) {
	owner, err := c.rdb.Get(ctx, LockKey(c.instance, entityKey)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read lock %s: %w", entityKey, err)
	}
	return owner, nil
}
