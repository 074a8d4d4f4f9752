//go:build integration

package collab

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedisContainer starts a real Redis container for cross-client tests.
func setupRedisContainer(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := redisC.Terminate(ctx); err != nil {
			t.Logf("failed to terminate Redis container: %v", err)
		}
	})

	host, err := redisC.Host(ctx)
	require.NoError(t, err)
	port, err := redisC.MappedPort(ctx, nat.Port("6379/tcp"))
	require.NoError(t, err)

	return fmt.Sprintf("%s:%s", host, port.Port())
}

func newIntegrationClient(t *testing.T, addr string) *Client {
	t.Helper()
	client, err := NewClient(&redis.Options{Addr: addr}, "integration")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

// Two clients on separate connections contend for the same entity lock:
// exactly one acquire succeeds within the TTL window.
func TestIntegration_LockMutualExclusionAcrossClients(t *testing.T) {
	addr := setupRedisContainer(t)
	a := newIntegrationClient(t, addr)
	b := newIntegrationClient(t, addr)
	ctx := context.Background()

	okA, err := a.AcquireLock(ctx, "card:42", "connA", 5*time.Second)
	require.NoError(t, err)
	okB, err := b.AcquireLock(ctx, "card:42", "connB", 5*time.Second)
	require.NoError(t, err)

	assert.True(t, okA != okB, "exactly one acquire must win, got A=%v B=%v", okA, okB)

	// The loser's release must not free the winner's lock.
	require.NoError(t, b.ReleaseLock(ctx, "card:42", "connB"))
	owner, err := a.LockOwner(ctx, "card:42")
	require.NoError(t, err)
	assert.Equal(t, "connA", owner)
}

// Presence travels across clients: a join through one client is visible
// through another, and pruning respects live connections.
func TestIntegration_PresenceAcrossClients(t *testing.T) {
	addr := setupRedisContainer(t)
	a := newIntegrationClient(t, addr)
	b := newIntegrationClient(t, addr)
	ctx := context.Background()

	require.NoError(t, a.JoinBoard(ctx, "board1", "x", "c1", 30*time.Second))
	require.NoError(t, a.JoinBoard(ctx, "board1", "x", "c2", 30*time.Second))

	online, err := b.ListOnline(ctx, "board1")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, online)

	_, _, err = b.LeaveBoard(ctx, "c1")
	require.NoError(t, err)
	online, err = a.ListOnline(ctx, "board1")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, online)

	_, _, err = b.LeaveBoard(ctx, "c2")
	require.NoError(t, err)
	online, err = a.ListOnline(ctx, "board1")
	require.NoError(t, err)
	assert.Empty(t, online)
}

// Room events published through one client reach a subscriber on another.
func TestIntegration_RoomBroadcastAcrossClients(t *testing.T) {
	addr := setupRedisContainer(t)
	a := newIntegrationClient(t, addr)
	b := newIntegrationClient(t, addr)
	ctx := context.Background()

	sub, err := b.SubscribeRooms(ctx, BoardRoom("board1"))
	require.NoError(t, err)
	defer sub.Close()

	// Give the subscription time to register server-side.
	time.Sleep(200 * time.Millisecond)

	require.NoError(t, a.Publish(ctx, BoardRoom("board1"), EventEntityMoved, EntityPayload{
		EntityType: "card",
		EntityID:   "c1",
		Position:   1500,
		Version:    2,
	}))

	select {
	case msg := <-sub.Events():
		assert.Equal(t, BoardRoom("board1"), msg.Room)
		assert.Equal(t, EventEntityMoved, msg.Envelope.Event)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for cross-client room event")
	}
}
