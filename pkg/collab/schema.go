package collab

import (
	"fmt"
	"strings"
)

// Redis key pattern helpers
//
// All Redis keys and Pub/Sub channels are namespaced by instance name so
// multiple deployments can share a Redis server.
//
// Key pattern: kanban:{instance}:{concern}:{id}
// Channel pattern: kanban:{instance}:room:{room}

// LockKey returns the Redis key holding the advisory lock for an entity.
// Pattern: kanban:{instance}:lock:{entityKey}
func LockKey(instance, entityKey string) string {
	return fmt.Sprintf("kanban:%s:lock:%s", instance, entityKey)
}

// OnlineKey returns the Redis key of a board's online user set.
// Pattern: kanban:{instance}:presence:board:{board}:online
func OnlineKey(instance, boardID string) string {
	return fmt.Sprintf("kanban:%s:presence:board:%s:online", instance, boardID)
}

// UserConnsKey returns the Redis key of the connection set for one user on
// one board. The set makes presence idempotent across browser tabs.
// Pattern: kanban:{instance}:presence:board:{board}:user:{user}
func UserConnsKey(instance, boardID, userID string) string {
	return fmt.Sprintf("kanban:%s:presence:board:%s:user:%s", instance, boardID, userID)
}

// ConnKey returns the Redis key of the connection reverse mapping used for
// cleanup on disconnect.
// Pattern: kanban:{instance}:presence:conn:{conn}
func ConnKey(instance, connID string) string {
	return fmt.Sprintf("kanban:%s:presence:conn:%s", instance, connID)
}

// TicketKey returns the Redis key of a one-time connection ticket.
// Pattern: kanban:{instance}:ticket:{token}
func TicketKey(instance, token string) string {
	return fmt.Sprintf("kanban:%s:ticket:%s", instance, token)
}

// RoomChannel returns the Pub/Sub channel name for a room.
// Pattern: kanban:{instance}:room:{room}
func RoomChannel(instance, room string) string {
	return fmt.Sprintf("kanban:%s:room:%s", instance, room)
}

// RoomChannelPattern returns the PSUBSCRIBE pattern matching every room
// channel of an instance.
func RoomChannelPattern(instance string) string {
	return fmt.Sprintf("kanban:%s:room:*", instance)
}

// RoomFromChannel extracts the room name from a room channel name.
// Returns "" if the channel does not belong to this instance's rooms.
func RoomFromChannel(instance, channel string) string {
	prefix := fmt.Sprintf("kanban:%s:room:", instance)
	if !strings.HasPrefix(channel, prefix) {
		return ""
	}
	return strings.TrimPrefix(channel, prefix)
}

// BoardRoom returns the room name reaching every connection viewing a board.
func BoardRoom(boardID string) string {
	return "board:" + boardID
}

// UserRoom returns the room name reaching all connections of a single user,
// used for targeted notifications such as card assignment.
func UserRoom(userID string) string {
	return "user:" + userID
}
