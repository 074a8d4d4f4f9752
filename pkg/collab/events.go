package collab

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Wire event names. Client-initiated events arrive over the WebSocket;
// server-emitted events are broadcast to rooms and forwarded to every
// subscribed connection.
const (
	// Client-initiated
	EventJoinBoard  = "joinBoard"
	EventLeaveBoard = "leaveBoard"
	EventMoveEntity = "moveEntity"
	EventHeartbeat  = "heartbeat"

	// Server-emitted
	EventEntityMoved     = "entityMoved"
	EventEntityUpdated   = "entityUpdated"
	EventEntityDeleted   = "entityDeleted"
	EventPresenceUpdate  = "presenceUpdate"
	EventCardAssigned    = "cardAssigned"
	EventLockDenied      = "lockDenied"
	EventVersionConflict = "versionConflict"
	EventError           = "error"
)

// Envelope is the JSON frame carried on the WebSocket and on room
// channels: {"event": "...", "data": {...}}.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// EncodeEvent marshals an event name and payload into an envelope frame.
func EncodeEvent(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// DecodeEnvelope parses a raw frame into an Envelope.
func DecodeEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("malformed event frame: %w", err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("event frame has no event name")
	}
	return &env, nil
}

// JoinBoardRequest is the payload of a joinBoard/leaveBoard event.
type JoinBoardRequest struct {
	BoardID string `json:"boardId"`
}

// Validate checks the join request fields.
func (r *JoinBoardRequest) Validate() error {
	if !isValidUUID(r.BoardID) {
		return fmt.Errorf("invalid board id: not a valid UUID")
	}
	return nil
}

// MoveEntityRequest asks the server to move a card between (or within)
// columns, inserting it relative to its future siblings. InsertAfter and
// InsertBefore name sibling card ids; either or both may be empty, in
// which case the card is placed at the corresponding end of the column.
// ExpectedVersion carries the client's last known entity version for
// optimistic-concurrency checking; nil skips the check.
type MoveEntityRequest struct {
	EntityID        string `json:"entityId"`
	ParentID        string `json:"parentId"`
	InsertAfter     string `json:"insertAfter,omitempty"`
	InsertBefore    string `json:"insertBefore,omitempty"`
	ExpectedVersion *int64 `json:"expectedVersion,omitempty"`
}

// Validate checks the move request fields.
func (r *MoveEntityRequest) Validate() error {
	if !isValidUUID(r.EntityID) {
		return fmt.Errorf("invalid entity id: not a valid UUID")
	}
	if !isValidUUID(r.ParentID) {
		return fmt.Errorf("invalid parent id: not a valid UUID")
	}
	if r.InsertAfter != "" && !isValidUUID(r.InsertAfter) {
		return fmt.Errorf("invalid insertAfter id: not a valid UUID")
	}
	if r.InsertBefore != "" && !isValidUUID(r.InsertBefore) {
		return fmt.Errorf("invalid insertBefore id: not a valid UUID")
	}
	return nil
}

// EntityPayload describes an entity's state after a successful mutation.
// It is the payload of entityMoved and entityUpdated events.
type EntityPayload struct {
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
	ParentID   string `json:"parentId"`
	BoardID    string `json:"boardId"`
	Position   int64  `json:"position"`
	Version    int64  `json:"version"`
	ActorID    string `json:"actorId"`
}

// EntityDeletedPayload is the payload of entityDeleted events.
type EntityDeletedPayload struct {
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
	BoardID    string `json:"boardId"`
	ActorID    string `json:"actorId"`
}

// CardAssignedPayload notifies a user they were assigned a card. It is
// published to the assignee's user room, reaching all their connections
// regardless of which board they are viewing.
type CardAssignedPayload struct {
	CardID     string `json:"cardId"`
	BoardID    string `json:"boardId"`
	ColumnID   string `json:"columnId"`
	Title      string `json:"title"`
	AssigneeID string `json:"assigneeId"`
	ActorID    string `json:"actorId"`
}

// PresenceUpdatePayload carries the full online set of a board after a
// join, leave, or expiry.
type PresenceUpdatePayload struct {
	BoardID string   `json:"boardId"`
	UserIDs []string `json:"userIds"`
}

// LockDeniedPayload tells the originating client its mutation was refused
// because another session holds the entity lock.
type LockDeniedPayload struct {
	EntityID string `json:"entityId"`
}

// VersionConflictPayload tells the originating client its state is stale
// and must be refreshed before retrying.
type VersionConflictPayload struct {
	EntityID string `json:"entityId"`
}

// ErrorPayload reports a request-level failure to the originating client.
type ErrorPayload struct {
	Message string `json:"message"`
}

func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
