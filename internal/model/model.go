// Package model defines the persisted entities of the board service.
// Ordered entities (columns, cards) carry an integer position for total
// ordering among siblings and a version counter bumped on every
// successful mutation; a unique index on (parent, position) turns
// concurrent allocations of the same slot into a retryable conflict
// instead of silent corruption.
package model

import (
	"encoding/json"
	"time"
)

// Board is the shared container users collaborate on.
type Board struct {
	ID        string `gorm:"primaryKey;size:36" json:"id"`
	Name      string `gorm:"not null" json:"name"`
	OwnerID   string `gorm:"index;not null" json:"ownerId"`
	Version   int64  `gorm:"not null;default:1" json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Column is an ordered list of cards inside a board.
type Column struct {
	ID        string `gorm:"primaryKey;size:36" json:"id"`
	BoardID   string `gorm:"not null;uniqueIndex:idx_column_board_position,priority:1" json:"boardId"`
	Title     string `gorm:"not null" json:"title"`
	Position  int64  `gorm:"not null;uniqueIndex:idx_column_board_position,priority:2" json:"position"`
	Version   int64  `gorm:"not null;default:1" json:"version"`
	Archived  bool   `gorm:"not null;default:false" json:"archived"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Card is the unit of work users move between columns. BoardID is
// denormalized so room broadcasts and audit entries do not need a join.
type Card struct {
	ID          string `gorm:"primaryKey;size:36" json:"id"`
	ColumnID    string `gorm:"not null;uniqueIndex:idx_card_column_position,priority:1" json:"columnId"`
	BoardID     string `gorm:"index;not null" json:"boardId"`
	Title       string `gorm:"not null" json:"title"`
	Description string `json:"description"`
	AssigneeID  string `gorm:"index" json:"assigneeId"`
	Position    int64  `gorm:"not null;uniqueIndex:idx_card_column_position,priority:2" json:"position"`
	Version     int64  `gorm:"not null;default:1" json:"version"`
	Archived    bool   `gorm:"not null;default:false" json:"archived"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Audit actions recorded by the guarded-mutation pipeline.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionMove   = "move"
	ActionDelete = "delete"
)

// Entity type names used in audit entries and wire events.
const (
	EntityCard   = "card"
	EntityColumn = "column"
	EntityBoard  = "board"
)

// AuditEntry is an immutable before/after record of one successful
// mutation, written in the same transaction as the mutation itself.
// Creations carry a new snapshot only, deletions an old snapshot only.
// The core never updates or deletes entries; retention is an external
// concern.
type AuditEntry struct {
	ID          uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	BoardID     string `gorm:"index;not null" json:"boardId"`
	UserID      string `gorm:"not null" json:"userId"`
	EntityType  string `gorm:"not null" json:"entityType"`
	EntityID    string `gorm:"index;not null" json:"entityId"`
	Action      string `gorm:"not null" json:"action"`
	OldSnapshot string `gorm:"type:text" json:"oldSnapshot,omitempty"`
	NewSnapshot string `gorm:"type:text" json:"newSnapshot,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Snapshot serializes an entity state for an audit entry.
func Snapshot(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
