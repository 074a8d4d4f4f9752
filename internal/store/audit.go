package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/AnirudhanSS/kanban-app-sub000/internal/model"
)

// defaultAuditLimit caps audit queries that do not ask for a limit.
const defaultAuditLimit = 100

// appendAudit writes one immutable before/after record inside the
// caller's transaction so the mutation and its trail commit atomically.
// oldState or newState may be nil (creations and deletions).
func appendAudit(tx *gorm.DB, boardID, userID, entityType, entityID, action string, oldState, newState any) error {
	entry := model.AuditEntry{
		BoardID:    boardID,
		UserID:     userID,
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
	}
	if oldState != nil {
		snap, err := model.Snapshot(oldState)
		if err != nil {
			return err
		}
		entry.OldSnapshot = snap
	}
	if newState != nil {
		snap, err := model.Snapshot(newState)
		if err != nil {
			return err
		}
		entry.NewSnapshot = snap
	}
	return tx.Create(&entry).Error
}

// ListAudit returns the most recent audit entries for a board, newest
// first. limit <= 0 uses defaultAuditLimit.
func (s *Store) ListAudit(ctx context.Context, boardID string, limit int) ([]model.AuditEntry, error) {
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	var entries []model.AuditEntry
	err := s.db.WithContext(ctx).
		Where("board_id = ?", boardID).
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
