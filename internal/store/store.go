// Package store is the transactional persistence layer behind the
// guarded-mutation pipeline. Every mutation runs inside one transaction
// that applies the optimistic version check, writes the entity, and
// appends the audit entry; unique-constraint hits on (parent, position)
// surface as retryable position collisions.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/AnirudhanSS/kanban-app-sub000/internal/model"
	"github.com/AnirudhanSS/kanban-app-sub000/internal/position"
	"github.com/AnirudhanSS/kanban-app-sub000/pkg/collab"
)

// positionRetryAttempts bounds the jittered retries after a position
// collision before the store falls back to renormalizing the column.
const positionRetryAttempts = 3

// Store wraps the relational database. All reads after a conflict must go
// through it: the database, not any in-memory cache, is authoritative.
type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

// Open opens (or creates) the SQLite database at path, migrates the
// schema, and returns a ready Store.
func Open(path string, log *zap.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.AutoMigrate(&model.Board{}, &model.Column{}, &model.Card{}, &model.AuditEntry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return New(db, log), nil
}

// New wraps an existing gorm handle. The handle must have TranslateError
// enabled so unique-constraint violations are detectable.
func New(db *gorm.DB, log *zap.Logger) *Store {
	return &Store{db: db, log: log}
}

// DB exposes the underlying handle for maintenance commands.
func (s *Store) DB() *gorm.DB {
	return s.db
}

func notFound(entity, id string) error {
	return fmt.Errorf("%s %s: %w", entity, id, collab.ErrNotFound)
}

// translateWrite maps a failed write into the pipeline error taxonomy.
func translateWrite(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("ordering slot already taken: %w", collab.ErrPositionCollision)
	}
	return err
}

// withPositionRetry runs fn, retrying position collisions with a small
// jittered delay up to positionRetryAttempts. All other errors pass
// through untouched on the first occurrence.
func withPositionRetry(ctx context.Context, fn func() error) error {
	return retry.Do(fn,
		retry.Attempts(positionRetryAttempts),
		retry.RetryIf(collab.IsPositionCollision),
		retry.Delay(2*time.Millisecond),
		retry.MaxJitter(10*time.Millisecond),
		retry.DelayType(retry.CombineDelay(retry.FixedDelay, retry.RandomDelay)),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
}

// CreateBoard creates a board owned by ownerID.
func (s *Store) CreateBoard(ctx context.Context, name, ownerID string) (*model.Board, error) {
	board := &model.Board{
		ID:      uuid.New().String(),
		Name:    name,
		OwnerID: ownerID,
		Version: 1,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(board).Error; err != nil {
			return err
		}
		return appendAudit(tx, board.ID, ownerID, model.EntityBoard, board.ID, model.ActionCreate, nil, board)
	})
	if err != nil {
		return nil, err
	}
	return board, nil
}

// GetBoard loads a board by id.
func (s *Store) GetBoard(ctx context.Context, boardID string) (*model.Board, error) {
	var board model.Board
	err := s.db.WithContext(ctx).First(&board, "id = ?", boardID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(model.EntityBoard, boardID)
	}
	if err != nil {
		return nil, err
	}
	return &board, nil
}

// CreateColumn appends a column at the end of a board.
func (s *Store) CreateColumn(ctx context.Context, boardID, title, actorID string) (*model.Column, error) {
	var column *model.Column
	err := withPositionRetry(ctx, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var board model.Board
			if err := tx.First(&board, "id = ?", boardID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return notFound(model.EntityBoard, boardID)
				}
				return err
			}

			prev, err := maxColumnPosition(tx, boardID)
			if err != nil {
				return err
			}
			column = &model.Column{
				ID:       uuid.New().String(),
				BoardID:  boardID,
				Title:    title,
				Position: position.Allocate(prev, nil),
				Version:  1,
			}
			if err := tx.Create(column).Error; err != nil {
				return translateWrite(err)
			}
			return appendAudit(tx, boardID, actorID, model.EntityColumn, column.ID, model.ActionCreate, nil, column)
		})
	})
	if err != nil {
		return nil, err
	}
	return column, nil
}

// CreateCard appends a card at the end of a column.
func (s *Store) CreateCard(ctx context.Context, columnID, title, description, actorID string) (*model.Card, error) {
	var card *model.Card
	err := withPositionRetry(ctx, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var column model.Column
			if err := tx.First(&column, "id = ? AND archived = ?", columnID, false).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return notFound(model.EntityColumn, columnID)
				}
				return err
			}

			prev, err := maxCardPosition(tx, columnID, "")
			if err != nil {
				return err
			}
			card = &model.Card{
				ID:          uuid.New().String(),
				ColumnID:    columnID,
				BoardID:     column.BoardID,
				Title:       title,
				Description: description,
				Position:    position.Allocate(prev, nil),
				Version:     1,
			}
			if err := tx.Create(card).Error; err != nil {
				return translateWrite(err)
			}
			return appendAudit(tx, column.BoardID, actorID, model.EntityCard, card.ID, model.ActionCreate, nil, card)
		})
	})
	if err != nil {
		return nil, err
	}
	return card, nil
}

// GetCard loads an active card by id.
func (s *Store) GetCard(ctx context.Context, cardID string) (*model.Card, error) {
	var card model.Card
	err := s.db.WithContext(ctx).First(&card, "id = ? AND archived = ?", cardID, false).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(model.EntityCard, cardID)
	}
	if err != nil {
		return nil, err
	}
	return &card, nil
}

// UpdateCardParams carries a guarded field update. Nil fields are left
// unchanged; ExpectedVersion nil skips the optimistic check.
type UpdateCardParams struct {
	CardID          string
	Title           *string
	Description     *string
	AssigneeID      *string
	ExpectedVersion *int64
	ActorID         string
}

// UpdateCard applies a guarded update: version check, persist with the
// version bump, audit - all in one transaction.
func (s *Store) UpdateCard(ctx context.Context, p UpdateCardParams) (*model.Card, error) {
	var updated *model.Card
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var card model.Card
		if err := tx.First(&card, "id = ? AND archived = ?", p.CardID, false).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound(model.EntityCard, p.CardID)
			}
			return err
		}

		newVersion, err := CheckAndBump(card.Version, p.ExpectedVersion)
		if err != nil {
			return err
		}

		before := card
		fields := map[string]any{"version": newVersion}
		if p.Title != nil {
			fields["title"] = *p.Title
		}
		if p.Description != nil {
			fields["description"] = *p.Description
		}
		if p.AssigneeID != nil {
			fields["assignee_id"] = *p.AssigneeID
		}

		res := tx.Model(&model.Card{}).
			Where("id = ? AND version = ?", card.ID, card.Version).
			Updates(fields)
		if res.Error != nil {
			return translateWrite(res.Error)
		}
		if res.RowsAffected == 0 {
			// A writer that bypassed the lock path slipped in between the
			// read and the update.
			return fmt.Errorf("card %s: %w", card.ID, collab.ErrVersionConflict)
		}

		if err := tx.First(&card, "id = ?", card.ID).Error; err != nil {
			return err
		}
		updated = &card
		return appendAudit(tx, card.BoardID, p.ActorID, model.EntityCard, card.ID, model.ActionUpdate, &before, &card)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteCard removes a card after a guarded version check. The audit
// entry keeps the old snapshot only.
func (s *Store) DeleteCard(ctx context.Context, cardID string, expectedVersion *int64, actorID string) (*model.Card, error) {
	var deleted *model.Card
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var card model.Card
		if err := tx.First(&card, "id = ? AND archived = ?", cardID, false).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound(model.EntityCard, cardID)
			}
			return err
		}

		if _, err := CheckAndBump(card.Version, expectedVersion); err != nil {
			return err
		}

		res := tx.Where("id = ? AND version = ?", card.ID, card.Version).Delete(&model.Card{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("card %s: %w", card.ID, collab.ErrVersionConflict)
		}

		deleted = &card
		return appendAudit(tx, card.BoardID, actorID, model.EntityCard, card.ID, model.ActionDelete, &card, nil)
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// ColumnState is one column with its cards in position order.
type ColumnState struct {
	Column model.Column `json:"column"`
	Cards  []model.Card `json:"cards"`
}

// BoardState is the authoritative snapshot clients re-fetch after a
// conflict or reconnect.
type BoardState struct {
	Board   model.Board   `json:"board"`
	Columns []ColumnState `json:"columns"`
}

// BoardSnapshot loads a board with its columns and cards ordered by
// position.
func (s *Store) BoardSnapshot(ctx context.Context, boardID string) (*BoardState, error) {
	board, err := s.GetBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}

	var columns []model.Column
	if err := s.db.WithContext(ctx).
		Where("board_id = ? AND archived = ?", boardID, false).
		Order("position, id").
		Find(&columns).Error; err != nil {
		return nil, err
	}

	var cards []model.Card
	if err := s.db.WithContext(ctx).
		Where("board_id = ? AND archived = ?", boardID, false).
		Order("position, id").
		Find(&cards).Error; err != nil {
		return nil, err
	}

	byColumn := make(map[string][]model.Card, len(columns))
	for _, card := range cards {
		byColumn[card.ColumnID] = append(byColumn[card.ColumnID], card)
	}

	state := &BoardState{Board: *board, Columns: make([]ColumnState, 0, len(columns))}
	for _, col := range columns {
		state.Columns = append(state.Columns, ColumnState{
			Column: col,
			Cards:  byColumn[col.ID],
		})
	}
	return state, nil
}

// maxColumnPosition returns the highest column position on a board, or
// nil when the board has no columns.
func maxColumnPosition(tx *gorm.DB, boardID string) (*int64, error) {
	var row struct {
		Max   int64
		Count int64
	}
	err := tx.Model(&model.Column{}).
		Select("COALESCE(MAX(position), 0) AS max, COUNT(*) AS count").
		Where("board_id = ?", boardID).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.Count == 0 {
		return nil, nil
	}
	return &row.Max, nil
}

// maxCardPosition returns the highest card position in a column,
// excluding excludeID (the card being moved), or nil when empty.
func maxCardPosition(tx *gorm.DB, columnID, excludeID string) (*int64, error) {
	q := tx.Model(&model.Card{}).
		Select("COALESCE(MAX(position), 0) AS max, COUNT(*) AS count").
		Where("column_id = ? AND archived = ?", columnID, false)
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	var row struct {
		Max   int64
		Count int64
	}
	if err := q.Scan(&row).Error; err != nil {
		return nil, err
	}
	if row.Count == 0 {
		return nil, nil
	}
	return &row.Max, nil
}
