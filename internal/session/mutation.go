// Package session connects live clients to the guarded-mutation
// pipeline. Every entity mutation follows the same path regardless of
// transport: acquire the entity lock, run the versioned transaction in
// the store, release the lock, then broadcast the result to the entity's
// board room. HTTP requests and WebSocket events share one Service so
// the ordering guarantees hold across transports.
package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/AnirudhanSS/kanban-app-sub000/internal/model"
	"github.com/AnirudhanSS/kanban-app-sub000/internal/store"
	"github.com/AnirudhanSS/kanban-app-sub000/pkg/collab"
)

// Service executes guarded mutations and fans results out to rooms.
type Service struct {
	store   *store.Store
	collab  *collab.Client
	lockTTL time.Duration
	log     *zap.Logger
}

// NewService wires the store and the coordination client together.
func NewService(st *store.Store, cc *collab.Client, lockTTL time.Duration, log *zap.Logger) *Service {
	return &Service{store: st, collab: cc, lockTTL: lockTTL, log: log}
}

// Store exposes read-only access for snapshot and audit queries.
func (s *Service) Store() *store.Store {
	return s.store
}

// Collab exposes the coordination client for presence queries.
func (s *Service) Collab() *collab.Client {
	return s.collab
}

// locked runs fn while holding the advisory lock for one entity. The
// owner token identifies the caller (connection id or request id) so
// only the holder can release. The lock is released before the caller
// broadcasts, so the entity is free by the time other clients react.
func (s *Service) locked(ctx context.Context, entityType, entityID, owner string, fn func() error) error {
	key := entityType + ":" + entityID
	ok, err := s.collab.AcquireLock(ctx, key, owner, s.lockTTL)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s %s: %w", entityType, entityID, collab.ErrLockHeld)
	}
	defer func() {
		if err := s.collab.ReleaseLock(ctx, key, owner); err != nil {
			s.log.Warn("failed to release entity lock",
				zap.String("key", key), zap.Error(err))
		}
	}()
	return fn()
}

// broadcast publishes an event to the entity's board room. The mutation
// has already committed, so a publish failure is logged, not returned:
// clients recover via snapshot refetch.
func (s *Service) broadcast(ctx context.Context, boardID, event string, payload any) {
	if err := s.collab.Publish(ctx, collab.BoardRoom(boardID), event, payload); err != nil {
		s.log.Warn("failed to broadcast event",
			zap.String("event", event),
			zap.String("board_id", boardID),
			zap.Error(err))
	}
}

// notifyUser publishes an event to one user's room. Like broadcast, a
// publish failure after a committed mutation is logged, not returned.
func (s *Service) notifyUser(ctx context.Context, userID, event string, payload any) {
	if err := s.collab.Publish(ctx, collab.UserRoom(userID), event, payload); err != nil {
		s.log.Warn("failed to notify user",
			zap.String("event", event),
			zap.String("user_id", userID),
			zap.Error(err))
	}
}

func cardPayload(card *model.Card, actorID string) collab.EntityPayload {
	return collab.EntityPayload{
		EntityType: model.EntityCard,
		EntityID:   card.ID,
		ParentID:   card.ColumnID,
		BoardID:    card.BoardID,
		Position:   card.Position,
		Version:    card.Version,
		ActorID:    actorID,
	}
}

// CreateBoard creates a board. Boards are freshly visible to their
// creator only, so there is nothing to lock or broadcast yet.
func (s *Service) CreateBoard(ctx context.Context, name, actorID string) (*model.Board, error) {
	return s.store.CreateBoard(ctx, name, actorID)
}

// CreateColumn appends a column and announces it to the board room. New
// entities have no concurrent writers, so no lock is taken.
func (s *Service) CreateColumn(ctx context.Context, boardID, title, actorID string) (*model.Column, error) {
	column, err := s.store.CreateColumn(ctx, boardID, title, actorID)
	if err != nil {
		return nil, err
	}
	s.broadcast(ctx, boardID, collab.EventEntityUpdated, collab.EntityPayload{
		EntityType: model.EntityColumn,
		EntityID:   column.ID,
		ParentID:   boardID,
		BoardID:    boardID,
		Position:   column.Position,
		Version:    column.Version,
		ActorID:    actorID,
	})
	return column, nil
}

// CreateCard appends a card and announces it to the board room.
func (s *Service) CreateCard(ctx context.Context, columnID, title, description, actorID string) (*model.Card, error) {
	card, err := s.store.CreateCard(ctx, columnID, title, description, actorID)
	if err != nil {
		return nil, err
	}
	s.broadcast(ctx, card.BoardID, collab.EventEntityUpdated, cardPayload(card, actorID))
	return card, nil
}

// UpdateCard runs a guarded field update and announces the new state.
// When the update hands the card to a new assignee, that user's room
// also gets a targeted cardAssigned event, reaching every connection
// they own whichever board it is watching.
func (s *Service) UpdateCard(ctx context.Context, owner string, p store.UpdateCardParams) (*model.Card, error) {
	var card *model.Card
	var previousAssignee string
	err := s.locked(ctx, model.EntityCard, p.CardID, owner, func() error {
		before, err := s.store.GetCard(ctx, p.CardID)
		if err != nil {
			return err
		}
		previousAssignee = before.AssigneeID
		card, err = s.store.UpdateCard(ctx, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.broadcast(ctx, card.BoardID, collab.EventEntityUpdated, cardPayload(card, p.ActorID))
	if card.AssigneeID != "" && card.AssigneeID != previousAssignee {
		s.notifyUser(ctx, card.AssigneeID, collab.EventCardAssigned, collab.CardAssignedPayload{
			CardID:     card.ID,
			BoardID:    card.BoardID,
			ColumnID:   card.ColumnID,
			Title:      card.Title,
			AssigneeID: card.AssigneeID,
			ActorID:    p.ActorID,
		})
	}
	return card, nil
}

// MoveCard runs a guarded move and announces the new position.
func (s *Service) MoveCard(ctx context.Context, owner string, p store.MoveCardParams) (*model.Card, error) {
	var card *model.Card
	err := s.locked(ctx, model.EntityCard, p.CardID, owner, func() error {
		var err error
		card, err = s.store.MoveCard(ctx, p)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.broadcast(ctx, card.BoardID, collab.EventEntityMoved, cardPayload(card, p.ActorID))
	return card, nil
}

// DeleteCard runs a guarded delete and announces the removal.
func (s *Service) DeleteCard(ctx context.Context, owner, cardID string, expectedVersion *int64, actorID string) (*model.Card, error) {
	var card *model.Card
	err := s.locked(ctx, model.EntityCard, cardID, owner, func() error {
		var err error
		card, err = s.store.DeleteCard(ctx, cardID, expectedVersion, actorID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.broadcast(ctx, card.BoardID, collab.EventEntityDeleted, collab.EntityDeletedPayload{
		EntityType: model.EntityCard,
		EntityID:   card.ID,
		BoardID:    card.BoardID,
		ActorID:    actorID,
	})
	return card, nil
}
