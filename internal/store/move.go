package store

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/AnirudhanSS/kanban-app-sub000/internal/model"
	"github.com/AnirudhanSS/kanban-app-sub000/internal/position"
	"github.com/AnirudhanSS/kanban-app-sub000/pkg/collab"
)

// renormTempOffset keeps intermediate renormalization keys clear of any
// position a writer could plausibly have allocated.
const renormTempOffset = int64(1) << 40

// MoveCardParams places a card into a column relative to its new
// siblings. AfterCardID/BeforeCardID name the neighbors; both empty
// means append at the end of the column.
type MoveCardParams struct {
	CardID          string
	ToColumnID      string
	AfterCardID     string
	BeforeCardID    string
	ExpectedVersion *int64
	ActorID         string
}

// MoveCard performs a guarded move: version check, gap allocation
// between the requested neighbors, persist with the version bump, and
// the audit entry - all in one transaction. Position collisions are
// retried with jitter; if retries exhaust, the target column is
// renormalized once and the move replayed.
func (s *Store) MoveCard(ctx context.Context, p MoveCardParams) (*model.Card, error) {
	var moved *model.Card
	attempt := 0
	run := func(forceRenormalize bool) error {
		attempt++
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			card, err := s.moveInTx(tx, p, attempt, forceRenormalize)
			if err != nil {
				return err
			}
			moved = card
			return nil
		})
	}

	err := withPositionRetry(ctx, func() error { return run(false) })
	if collab.IsPositionCollision(err) {
		// Jittered retries did not diverge the writers; restore even
		// spacing and take one last attempt.
		s.log.Debug("position retries exhausted, renormalizing column",
			zap.String("card_id", p.CardID),
			zap.String("column_id", p.ToColumnID))
		err = run(true)
	}
	if err != nil {
		return nil, err
	}
	return moved, nil
}

func (s *Store) moveInTx(tx *gorm.DB, p MoveCardParams, attempt int, forceRenormalize bool) (*model.Card, error) {
	var card model.Card
	if err := tx.First(&card, "id = ? AND archived = ?", p.CardID, false).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound(model.EntityCard, p.CardID)
		}
		return nil, err
	}

	var column model.Column
	if err := tx.First(&column, "id = ? AND archived = ?", p.ToColumnID, false).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound(model.EntityColumn, p.ToColumnID)
		}
		return nil, err
	}
	if column.BoardID != card.BoardID {
		return nil, notFound(model.EntityColumn, p.ToColumnID)
	}

	newVersion, err := CheckAndBump(card.Version, p.ExpectedVersion)
	if err != nil {
		return nil, err
	}

	if forceRenormalize {
		if err := parkCard(tx, &card); err != nil {
			return nil, err
		}
		if err := renormalizeColumnCards(tx, column.ID, card.ID); err != nil {
			return nil, err
		}
	}

	prev, next, err := moveNeighbors(tx, p, column.ID, card.ID)
	if err != nil {
		return nil, err
	}
	if position.Exhausted(prev, next) {
		// The gap between the requested neighbors has collapsed;
		// re-space the column and re-read them inside this transaction.
		if err := parkCard(tx, &card); err != nil {
			return nil, err
		}
		if err := renormalizeColumnCards(tx, column.ID, card.ID); err != nil {
			return nil, err
		}
		prev, next, err = moveNeighbors(tx, p, column.ID, card.ID)
		if err != nil {
			return nil, err
		}
	}

	pos := position.Allocate(prev, next)
	if attempt > 1 {
		// Collision retries add jitter so racing writers diverge,
		// clamped to stay strictly inside the window.
		pos = position.JitterWithin(pos, next)
	}

	before := card
	res := tx.Model(&model.Card{}).
		Where("id = ? AND version = ?", card.ID, card.Version).
		Updates(map[string]any{
			"column_id": column.ID,
			"position":  pos,
			"version":   newVersion,
		})
	if res.Error != nil {
		return nil, translateWrite(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("card %s: %w", card.ID, collab.ErrVersionConflict)
	}

	if err := tx.First(&card, "id = ?", card.ID).Error; err != nil {
		return nil, err
	}
	if err := appendAudit(tx, card.BoardID, p.ActorID, model.EntityCard, card.ID, model.ActionMove, &before, &card); err != nil {
		return nil, err
	}
	return &card, nil
}

// moveNeighbors resolves the requested neighbors into position bounds.
// The moving card is excluded so a reorder within one column does not
// bound itself. The bounds are then narrowed to the first free gap:
// concurrent commits may have landed cards between the named neighbors,
// and allocating across an occupied slot would collide deterministically
// no matter how often it is retried.
func moveNeighbors(tx *gorm.DB, p MoveCardParams, columnID, movingID string) (prev, next *int64, err error) {
	if p.AfterCardID != "" {
		pos, err := siblingPosition(tx, p.AfterCardID, columnID)
		if err != nil {
			return nil, nil, err
		}
		prev = pos
	}
	if p.BeforeCardID != "" {
		pos, err := siblingPosition(tx, p.BeforeCardID, columnID)
		if err != nil {
			return nil, nil, err
		}
		next = pos
	}
	if p.AfterCardID == "" && p.BeforeCardID == "" {
		prev, err = maxCardPosition(tx, columnID, movingID)
		if err != nil {
			return nil, nil, err
		}
		return prev, next, nil
	}
	return narrowWindow(tx, columnID, movingID, prev, next)
}

// narrowWindow shrinks (prev, next) so the open interval contains no
// occupied position. With an after-neighbor the card lands immediately
// after it, before the nearest occupied slot; with only a before-neighbor
// it lands immediately before it, after the nearest occupied slot.
func narrowWindow(tx *gorm.DB, columnID, movingID string, prev, next *int64) (*int64, *int64, error) {
	q := tx.Model(&model.Card{}).
		Where("column_id = ? AND archived = ?", columnID, false)
	if movingID != "" {
		q = q.Where("id <> ?", movingID)
	}
	if prev != nil {
		q = q.Where("position > ?", *prev)
	}
	if next != nil {
		q = q.Where("position < ?", *next)
	}

	var row struct {
		Min   int64
		Max   int64
		Count int64
	}
	err := q.Select("COALESCE(MIN(position), 0) AS min, COALESCE(MAX(position), 0) AS max, COUNT(*) AS count").
		Scan(&row).Error
	if err != nil {
		return nil, nil, err
	}
	if row.Count == 0 {
		return prev, next, nil
	}
	if prev != nil {
		bound := row.Min
		return prev, &bound, nil
	}
	bound := row.Max
	return &bound, next, nil
}

// siblingPosition loads the position of a neighbor card, which must be
// an active card in the target column.
func siblingPosition(tx *gorm.DB, cardID, columnID string) (*int64, error) {
	var sibling model.Card
	err := tx.First(&sibling, "id = ? AND column_id = ? AND archived = ?", cardID, columnID, false).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(model.EntityCard, cardID)
	}
	if err != nil {
		return nil, err
	}
	return &sibling.Position, nil
}

// parkCard moves a card out of the live position range so a following
// renormalization cannot collide with it. The version is untouched; the
// caller assigns the real position (with the version bump) afterwards.
func parkCard(tx *gorm.DB, card *model.Card) error {
	if card.Position == -renormTempOffset {
		return nil
	}
	if err := tx.Model(&model.Card{}).Where("id = ?", card.ID).
		Update("position", -renormTempOffset).Error; err != nil {
		return err
	}
	card.Position = -renormTempOffset
	return nil
}

// renormalizeColumnCards re-spaces all active cards in a column to even
// DefaultGap intervals, preserving their relative order. Two passes
// through a distant temporary range keep every intermediate state clear
// of the unique (column, position) index. Versions are untouched:
// renormalization changes no user-visible content.
func renormalizeColumnCards(tx *gorm.DB, columnID, excludeID string) error {
	q := tx.Model(&model.Card{}).
		Where("column_id = ? AND archived = ?", columnID, false)
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	var ids []string
	if err := q.Order("position, id").Pluck("id", &ids).Error; err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	for i, id := range ids {
		temp := -renormTempOffset - int64(i+1)
		if err := tx.Model(&model.Card{}).Where("id = ?", id).
			Update("position", temp).Error; err != nil {
			return err
		}
	}
	keys := position.Renormalized(len(ids))
	for i, id := range ids {
		if err := tx.Model(&model.Card{}).Where("id = ?", id).
			Update("position", keys[i]).Error; err != nil {
			return err
		}
	}
	return nil
}
