package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/AnirudhanSS/kanban-app-sub000/internal/model"
	"github.com/AnirudhanSS/kanban-app-sub000/internal/position"
	"github.com/AnirudhanSS/kanban-app-sub000/pkg/collab"
)

// seedCards creates a column with n cards and returns them in order.
func seedCards(t *testing.T, s *Store, columnID string, n int) []*model.Card {
	t.Helper()
	ctx := context.Background()
	cards := make([]*model.Card, n)
	for i := range cards {
		card, err := s.CreateCard(ctx, columnID, string(rune('a'+i)), "", "seed")
		require.NoError(t, err)
		cards[i] = card
	}
	return cards
}

func TestMoveCard(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	board, todo := seedBoard(t, s)
	doing, err := s.CreateColumn(ctx, board.ID, "doing", "owner")
	require.NoError(t, err)
	cards := seedCards(t, s, todo.ID, 3) // positions 1000, 2000, 3000

	t.Run("insert between neighbors takes the midpoint", func(t *testing.T) {
		moved, err := s.MoveCard(ctx, MoveCardParams{
			CardID:          cards[2].ID,
			ToColumnID:      todo.ID,
			AfterCardID:     cards[0].ID,
			BeforeCardID:    cards[1].ID,
			ExpectedVersion: ptr(int64(1)),
			ActorID:         "alice",
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1500), moved.Position)
		assert.Equal(t, int64(2), moved.Version)
	})

	t.Run("move is audited with both snapshots", func(t *testing.T) {
		entries, err := s.ListAudit(ctx, board.ID, 1)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, model.ActionMove, entries[0].Action)
		assert.NotEmpty(t, entries[0].OldSnapshot)
		assert.NotEmpty(t, entries[0].NewSnapshot)
	})

	t.Run("cross-column move appends at the end by default", func(t *testing.T) {
		moved, err := s.MoveCard(ctx, MoveCardParams{
			CardID:     cards[0].ID,
			ToColumnID: doing.ID,
			ActorID:    "alice",
		})
		require.NoError(t, err)
		assert.Equal(t, doing.ID, moved.ColumnID)
		assert.Equal(t, int64(1000), moved.Position)
	})

	t.Run("stale expectation is rejected", func(t *testing.T) {
		_, err := s.MoveCard(ctx, MoveCardParams{
			CardID:          cards[1].ID,
			ToColumnID:      doing.ID,
			ExpectedVersion: ptr(int64(42)),
			ActorID:         "bob",
		})
		assert.True(t, collab.IsVersionConflict(err))
	})

	t.Run("unknown card is not found", func(t *testing.T) {
		_, err := s.MoveCard(ctx, MoveCardParams{
			CardID:     "nope",
			ToColumnID: doing.ID,
			ActorID:    "bob",
		})
		assert.True(t, collab.IsNotFound(err))
	})

	t.Run("unknown target column is not found", func(t *testing.T) {
		_, err := s.MoveCard(ctx, MoveCardParams{
			CardID:     cards[1].ID,
			ToColumnID: "nope",
			ActorID:    "bob",
		})
		assert.True(t, collab.IsNotFound(err))
	})
}

func TestMoveCardBetweenOccupiedNeighbors(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	_, todo := seedBoard(t, s)
	cards := seedCards(t, s, todo.ID, 4) // a..d at 1000, 2000, 3000, 4000

	// First move squeezes c between a and b.
	first, err := s.MoveCard(ctx, MoveCardParams{
		CardID:       cards[2].ID,
		ToColumnID:   todo.ID,
		AfterCardID:  cards[0].ID,
		BeforeCardID: cards[1].ID,
		ActorID:      "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1500), first.Position)

	t.Run("a second move naming the same neighbors slots in before the occupant", func(t *testing.T) {
		// The slot between a and b is no longer free; the window must
		// narrow to (a, c) instead of colliding with c's position.
		second, err := s.MoveCard(ctx, MoveCardParams{
			CardID:       cards[3].ID,
			ToColumnID:   todo.ID,
			AfterCardID:  cards[0].ID,
			BeforeCardID: cards[1].ID,
			ActorID:      "bob",
		})
		require.NoError(t, err)
		assert.Greater(t, second.Position, int64(1000))
		assert.Less(t, second.Position, first.Position)
	})

	t.Run("resulting order is a, d, c, b", func(t *testing.T) {
		state, err := s.BoardSnapshot(ctx, cards[0].BoardID)
		require.NoError(t, err)
		got := state.Columns[0].Cards
		require.Len(t, got, 4)
		assert.Equal(t, cards[0].ID, got[0].ID)
		assert.Equal(t, cards[3].ID, got[1].ID)
		assert.Equal(t, cards[2].ID, got[2].ID)
		assert.Equal(t, cards[1].ID, got[3].ID)
	})
}

func TestMoveCardBeforeOnlyNarrowsToNearestSibling(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	_, todo := seedBoard(t, s)
	cards := seedCards(t, s, todo.ID, 3) // a, b, c at 1000, 2000, 3000

	// "Before b" must mean immediately before b: the card lands between
	// a and b, not below a.
	moved, err := s.MoveCard(ctx, MoveCardParams{
		CardID:       cards[2].ID,
		ToColumnID:   todo.ID,
		BeforeCardID: cards[1].ID,
		ActorID:      "alice",
	})
	require.NoError(t, err)
	assert.Greater(t, moved.Position, int64(1000))
	assert.Less(t, moved.Position, int64(2000))
}

func TestMoveCardAcrossBoards(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	_, todo := seedBoard(t, s)
	card := seedCards(t, s, todo.ID, 1)[0]

	other, err := s.CreateBoard(ctx, "other", "owner")
	require.NoError(t, err)
	foreign, err := s.CreateColumn(ctx, other.ID, "todo", "owner")
	require.NoError(t, err)

	// Columns on another board are invisible to the move.
	_, err = s.MoveCard(ctx, MoveCardParams{
		CardID:     card.ID,
		ToColumnID: foreign.ID,
		ActorID:    "alice",
	})
	assert.True(t, collab.IsNotFound(err))
}

func TestMoveCardRenormalizesExhaustedGap(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	_, todo := seedBoard(t, s)
	cards := seedCards(t, s, todo.ID, 3) // 1000, 2000, 3000

	// Ping-pong two cards into the slot right after the first card: each
	// move lands strictly between the anchor and the previous insert,
	// halving the gap. ~10 halvings exhaust a gap of 1000 and force a
	// renormalization, after which moves keep succeeding.
	anchor := cards[0].ID
	stay, move := cards[1].ID, cards[2].ID
	for i := 0; i < 15; i++ {
		moved, err := s.MoveCard(ctx, MoveCardParams{
			CardID:       move,
			ToColumnID:   todo.ID,
			AfterCardID:  anchor,
			BeforeCardID: stay,
			ActorID:      "alice",
		})
		require.NoError(t, err)
		left, err := s.GetCard(ctx, anchor)
		require.NoError(t, err)
		right, err := s.GetCard(ctx, stay)
		require.NoError(t, err)
		require.Greater(t, moved.Position, left.Position)
		require.Less(t, moved.Position, right.Position)
		stay, move = move, stay
	}

	// Order survived: a, c, b.
	state, err := s.BoardSnapshot(ctx, cards[0].BoardID)
	require.NoError(t, err)
	require.Len(t, state.Columns, 1)
	got := state.Columns[0].Cards
	require.Len(t, got, 3)
	assert.Equal(t, cards[0].ID, got[0].ID)
	assert.Equal(t, cards[2].ID, got[1].ID)
	assert.Equal(t, cards[1].ID, got[2].ID)
}

func TestRenormalizeColumnCards(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	_, todo := seedBoard(t, s)
	cards := seedCards(t, s, todo.ID, 4)

	require.NoError(t, s.db.Transaction(func(tx *gorm.DB) error {
		return renormalizeColumnCards(tx, todo.ID, "")
	}))

	state, err := s.BoardSnapshot(ctx, cards[0].BoardID)
	require.NoError(t, err)
	got := state.Columns[0].Cards
	require.Len(t, got, 4)
	for i, card := range got {
		assert.Equal(t, cards[i].ID, card.ID, "relative order preserved")
		assert.Equal(t, int64(i+1)*position.DefaultGap, card.Position)
	}
}

func TestCheckAndBump(t *testing.T) {
	t.Run("matching expectation bumps", func(t *testing.T) {
		v, err := CheckAndBump(3, ptr(int64(3)))
		require.NoError(t, err)
		assert.Equal(t, int64(4), v)
	})

	t.Run("nil expectation always bumps", func(t *testing.T) {
		v, err := CheckAndBump(7, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(8), v)
	})

	t.Run("mismatch is a version conflict", func(t *testing.T) {
		_, err := CheckAndBump(5, ptr(int64(4)))
		assert.True(t, collab.IsVersionConflict(err))
	})
}
