package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/AnirudhanSS/kanban-app-sub000/pkg/collab"
)

// sentEvent captures one reply written back to a connection.
type sentEvent struct {
	event   string
	payload any
}

// dispatchFrame runs one client frame through the handler and captures
// the replies sent to the originating connection.
func dispatchFrame(t *testing.T, h *Handler, data *sessionData, event string, payload any) []sentEvent {
	t.Helper()
	frame, err := collab.EncodeEvent(event, payload)
	require.NoError(t, err)

	var sent []sentEvent
	h.dispatch(context.Background(), data, frame, func(event string, payload any) {
		sent = append(sent, sentEvent{event: event, payload: payload})
	})
	return sent
}

func setupHandler(t *testing.T) (*Handler, *Service, *collab.Client) {
	t.Helper()
	svc, client := setupService(t)
	h := NewHandler(svc, 30*time.Second, zap.NewNop())
	return h, svc, client
}

func TestDispatchJoinBoard(t *testing.T) {
	h, svc, client := setupHandler(t)
	ctx := context.Background()
	boardID, _, _ := seedCard(t, svc)

	t.Run("join registers presence and publishes the online set", func(t *testing.T) {
		sub, err := client.SubscribeRooms(ctx, collab.BoardRoom(boardID))
		require.NoError(t, err)
		defer sub.Close()

		data := &sessionData{connID: "c1", userID: "alice"}
		sent := dispatchFrame(t, h, data, collab.EventJoinBoard, collab.JoinBoardRequest{BoardID: boardID})
		assert.Empty(t, sent)
		assert.Equal(t, boardID, data.board())

		msg := waitForEvent(t, sub, collab.EventPresenceUpdate)
		var p collab.PresenceUpdatePayload
		require.NoError(t, json.Unmarshal(msg.Envelope.Data, &p))
		assert.Equal(t, []string{"alice"}, p.UserIDs)
	})

	t.Run("joining an unknown board is an error reply", func(t *testing.T) {
		data := &sessionData{connID: "c2", userID: "alice"}
		badID := "6a27c1f2-9a65-4f0e-9df6-2f5d9c3f0a11"
		sent := dispatchFrame(t, h, data, collab.EventJoinBoard, collab.JoinBoardRequest{BoardID: badID})
		require.Len(t, sent, 1)
		assert.Equal(t, collab.EventError, sent[0].event)
		assert.Empty(t, data.board())
	})

	t.Run("a malformed board id is rejected before any lookup", func(t *testing.T) {
		data := &sessionData{connID: "c3", userID: "alice"}
		sent := dispatchFrame(t, h, data, collab.EventJoinBoard, collab.JoinBoardRequest{BoardID: "not-a-uuid"})
		require.Len(t, sent, 1)
		assert.Equal(t, collab.EventError, sent[0].event)
	})
}

func TestDispatchJoinSwitchesBoards(t *testing.T) {
	h, svc, client := setupHandler(t)
	ctx := context.Background()
	firstID, _, _ := seedCard(t, svc)
	second, err := svc.CreateBoard(ctx, "other", "owner")
	require.NoError(t, err)

	data := &sessionData{connID: "c1", userID: "alice"}
	dispatchFrame(t, h, data, collab.EventJoinBoard, collab.JoinBoardRequest{BoardID: firstID})
	dispatchFrame(t, h, data, collab.EventJoinBoard, collab.JoinBoardRequest{BoardID: second.ID})
	assert.Equal(t, second.ID, data.board())

	// Presence moved with the connection.
	online, err := client.ListOnline(ctx, firstID)
	require.NoError(t, err)
	assert.Empty(t, online)
	online, err = client.ListOnline(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, online)
}

func TestDispatchLeaveBoard(t *testing.T) {
	h, svc, client := setupHandler(t)
	ctx := context.Background()
	boardID, _, _ := seedCard(t, svc)

	data := &sessionData{connID: "c1", userID: "alice"}
	dispatchFrame(t, h, data, collab.EventJoinBoard, collab.JoinBoardRequest{BoardID: boardID})
	sent := dispatchFrame(t, h, data, collab.EventLeaveBoard, nil)
	assert.Empty(t, sent)
	assert.Empty(t, data.board())

	online, err := client.ListOnline(ctx, boardID)
	require.NoError(t, err)
	assert.Empty(t, online)
}

func TestDispatchMoveEntity(t *testing.T) {
	h, svc, client := setupHandler(t)
	ctx := context.Background()
	_, columnID, cardID := seedCard(t, svc)

	t.Run("successful move replies with nothing", func(t *testing.T) {
		data := &sessionData{connID: "c1", userID: "alice"}
		sent := dispatchFrame(t, h, data, collab.EventMoveEntity, collab.MoveEntityRequest{
			EntityID:        cardID,
			ParentID:        columnID,
			ExpectedVersion: ptr(int64(1)),
		})
		assert.Empty(t, sent)
	})

	t.Run("stale version replies with versionConflict", func(t *testing.T) {
		data := &sessionData{connID: "c1", userID: "alice"}
		sent := dispatchFrame(t, h, data, collab.EventMoveEntity, collab.MoveEntityRequest{
			EntityID:        cardID,
			ParentID:        columnID,
			ExpectedVersion: ptr(int64(1)), // bumped to 2 above
		})
		require.Len(t, sent, 1)
		assert.Equal(t, collab.EventVersionConflict, sent[0].event)
	})

	t.Run("held lock replies with lockDenied", func(t *testing.T) {
		ok, err := client.AcquireLock(ctx, "card:"+cardID, "otherConn", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
		defer func() {
			require.NoError(t, client.ReleaseLock(ctx, "card:"+cardID, "otherConn"))
		}()

		data := &sessionData{connID: "c1", userID: "alice"}
		sent := dispatchFrame(t, h, data, collab.EventMoveEntity, collab.MoveEntityRequest{
			EntityID: cardID,
			ParentID: columnID,
		})
		require.Len(t, sent, 1)
		assert.Equal(t, collab.EventLockDenied, sent[0].event)
	})

	t.Run("invalid payload replies with error", func(t *testing.T) {
		data := &sessionData{connID: "c1", userID: "alice"}
		sent := dispatchFrame(t, h, data, collab.EventMoveEntity, collab.MoveEntityRequest{
			EntityID: "not-a-uuid",
			ParentID: columnID,
		})
		require.Len(t, sent, 1)
		assert.Equal(t, collab.EventError, sent[0].event)
	})
}

func TestDispatchHeartbeat(t *testing.T) {
	h, svc, client := setupHandler(t)
	ctx := context.Background()
	boardID, _, _ := seedCard(t, svc)

	data := &sessionData{connID: "c1", userID: "alice"}
	dispatchFrame(t, h, data, collab.EventJoinBoard, collab.JoinBoardRequest{BoardID: boardID})

	sent := dispatchFrame(t, h, data, collab.EventHeartbeat, nil)
	assert.Empty(t, sent)

	online, err := client.ListOnline(ctx, boardID)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, online)
}

func TestDispatchUnknownEvent(t *testing.T) {
	h, _, _ := setupHandler(t)

	data := &sessionData{connID: "c1", userID: "alice"}
	sent := dispatchFrame(t, h, data, "selfDestruct", nil)
	require.Len(t, sent, 1)
	assert.Equal(t, collab.EventError, sent[0].event)
}

func TestDispatchMalformedFrame(t *testing.T) {
	h, _, _ := setupHandler(t)

	var sent []sentEvent
	h.dispatch(context.Background(), &sessionData{connID: "c1", userID: "alice"}, []byte("{nope"), func(event string, payload any) {
		sent = append(sent, sentEvent{event: event, payload: payload})
	})
	require.Len(t, sent, 1)
	assert.Equal(t, collab.EventError, sent[0].event)
}

func TestSessionInRoom(t *testing.T) {
	data := &sessionData{connID: "c1", userID: "alice"}
	data.setBoard("b1")

	assert.True(t, sessionInRoom(data, "board:b1"))
	assert.False(t, sessionInRoom(data, "board:b2"))
	assert.True(t, sessionInRoom(data, "user:alice"))
	assert.False(t, sessionInRoom(data, "user:bob"))
	assert.False(t, sessionInRoom(data, "garbage"))
}

// The hub's broadcast filter reads board membership while the session
// goroutine rewrites it on join/leave; both paths must be safe to run
// concurrently (the race detector trips here without the lock).
func TestSessionDataConcurrentBoardAccess(t *testing.T) {
	data := &sessionData{connID: "c1", userID: "alice"}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				data.setBoard("b1")
				data.clearBoard()
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				room := "board:b1"
				if sessionInRoom(data, room) != (data.board() == "b1") {
					// Membership may flip between the two reads; only
					// the values "b1" and "" are ever observable.
					got := data.board()
					if got != "" && got != "b1" {
						t.Errorf("torn board value %q", got)
						return
					}
				}
			}
		}()
	}
	wg.Wait()

	t.Run("clearBoard reports the replaced board exactly once", func(t *testing.T) {
		data.setBoard("b2")
		assert.Equal(t, "b2", data.clearBoard())
		assert.Empty(t, data.clearBoard())
	})
}
