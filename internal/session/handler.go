package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/olahol/melody"
	"go.uber.org/zap"

	"github.com/AnirudhanSS/kanban-app-sub000/internal/store"
	"github.com/AnirudhanSS/kanban-app-sub000/pkg/collab"
)

// sessionDataKey is the melody session key holding the connection state.
const sessionDataKey = "data"

// sessionData is the per-connection state. connID and userID are fixed
// at upgrade time; boardID is written by the session's handler goroutine
// and read by the hub's broadcast filter, so it sits behind a mutex.
type sessionData struct {
	connID string
	userID string

	mu      sync.Mutex
	boardID string
}

func (d *sessionData) board() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.boardID
}

func (d *sessionData) setBoard(boardID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.boardID = boardID
}

// clearBoard resets the membership and returns the board it replaced,
// so leave can act exactly once even if invoked concurrently.
func (d *sessionData) clearBoard() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	boardID := d.boardID
	d.boardID = ""
	return boardID
}

// Handler terminates WebSocket connections and dispatches client events
// into the guarded-mutation pipeline.
type Handler struct {
	m           *melody.Melody
	svc         *Service
	presenceTTL time.Duration
	log         *zap.Logger
}

// NewHandler builds a WebSocket handler on a fresh melody instance.
func NewHandler(svc *Service, presenceTTL time.Duration, log *zap.Logger) *Handler {
	h := &Handler{
		m:           melody.New(),
		svc:         svc,
		presenceTTL: presenceTTL,
		log:         log,
	}
	h.m.HandleConnect(h.handleConnect)
	h.m.HandleMessage(h.handleMessage)
	h.m.HandleDisconnect(h.handleDisconnect)
	return h
}

// Melody exposes the underlying instance for the broadcast hub.
func (h *Handler) Melody() *melody.Melody {
	return h.m
}

// ServeWS upgrades an authenticated request. userID comes from the
// redeemed connection ticket; the connection id doubles as the lock
// owner token for mutations initiated on this connection.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request, userID string) error {
	return h.m.HandleRequestWithKeys(w, r, map[string]any{
		sessionDataKey: &sessionData{
			connID: uuid.New().String(),
			userID: userID,
		},
	})
}

// Close tears down every live connection.
func (h *Handler) Close() error {
	return h.m.Close()
}

func getSessionData(s *melody.Session) (*sessionData, error) {
	v, ok := s.Get(sessionDataKey)
	if !ok {
		return nil, fmt.Errorf("session has no connection state")
	}
	data, ok := v.(*sessionData)
	if !ok {
		return nil, fmt.Errorf("session state has unexpected type %T", v)
	}
	return data, nil
}

func (h *Handler) handleConnect(s *melody.Session) {
	data, err := getSessionData(s)
	if err != nil {
		h.log.Error("websocket connect without state", zap.Error(err))
		_ = s.Close()
		return
	}
	h.log.Info("websocket connected",
		zap.String("conn_id", data.connID),
		zap.String("user_id", data.userID))
}

func (h *Handler) handleMessage(s *melody.Session, msg []byte) {
	data, err := getSessionData(s)
	if err != nil {
		return
	}
	send := func(event string, payload any) {
		frame, err := collab.EncodeEvent(event, payload)
		if err != nil {
			h.log.Error("failed to encode reply", zap.Error(err))
			return
		}
		if err := s.Write(frame); err != nil {
			h.log.Debug("failed to write to session",
				zap.String("conn_id", data.connID), zap.Error(err))
		}
	}
	h.dispatch(s.Request.Context(), data, msg, send)
}

func (h *Handler) handleDisconnect(s *melody.Session) {
	data, err := getSessionData(s)
	if err != nil {
		return
	}
	// The request context is done once the socket closes.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h.leaveCurrentBoard(ctx, data)
	h.log.Info("websocket disconnected",
		zap.String("conn_id", data.connID),
		zap.String("user_id", data.userID))
}

// dispatch routes one client frame. send delivers replies to the
// originating connection only; board-wide effects travel through rooms.
func (h *Handler) dispatch(ctx context.Context, data *sessionData, msg []byte, send func(event string, payload any)) {
	env, err := collab.DecodeEnvelope(msg)
	if err != nil {
		send(collab.EventError, collab.ErrorPayload{Message: err.Error()})
		return
	}

	switch env.Event {
	case collab.EventJoinBoard:
		h.onJoinBoard(ctx, data, env, send)
	case collab.EventLeaveBoard:
		h.leaveCurrentBoard(ctx, data)
	case collab.EventMoveEntity:
		h.onMoveEntity(ctx, data, env, send)
	case collab.EventHeartbeat:
		h.onHeartbeat(ctx, data, send)
	default:
		send(collab.EventError, collab.ErrorPayload{
			Message: fmt.Sprintf("unknown event %q", env.Event),
		})
	}
}

func (h *Handler) onJoinBoard(ctx context.Context, data *sessionData, env *collab.Envelope, send func(string, any)) {
	var req collab.JoinBoardRequest
	if err := decodePayload(env, &req); err != nil {
		send(collab.EventError, collab.ErrorPayload{Message: err.Error()})
		return
	}
	if _, err := h.svc.Store().GetBoard(ctx, req.BoardID); err != nil {
		send(collab.EventError, collab.ErrorPayload{Message: fmt.Sprintf("board %s not found", req.BoardID)})
		return
	}

	// One board per connection: joining a new board leaves the old one.
	if current := data.board(); current != "" && current != req.BoardID {
		h.leaveCurrentBoard(ctx, data)
	}

	if err := h.svc.Collab().JoinBoard(ctx, req.BoardID, data.userID, data.connID, h.presenceTTL); err != nil {
		h.log.Error("failed to join board",
			zap.String("board_id", req.BoardID), zap.Error(err))
		send(collab.EventError, collab.ErrorPayload{Message: "failed to join board"})
		return
	}
	data.setBoard(req.BoardID)
	h.publishPresence(ctx, req.BoardID)
}

func (h *Handler) leaveCurrentBoard(ctx context.Context, data *sessionData) {
	boardID := data.clearBoard()
	if boardID == "" {
		return
	}
	_, _, err := h.svc.Collab().LeaveBoard(ctx, data.connID)
	if err != nil {
		h.log.Warn("failed to leave board",
			zap.String("board_id", boardID), zap.Error(err))
		return
	}
	h.publishPresence(ctx, boardID)
}

func (h *Handler) onMoveEntity(ctx context.Context, data *sessionData, env *collab.Envelope, send func(string, any)) {
	var req collab.MoveEntityRequest
	if err := decodePayload(env, &req); err != nil {
		send(collab.EventError, collab.ErrorPayload{Message: err.Error()})
		return
	}

	_, err := h.svc.MoveCard(ctx, data.connID, store.MoveCardParams{
		CardID:          req.EntityID,
		ToColumnID:      req.ParentID,
		AfterCardID:     req.InsertAfter,
		BeforeCardID:    req.InsertBefore,
		ExpectedVersion: req.ExpectedVersion,
		ActorID:         data.userID,
	})
	switch {
	case err == nil:
		// The board room broadcast carries the result.
	case collab.IsLockHeld(err):
		send(collab.EventLockDenied, collab.LockDeniedPayload{EntityID: req.EntityID})
	case collab.IsVersionConflict(err):
		send(collab.EventVersionConflict, collab.VersionConflictPayload{EntityID: req.EntityID})
	case collab.IsNotFound(err):
		send(collab.EventError, collab.ErrorPayload{Message: err.Error()})
	default:
		h.log.Error("move failed",
			zap.String("entity_id", req.EntityID), zap.Error(err))
		send(collab.EventError, collab.ErrorPayload{Message: "internal error"})
	}
}

func (h *Handler) onHeartbeat(ctx context.Context, data *sessionData, send func(string, any)) {
	live, err := h.svc.Collab().Heartbeat(ctx, data.connID, h.presenceTTL)
	if err != nil {
		h.log.Warn("heartbeat failed",
			zap.String("conn_id", data.connID), zap.Error(err))
		return
	}
	boardID := data.board()
	if !live && boardID != "" {
		// Presence expired while the socket stayed up (e.g. a long GC
		// pause or network stall); re-register and re-announce.
		if err := h.svc.Collab().JoinBoard(ctx, boardID, data.userID, data.connID, h.presenceTTL); err != nil {
			send(collab.EventError, collab.ErrorPayload{Message: "presence lost, rejoin the board"})
			return
		}
		h.publishPresence(ctx, boardID)
	}
}

// publishPresence broadcasts the full online set of a board. Full-set
// payloads make presence self-healing: a missed delta is corrected by
// the next update.
func (h *Handler) publishPresence(ctx context.Context, boardID string) {
	userIDs, err := h.svc.Collab().ListOnline(ctx, boardID)
	if err != nil {
		h.log.Warn("failed to list online users",
			zap.String("board_id", boardID), zap.Error(err))
		return
	}
	if err := h.svc.Collab().Publish(ctx, collab.BoardRoom(boardID), collab.EventPresenceUpdate, collab.PresenceUpdatePayload{
		BoardID: boardID,
		UserIDs: userIDs,
	}); err != nil {
		h.log.Warn("failed to publish presence update",
			zap.String("board_id", boardID), zap.Error(err))
	}
}

func decodePayload(env *collab.Envelope, dst interface{ Validate() error }) error {
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return fmt.Errorf("malformed %s payload: %w", env.Event, err)
	}
	return dst.Validate()
}
