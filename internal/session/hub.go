package session

import (
	"context"
	"strings"

	"github.com/olahol/melody"
	"go.uber.org/zap"

	"github.com/AnirudhanSS/kanban-app-sub000/pkg/collab"
)

// Hub forwards room events from the shared bus to local WebSocket
// connections. Every instance runs one hub subscribed to all rooms of
// its namespace, so a mutation processed by any instance reaches the
// clients of every instance.
type Hub struct {
	handler *Handler
	client  *collab.Client
	log     *zap.Logger
}

// NewHub wires the bus subscription to the connection handler.
func NewHub(handler *Handler, client *collab.Client, log *zap.Logger) *Hub {
	return &Hub{handler: handler, client: client, log: log}
}

// Run consumes room events until the context is cancelled. Bus errors
// are logged and the loop continues; clients self-heal via snapshot
// refetch and full-set presence updates.
func (h *Hub) Run(ctx context.Context) error {
	sub, err := h.client.SubscribeAllRooms(ctx)
	if err != nil {
		return err
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-sub.Errors():
			if !ok {
				return nil
			}
			h.log.Warn("room subscription error", zap.Error(err))
		case msg, ok := <-sub.Events():
			if !ok {
				return nil
			}
			h.deliver(msg)
		}
	}
}

// deliver fans one room event out to the sessions that belong to the
// room. The raw frame is forwarded untouched.
func (h *Hub) deliver(msg *collab.RoomMessage) {
	err := h.handler.Melody().BroadcastFilter(msg.Raw, func(s *melody.Session) bool {
		data, err := getSessionData(s)
		if err != nil {
			return false
		}
		return sessionInRoom(data, msg.Room)
	})
	if err != nil {
		h.log.Warn("failed to deliver room event",
			zap.String("room", msg.Room),
			zap.String("event", msg.Envelope.Event),
			zap.Error(err))
	}
}

// sessionInRoom reports whether a connection belongs to a room. Board
// rooms match the joined board; user rooms match the authenticated user
// on every connection it owns.
func sessionInRoom(data *sessionData, room string) bool {
	kind, id, ok := strings.Cut(room, ":")
	if !ok {
		return false
	}
	switch kind {
	case "board":
		return data.board() == id
	case "user":
		return data.userID == id
	default:
		return false
	}
}
