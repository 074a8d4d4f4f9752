package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Room-scoped event broadcast over Redis Pub/Sub.
//
// Each room maps to one channel; publishing reaches every server replica,
// and each replica forwards the frame to its local connections subscribed
// to that room. Delivery is best-effort and at-least-once for connected
// subscribers only. Ordering: frames published for the same entity keep
// program order because the entity lock serializes the mutations that
// produce them; no ordering is guaranteed across entities.

// RoomMessage is one event received from a room subscription. Raw holds
// the envelope frame exactly as published, ready to forward to a socket.
type RoomMessage struct {
	Room     string
	Envelope Envelope
	Raw      []byte
}

// Publish broadcasts an event to a room. The payload must be
// JSON-serializable. There is no queueing for offline subscribers.
func (c *Client) Publish(ctx context.Context, room, event string, payload any) error {
	frame, err := EncodeEvent(event, payload)
	if err != nil {
		return err
	}
	if err := c.rdb.Publish(ctx, RoomChannel(c.instance, room), frame).Err(); err != nil {
		return fmt.Errorf("failed to publish %s to room %s: %w", event, room, err)
	}
	return nil
}

// Subscription is an active Pub/Sub subscription to one or more rooms.
// Callers must Close() it when done; closing is idempotent.
type Subscription struct {
	events <-chan *RoomMessage
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of room messages. It is closed when the
// subscription closes or the context is cancelled.
func (s *Subscription) Events() <-chan *RoomMessage {
	return s.events
}

// Errors returns the channel of non-fatal subscription errors (for
// example, malformed frames). The subscription continues after an error.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription and releases its resources. Implements
// io.Closer. Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeRooms subscribes to the named rooms.
func (c *Client) SubscribeRooms(ctx context.Context, rooms ...string) (*Subscription, error) {
	if len(rooms) == 0 {
		return nil, fmt.Errorf("at least one room is required")
	}
	channels := make([]string, len(rooms))
	for i, room := range rooms {
		channels[i] = RoomChannel(c.instance, room)
	}
	return c.subscribe(ctx, false, channels...)
}

// SubscribeAllRooms subscribes to every room of the instance. Server
// replicas use this to fan incoming frames out to their local
// connections.
func (c *Client) SubscribeAllRooms(ctx context.Context) (*Subscription, error) {
	return c.subscribe(ctx, true, RoomChannelPattern(c.instance))
}

func (c *Client) subscribe(ctx context.Context, pattern bool, channels ...string) (*Subscription, error) {
	var pubsub *redis.PubSub
	if pattern {
		pubsub = c.rdb.PSubscribe(ctx, channels...)
	} else {
		pubsub = c.rdb.Subscribe(ctx, channels...)
	}

	eventsChan := make(chan *RoomMessage, 16)
	errorsChan := make(chan error, 16)
	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				room := RoomFromChannel(c.instance, msg.Channel)
				var env Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal room frame: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				rm := &RoomMessage{
					Room:     room,
					Envelope: env,
					Raw:      []byte(msg.Payload),
				}
				select {
				case eventsChan <- rm:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}
