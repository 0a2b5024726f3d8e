// Package event provides the pub/sub event bus for chatrelay using watermill.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Topic is the watermill topic all chatrelay events are published on.
const Topic = "chatrelay.events"

// EventType represents the type of event.
type EventType string

const (
	SessionCreated EventType = "session.created"
	SessionDeleted EventType = "session.deleted"
	MessageCreated EventType = "message.created"
	MessageFailed  EventType = "message.failed"
	RunStatus      EventType = "run.status"
)

// Event is published after a state change has been persisted.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	Data      any       `json:"data,omitempty"`
	Time      time.Time `json:"time"`
}

// Bus publishes events on a watermill GoChannel. A nil *Bus is valid and
// discards everything, so components can run without one.
type Bus struct {
	pubsub *gochannel.GoChannel

	mu     sync.RWMutex
	closed bool
}

// NewBus creates a bus that logs through logger. A nil logger disables
// watermill's own logging.
func NewBus(logger watermill.LoggerAdapter) *Bus {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer: 64,
				Persistent:          false,
				// Waiting for the ack keeps events in publish order.
				BlockPublishUntilSubscriberAck: true,
			},
			logger,
		),
	}
}

// Publish encodes e and hands it to every current subscriber. Events
// published with no subscribers are dropped.
func (b *Bus) Publish(e Event) error {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil
	}

	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("type", string(e.Type))
	msg.Metadata.Set("session_id", e.SessionID)
	return b.pubsub.Publish(Topic, msg)
}

// Subscribe returns a channel of events that stays open until ctx is done
// or the bus is closed. If filter is non-empty only those types are delivered.
// Events arriving while the channel buffer is full are dropped.
func (b *Bus) Subscribe(ctx context.Context, filter ...EventType) (<-chan Event, error) {
	if b == nil {
		return nil, fmt.Errorf("event bus not configured")
	}
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil, fmt.Errorf("event bus closed")
	}
	messages, err := b.pubsub.Subscribe(ctx, Topic)
	b.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	wanted := make(map[EventType]bool, len(filter))
	for _, t := range filter {
		wanted[t] = true
	}

	out := make(chan Event, 16)
	go func() {
		defer close(out)
		for msg := range messages {
			var e Event
			err := json.Unmarshal(msg.Payload, &e)
			msg.Ack()
			if err != nil || (len(wanted) > 0 && !wanted[e.Type]) {
				continue
			}
			// A subscriber that falls behind loses events rather than
			// stalling publishers.
			select {
			case out <- e:
			case <-ctx.Done():
				return
			default:
			}
		}
	}()
	return out, nil
}

// Close closes the bus and all of its subscriptions.
func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.pubsub.Close()
}
