package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oraculo/protocol/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Envelope is the JSON payload published for every protocol event.
type Envelope struct {
	Type      domain.EventType `json:"type"`
	Market    uuid.UUID        `json:"market_id"`
	Data      json.RawMessage  `json:"data"`
	Timestamp time.Time        `json:"timestamp"`
}

// EventBus publishes committed protocol events to a Redis pub/sub channel.
// It implements service.Sink.
type EventBus struct {
	rdb     *redis.Client
	channel string
}

// NewEventBus creates an EventBus publishing on channel.
func NewEventBus(c *Client, channel string) *EventBus {
	return &EventBus{rdb: c.rdb, channel: channel}
}

// Publish sends e on the bus channel.
func (b *EventBus) Publish(ctx context.Context, e domain.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("redis: marshal %s: %w", e.EventType(), err)
	}
	payload, err := json.Marshal(Envelope{
		Type:      e.EventType(),
		Market:    domain.EventMarket(e),
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("redis: marshal envelope: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", b.channel, err)
	}
	return nil
}

// Subscribe returns decoded envelopes from the bus channel until ctx is
// cancelled, at which point the returned channel is closed.
func (b *EventBus) Subscribe(ctx context.Context) (<-chan Envelope, error) {
	pubsub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", b.channel, err)
	}

	out := make(chan Envelope, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					continue
				}
				select {
				case out <- env:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
