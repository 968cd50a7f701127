package redis

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"

	"ridehail/internal/domain"
)

// TripChannel returns the pub/sub channel carrying status events of a trip.
func TripChannel(tripID string) string {
	return "trip." + tripID
}

// EventBus publishes and subscribes to trip status events over Redis Pub/Sub.
type EventBus struct {
	client *redis.Client
}

// NewEventBus creates a new EventBus.
func NewEventBus(client *redis.Client) *EventBus {
	return &EventBus{client: client}
}

// Name identifies the publisher in logs.
func (b *EventBus) Name() string { return "redis" }

// Publish sends an encoded event to the trip's channel.
func (b *EventBus) Publish(ctx context.Context, event domain.TripStatusEvent, payload []byte) error {
	return b.client.Publish(ctx, TripChannel(event.TripID), payload).Err()
}

// Subscribe opens a subscription to the trip's channel and waits for Redis
// to confirm it. Payloads arrive on the returned channel until the returned
// close function is called.
func (b *EventBus) Subscribe(ctx context.Context, tripID string) (<-chan []byte, func() error, error) {
	sub := b.client.Subscribe(ctx, TripChannel(tripID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, err
	}

	out := make(chan []byte)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			select {
			case out <- []byte(msg.Payload):
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	closeFn := func() error {
		var err error
		once.Do(func() {
			close(done)
			err = sub.Close()
		})
		return err
	}
	return out, closeFn, nil
}
