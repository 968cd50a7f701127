package mq

import (
	"context"

	"ridehail/internal/domain"
)

// TripExchange is the topic exchange carrying trip status events.
const TripExchange = "trip_topic"

// TripStatusRoutingKey returns the routing key for events of the given status.
func TripStatusRoutingKey(status domain.TripStatus) string {
	return "trip.status." + string(status)
}

// Broker is the subset of RabbitMQ used by TripEventPublisher.
type Broker interface {
	Publish(ctx context.Context, exchange, routingKey string, body []byte) error
}

// TripEventPublisher publishes trip status events to TripExchange.
type TripEventPublisher struct {
	broker   Broker
	exchange string
}

// NewTripEventPublisher creates a new TripEventPublisher.
func NewTripEventPublisher(broker Broker) *TripEventPublisher {
	return &TripEventPublisher{broker: broker, exchange: TripExchange}
}

// Name identifies the publisher in logs.
func (p *TripEventPublisher) Name() string { return "rabbitmq" }

// Publish sends the encoded event with a routing key derived from its status.
func (p *TripEventPublisher) Publish(ctx context.Context, event domain.TripStatusEvent, payload []byte) error {
	return p.broker.Publish(ctx, p.exchange, TripStatusRoutingKey(event.Status), payload)
}
