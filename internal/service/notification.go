package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"ridehail/internal/domain"
)

// Dispatcher defaults.
const (
	DefaultEventBuffer    = 256
	DefaultEventWorkers   = 2
	defaultPublishTimeout = 5 * time.Second
)

// EventPublisher delivers an encoded trip status event to one transport.
type EventPublisher interface {
	Name() string
	Publish(ctx context.Context, event domain.TripStatusEvent, payload []byte) error
}

// EventDispatcher fans trip status events out to publishers from a bounded
// queue drained by a fixed set of workers. Enqueue never blocks the caller.
type EventDispatcher struct {
	events     chan domain.TripStatusEvent
	publishers []EventPublisher
	logger     *slog.Logger
	timeout    time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewEventDispatcher creates a dispatcher and starts its workers.
// Non-positive buffer or workers fall back to the defaults.
func NewEventDispatcher(logger *slog.Logger, buffer, workers int, publishers ...EventPublisher) *EventDispatcher {
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	if workers <= 0 {
		workers = DefaultEventWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &EventDispatcher{
		events:     make(chan domain.TripStatusEvent, buffer),
		publishers: publishers,
		logger:     logger,
		timeout:    defaultPublishTimeout,
	}

	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.work()
	}
	return d
}

// Enqueue queues an event for delivery. It returns false if the event was
// dropped because the queue is full or the dispatcher is closed.
func (d *EventDispatcher) Enqueue(event domain.TripStatusEvent) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Warn("event dropped, dispatcher closed", "trip_id", event.TripID, "status", event.Status)
		return false
	}

	select {
	case d.events <- event:
		return true
	default:
		d.logger.Warn("event dropped, queue full", "trip_id", event.TripID, "status", event.Status)
		return false
	}
}

// Close stops accepting events and waits for queued ones to be delivered or
// for ctx to expire.
func (d *EventDispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.events)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *EventDispatcher) work() {
	defer d.wg.Done()
	for event := range d.events {
		d.deliver(event)
	}
}

func (d *EventDispatcher) deliver(event domain.TripStatusEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		d.logger.Error("encode trip event", "trip_id", event.TripID, "error", err)
		return
	}

	for _, p := range d.publishers {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := p.Publish(ctx, event, payload); err != nil {
			d.logger.Error("publish trip event",
				"publisher", p.Name(),
				"trip_id", event.TripID,
				"status", event.Status,
				"error", err,
			)
		}
		cancel()
	}
}

// NotificationService turns committed trip changes into status events.
type NotificationService struct {
	dispatcher *EventDispatcher
	logger     *slog.Logger
	now        func() time.Time
}

// NewNotificationService creates a new NotificationService.
// A nil dispatcher only logs the events.
func NewNotificationService(dispatcher *EventDispatcher, logger *slog.Logger) *NotificationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
	}
}

// NotifyTripStatusChanged emits a status event for trip. previous is empty for
// a newly created trip. Delivery is asynchronous and failures are only logged.
func (s *NotificationService) NotifyTripStatusChanged(ctx context.Context, trip *domain.Trip, previous domain.TripStatus) {
	event := domain.TripStatusEvent{
		TripID:         trip.ID,
		Status:         trip.Status,
		PreviousStatus: previous,
		PassengerID:    trip.PassengerID,
		DriverID:       trip.DriverID,
		Message:        statusMessage(trip.Status),
		OccurredAt:     s.now().UTC(),
	}

	s.logger.InfoContext(ctx, "trip status changed",
		"trip_id", event.TripID,
		"status", event.Status,
		"previous_status", event.PreviousStatus,
	)

	if s.dispatcher != nil {
		s.dispatcher.Enqueue(event)
	}
}

func statusMessage(status domain.TripStatus) string {
	switch status {
	case domain.TripStatusPending:
		return "Trip requested"
	case domain.TripStatusAccepted:
		return "A driver accepted your trip"
	case domain.TripStatusRejected:
		return "The trip was rejected"
	case domain.TripStatusInProgress:
		return "Your trip has started"
	case domain.TripStatusCompleted:
		return "Your trip is complete"
	case domain.TripStatusCancelled:
		return "The trip was cancelled"
	default:
		return "Trip status changed to " + string(status)
	}
}
