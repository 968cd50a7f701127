package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"ridehail/internal/domain"
	"ridehail/internal/service"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
)

// TripEventSubscriber streams encoded status events of a single trip.
type TripEventSubscriber interface {
	Subscribe(ctx context.Context, tripID string) (<-chan []byte, func() error, error)
}

// TripEventsHandler pushes trip status changes to websocket clients.
type TripEventsHandler struct {
	tripService *service.TripService
	subscriber  TripEventSubscriber
	upgrader    websocket.Upgrader
	logger      *slog.Logger
}

// NewTripEventsHandler creates a new TripEventsHandler.
func NewTripEventsHandler(tripService *service.TripService, subscriber TripEventSubscriber, logger *slog.Logger) *TripEventsHandler {
	return &TripEventsHandler{
		tripService: tripService,
		subscriber:  subscriber,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Stream handles GET /v1/trips/:id/events
//
// The first message is the trip's current status. Every later message is a
// status event as published after a committed change. The server closes the
// connection once the trip reaches a terminal status.
func (h *TripEventsHandler) Stream(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	trip, err := h.tripService.Get(c.Request.Context(), c.Param("id"), a)
	if err != nil {
		respondError(c, err)
		return
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	defer cancel()

	events, unsubscribe, err := h.subscriber.Subscribe(ctx, trip.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	defer func() { _ = unsubscribe() }()

	// Reload after subscribing so a change made in between is not lost.
	if trip, err = h.tripService.Get(ctx, trip.ID, a); err != nil {
		respondError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WarnContext(ctx, "websocket upgrade failed", "trip_id", trip.ID, "error", err)
		return
	}
	defer conn.Close()

	snapshot := domain.TripStatusEvent{
		TripID:      trip.ID,
		Status:      trip.Status,
		PassengerID: trip.PassengerID,
		DriverID:    trip.DriverID,
		Message:     "current status",
		OccurredAt:  trip.UpdatedAt,
	}
	if err := writeJSON(conn, snapshot); err != nil || trip.Status.Terminal() {
		closeNormally(conn)
		return
	}

	// Reader: keeps pongs flowing and notices when the client goes away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-gone:
			return

		case payload, ok := <-events:
			if !ok {
				closeNormally(conn)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
			var event domain.TripStatusEvent
			if json.Unmarshal(payload, &event) == nil && event.Status.Terminal() {
				closeNormally(conn)
				return
			}

		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(v)
}

func closeNormally(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
}
