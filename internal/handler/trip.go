package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ridehail/internal/domain"
	"ridehail/internal/service"
)

// TripHandler handles HTTP requests for trips.
type TripHandler struct {
	tripService *service.TripService
}

// NewTripHandler creates a new TripHandler.
func NewTripHandler(tripService *service.TripService) *TripHandler {
	return &TripHandler{tripService: tripService}
}

// CreateTripRequest is the HTTP request body for requesting a trip.
type CreateTripRequest struct {
	FromAddress string         `json:"from_address"`
	ToAddress   string         `json:"to_address"`
	Preferences map[string]any `json:"preferences"`
	Price       *float64       `json:"price"`
}

// UpdateTripRequest is the HTTP request body for editing a pending trip.
// Omitted fields are left unchanged.
type UpdateTripRequest struct {
	FromAddress *string        `json:"from_address"`
	ToAddress   *string        `json:"to_address"`
	Preferences map[string]any `json:"preferences"`
	Price       *float64       `json:"price"`
}

// AcceptTripRequest is the optional HTTP request body for accepting a trip.
type AcceptTripRequest struct {
	CarID string `json:"car_id"`
}

// TripQuery holds the listing filters accepted in the query string.
type TripQuery struct {
	Status      string `form:"status"`
	Date        string `form:"date"`
	PassengerID string `form:"passenger_id"`
	DriverID    string `form:"driver_id"`
	Page        int    `form:"page"`
	Limit       int    `form:"limit"`
}

// TripResponse is the HTTP response for a trip.
type TripResponse struct {
	ID          string         `json:"id"`
	PassengerID string         `json:"passenger_id"`
	DriverID    string         `json:"driver_id,omitempty"`
	CarID       string         `json:"car_id,omitempty"`
	FromAddress string         `json:"from_address"`
	ToAddress   string         `json:"to_address"`
	Preferences map[string]any `json:"preferences,omitempty"`
	Status      string         `json:"status"`
	Price       *float64       `json:"price,omitempty"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	FinishedAt  *time.Time     `json:"finished_at,omitempty"`
	CancelledAt *time.Time     `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// TripPageResponse is the HTTP response for a paginated trip listing.
type TripPageResponse struct {
	Data []TripResponse `json:"data"`
	Meta PageMeta       `json:"meta"`
}

// PageMeta describes the returned page.
type PageMeta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// Create handles POST /v1/trips
func (h *TripHandler) Create(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	var req CreateTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	trip, err := h.tripService.Create(c.Request.Context(), service.CreateTripRequest{
		Actor:       a,
		FromAddress: req.FromAddress,
		ToAddress:   req.ToAddress,
		Preferences: req.Preferences,
		Price:       req.Price,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, toTripResponse(trip))
}

// Get handles GET /v1/trips/:id
func (h *TripHandler) Get(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	trip, err := h.tripService.Get(c.Request.Context(), c.Param("id"), a)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toTripResponse(trip))
}

// List handles GET /v1/trips
func (h *TripHandler) List(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	var q TripQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "invalid query parameters")
		return
	}
	filter, err := q.filter()
	if err != nil {
		respondError(c, err)
		return
	}

	page, err := h.tripService.ListForUser(c.Request.Context(), a.ID, filter, domain.NewPaginationParams(q.Page, q.Limit))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toTripPageResponse(page))
}

// ListAvailable handles GET /v1/trips/available
func (h *TripHandler) ListAvailable(c *gin.Context) {
	var q TripQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "invalid query parameters")
		return
	}
	filter, err := q.filter()
	if err != nil {
		respondError(c, err)
		return
	}

	trips, err := h.tripService.ListAvailable(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"data": toTripResponses(trips)})
}

// Update handles PUT /v1/trips/:id
func (h *TripHandler) Update(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	var req UpdateTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	trip, err := h.tripService.Update(c.Request.Context(), service.UpdateTripRequest{
		TripID: c.Param("id"),
		Actor:  a,
		Fields: domain.TripPatch{
			FromAddress: req.FromAddress,
			ToAddress:   req.ToAddress,
			Preferences: req.Preferences,
			Price:       req.Price,
		},
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toTripResponse(trip))
}

// Accept handles POST /v1/trips/:id/accept
func (h *TripHandler) Accept(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	var req AcceptTripRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "invalid request body")
		return
	}

	trip, err := h.tripService.Accept(c.Request.Context(), service.AcceptTripRequest{
		TripID: c.Param("id"),
		Actor:  a,
		CarID:  req.CarID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toTripResponse(trip))
}

// Reject handles POST /v1/trips/:id/reject
func (h *TripHandler) Reject(c *gin.Context) {
	h.action(c, h.tripService.Reject)
}

// Start handles POST /v1/trips/:id/start
func (h *TripHandler) Start(c *gin.Context) {
	h.action(c, h.tripService.Start)
}

// Complete handles POST /v1/trips/:id/complete
func (h *TripHandler) Complete(c *gin.Context) {
	h.action(c, h.tripService.Complete)
}

// Cancel handles POST /v1/trips/:id/cancel and DELETE /v1/trips/:id
func (h *TripHandler) Cancel(c *gin.Context) {
	h.action(c, h.tripService.Cancel)
}

type tripAction func(ctx context.Context, req service.TripActionRequest) (*domain.Trip, error)

func (h *TripHandler) action(c *gin.Context, do tripAction) {
	a, ok := actor(c)
	if !ok {
		return
	}

	trip, err := do(c.Request.Context(), service.TripActionRequest{
		TripID: c.Param("id"),
		Actor:  a,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toTripResponse(trip))
}

func (q TripQuery) filter() (domain.TripFilter, error) {
	filter := domain.TripFilter{
		PassengerID: q.PassengerID,
		DriverID:    q.DriverID,
	}
	if q.Status != "" {
		status := domain.TripStatus(q.Status)
		if !status.Valid() {
			return filter, fmt.Errorf("%w: unknown status %q", service.ErrValidation, q.Status)
		}
		filter.Status = status
	}
	if q.Date != "" {
		date, err := time.Parse(time.DateOnly, q.Date)
		if err != nil {
			return filter, fmt.Errorf("%w: date must be YYYY-MM-DD", service.ErrValidation)
		}
		filter.Date = date
	}
	return filter, nil
}

func toTripResponse(t *domain.Trip) TripResponse {
	return TripResponse{
		ID:          t.ID,
		PassengerID: t.PassengerID,
		DriverID:    t.DriverID,
		CarID:       t.CarID,
		FromAddress: t.FromAddress,
		ToAddress:   t.ToAddress,
		Preferences: t.Preferences,
		Status:      string(t.Status),
		Price:       t.Price,
		StartedAt:   optionalTime(t.StartedAt),
		FinishedAt:  optionalTime(t.FinishedAt),
		CancelledAt: optionalTime(t.CancelledAt),
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func toTripResponses(trips []*domain.Trip) []TripResponse {
	out := make([]TripResponse, len(trips))
	for i, t := range trips {
		out[i] = toTripResponse(t)
	}
	return out
}

func toTripPageResponse(p *domain.TripPage) TripPageResponse {
	totalPages := 0
	if p.Limit > 0 {
		totalPages = (p.Total + p.Limit - 1) / p.Limit
	}
	return TripPageResponse{
		Data: toTripResponses(p.Trips),
		Meta: PageMeta{
			Page:       p.Page,
			Limit:      p.Limit,
			Total:      p.Total,
			TotalPages: totalPages,
		},
	}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
