package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ridehail/internal/domain"
	"ridehail/internal/service"
)

// ReviewHandler handles HTTP requests for driver reviews.
type ReviewHandler struct {
	reviewService *service.ReviewService
}

// NewReviewHandler creates a new ReviewHandler.
func NewReviewHandler(reviewService *service.ReviewService) *ReviewHandler {
	return &ReviewHandler{reviewService: reviewService}
}

// CreateReviewRequest is the HTTP request body for reviewing a driver.
type CreateReviewRequest struct {
	TripID  string `json:"trip_id"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// ReviewResponse is the HTTP response for a review.
type ReviewResponse struct {
	ID          string    `json:"id"`
	PassengerID string    `json:"passenger_id"`
	DriverID    string    `json:"driver_id"`
	TripID      string    `json:"trip_id,omitempty"`
	Rating      int       `json:"rating"`
	Comment     string    `json:"comment,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// DriverReviewsResponse is the HTTP response for a driver's reviews.
type DriverReviewsResponse struct {
	DriverID      string           `json:"driver_id"`
	AverageRating float64          `json:"average_rating"`
	Count         int              `json:"count"`
	Data          []ReviewResponse `json:"data"`
}

// Create handles POST /v1/reviews/:driverId
func (h *ReviewHandler) Create(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	var req CreateReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	review, err := h.reviewService.Create(c.Request.Context(), a, service.CreateReviewRequest{
		DriverID: c.Param("driverId"),
		TripID:   req.TripID,
		Rating:   req.Rating,
		Comment:  req.Comment,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, toReviewResponse(review))
}

// ListForDriver handles GET /v1/reviews/:driverId
func (h *ReviewHandler) ListForDriver(c *gin.Context) {
	result, err := h.reviewService.ListForDriver(c.Request.Context(), c.Param("driverId"))
	if err != nil {
		respondError(c, err)
		return
	}

	data := make([]ReviewResponse, len(result.Reviews))
	for i, r := range result.Reviews {
		data[i] = toReviewResponse(r)
	}
	respondJSON(c, http.StatusOK, DriverReviewsResponse{
		DriverID:      result.DriverID,
		AverageRating: result.AverageRating,
		Count:         len(data),
		Data:          data,
	})
}

func toReviewResponse(r *domain.Review) ReviewResponse {
	return ReviewResponse{
		ID:          r.ID,
		PassengerID: r.PassengerID,
		DriverID:    r.DriverID,
		TripID:      r.TripID,
		Rating:      r.Rating,
		Comment:     r.Comment,
		CreatedAt:   r.CreatedAt,
	}
}
