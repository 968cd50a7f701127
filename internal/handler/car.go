package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ridehail/internal/domain"
	"ridehail/internal/service"
)

// CarHandler handles HTTP requests for a driver's cars.
type CarHandler struct {
	carService *service.CarService
}

// NewCarHandler creates a new CarHandler.
func NewCarHandler(carService *service.CarService) *CarHandler {
	return &CarHandler{carService: carService}
}

// CarRequest is the HTTP request body for creating or replacing a car.
type CarRequest struct {
	Make        string `json:"make"`
	Model       string `json:"model"`
	PlateNumber string `json:"plate_number"`
	Color       string `json:"color"`
	Seats       int    `json:"seats"`
}

// CarResponse is the HTTP response for a car.
type CarResponse struct {
	ID          string    `json:"id"`
	DriverID    string    `json:"driver_id"`
	Make        string    `json:"make"`
	Model       string    `json:"model"`
	PlateNumber string    `json:"plate_number"`
	Color       string    `json:"color,omitempty"`
	Seats       int       `json:"seats"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Create handles POST /v1/cars
func (h *CarHandler) Create(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	var req CarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	car, err := h.carService.Create(c.Request.Context(), a, req.input())
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, toCarResponse(car))
}

// List handles GET /v1/cars
func (h *CarHandler) List(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	cars, err := h.carService.ListForDriver(c.Request.Context(), a)
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]CarResponse, len(cars))
	for i, car := range cars {
		response[i] = toCarResponse(car)
	}
	respondJSON(c, http.StatusOK, gin.H{"data": response})
}

// Update handles PUT /v1/cars/:id
func (h *CarHandler) Update(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	var req CarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	car, err := h.carService.Update(c.Request.Context(), a, c.Param("id"), req.input())
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toCarResponse(car))
}

// Delete handles DELETE /v1/cars/:id
func (h *CarHandler) Delete(c *gin.Context) {
	a, ok := actor(c)
	if !ok {
		return
	}

	if err := h.carService.Delete(c.Request.Context(), a, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (r CarRequest) input() service.CarInput {
	return service.CarInput{
		Make:        r.Make,
		Model:       r.Model,
		PlateNumber: r.PlateNumber,
		Color:       r.Color,
		Seats:       r.Seats,
	}
}

func toCarResponse(car *domain.Car) CarResponse {
	return CarResponse{
		ID:          car.ID,
		DriverID:    car.DriverID,
		Make:        car.Make,
		Model:       car.Model,
		PlateNumber: car.PlateNumber,
		Color:       car.Color,
		Seats:       car.Seats,
		CreatedAt:   car.CreatedAt,
		UpdatedAt:   car.UpdatedAt,
	}
}
