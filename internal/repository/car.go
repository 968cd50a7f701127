package repository

import (
	"context"

	"ridehail/internal/domain"
)

// CarRepository defines the persistence operations for cars.
type CarRepository interface {
	// Create persists a new car. Returns ErrDuplicate on plate collision.
	Create(ctx context.Context, car *domain.Car) error

	// GetByID retrieves a car by ID.
	GetByID(ctx context.Context, id string) (*domain.Car, error)

	// ListByDriver retrieves all cars of a driver.
	ListByDriver(ctx context.Context, driverID string) ([]*domain.Car, error)

	// Update updates an existing car.
	Update(ctx context.Context, car *domain.Car) error

	// Delete removes a car.
	Delete(ctx context.Context, id string) error
}
