package repository

import (
	"context"

	"ridehail/internal/domain"
)

// ReviewRepository defines the persistence operations for reviews.
type ReviewRepository interface {
	// Create persists a new review. Returns ErrDuplicate when the trip was already reviewed.
	Create(ctx context.Context, review *domain.Review) error

	// ListByDriver retrieves the reviews of a driver, newest first.
	ListByDriver(ctx context.Context, driverID string) ([]*domain.Review, error)
}
