package repository

import (
	"context"
	"time"

	"ridehail/internal/domain"
)

// TripTransition describes a conditional status change.
// The write only applies when the stored trip is in one of From and,
// when set, the ownership conditions hold.
type TripTransition struct {
	TripID string
	From   []domain.TripStatus
	To     domain.TripStatus

	// RequireUnassigned restricts the write to trips without a driver.
	RequireUnassigned bool
	// RequireDriverID restricts the write to trips held by this driver.
	RequireDriverID string
	// AllowUnassignedDriver lets RequireDriverID also match trips without a driver.
	AllowUnassignedDriver bool
	// RequirePassengerID restricts the write to trips owned by this passenger.
	RequirePassengerID string

	// AssignDriverID and AssignCarID are written when non-empty.
	AssignDriverID string
	AssignCarID    string

	// At is stored in the timestamp column matching To, if any.
	At time.Time
}

// TripRepository defines the persistence operations for trips.
type TripRepository interface {
	// Create persists a new trip.
	Create(ctx context.Context, trip *domain.Trip) error

	// GetByID retrieves a trip by ID.
	GetByID(ctx context.Context, id string) (*domain.Trip, error)

	// Transition applies a conditional status change and returns the updated trip.
	// Returns ErrNotFound if the trip does not exist and ErrConflict if it exists
	// but no longer matches the transition's conditions.
	Transition(ctx context.Context, t TripTransition) (*domain.Trip, error)

	// UpdateDetails writes the passenger-editable fields of a trip that is still
	// pending and owned by trip.PassengerID. Same error contract as Transition.
	UpdateDetails(ctx context.Context, trip *domain.Trip) (*domain.Trip, error)

	// ListAvailable returns unassigned trips matching filter, oldest first.
	ListAvailable(ctx context.Context, filter domain.TripFilter) ([]*domain.Trip, error)

	// ListForUser returns a page of trips where userID is passenger or driver,
	// newest first.
	ListForUser(ctx context.Context, userID string, filter domain.TripFilter, page domain.PaginationParams) (*domain.TripPage, error)
}
