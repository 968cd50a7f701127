package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"ridehail/internal/domain"
	"ridehail/internal/redis"
	"ridehail/internal/repository"
)

const maxAddressLength = 255

// TripService handles the trip lifecycle.
type TripService struct {
	tripRepo            repository.TripRepository
	carRepo             repository.CarRepository
	cache               redis.TripCacheInterface
	notificationService *NotificationService
	logger              *slog.Logger
	now                 func() time.Time

	// cacheBypassUntil holds the unix nano time until which listings skip
	// the cache after a failed invalidation.
	cacheBypassUntil atomic.Int64
}

// NewTripService creates a new TripService. cache and notificationService may be nil.
func NewTripService(
	tripRepo repository.TripRepository,
	carRepo repository.CarRepository,
	cache redis.TripCacheInterface,
	notificationService *NotificationService,
	logger *slog.Logger,
) *TripService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TripService{
		tripRepo:            tripRepo,
		carRepo:             carRepo,
		cache:               cache,
		notificationService: notificationService,
		logger:              logger,
		now:                 time.Now,
	}
}

// CreateTripRequest contains the parameters for requesting a trip.
type CreateTripRequest struct {
	Actor       domain.Actor
	FromAddress string
	ToAddress   string
	Preferences map[string]any
	Price       *float64
}

// Create records a new pending trip for the requesting passenger.
func (s *TripService) Create(ctx context.Context, req CreateTripRequest) (*domain.Trip, error) {
	if !req.Actor.IsPassenger() {
		return nil, fmt.Errorf("%w: only passengers can create trips", ErrForbidden)
	}

	from, err := validateAddress("from_address", req.FromAddress)
	if err != nil {
		return nil, err
	}
	to, err := validateAddress("to_address", req.ToAddress)
	if err != nil {
		return nil, err
	}
	if err := validatePrice(req.Price); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	trip := &domain.Trip{
		ID:          uuid.New().String(),
		PassengerID: req.Actor.ID,
		FromAddress: from,
		ToAddress:   to,
		Preferences: req.Preferences,
		Status:      domain.TripStatusPending,
		Price:       req.Price,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.tripRepo.Create(ctx, trip); err != nil {
		return nil, fmt.Errorf("create trip: %w", err)
	}

	s.afterChange(ctx, trip, "")
	return trip, nil
}

// AcceptTripRequest contains the parameters for accepting a trip.
type AcceptTripRequest struct {
	TripID string
	Actor  domain.Actor
	CarID  string // optional
}

// Accept assigns a pending trip to the requesting driver.
// Of several drivers racing for the same trip exactly one succeeds.
func (s *TripService) Accept(ctx context.Context, req AcceptTripRequest) (*domain.Trip, error) {
	if err := validateTripID(req.TripID); err != nil {
		return nil, err
	}
	if !req.Actor.IsDriver() {
		return nil, fmt.Errorf("%w: only drivers can accept trips", ErrForbidden)
	}

	if req.CarID != "" {
		if err := s.checkCarOwnership(ctx, req.CarID, req.Actor.ID); err != nil {
			return nil, err
		}
	}

	trip, err := s.tripRepo.GetByID(ctx, req.TripID)
	if err != nil {
		return nil, err
	}
	if !trip.IsAvailable() {
		return nil, invalidState(trip, domain.TripStatusAccepted)
	}

	return s.transition(ctx, trip, repository.TripTransition{
		TripID:            trip.ID,
		From:              []domain.TripStatus{domain.TripStatusPending},
		To:                domain.TripStatusAccepted,
		RequireUnassigned: true,
		AssignDriverID:    req.Actor.ID,
		AssignCarID:       req.CarID,
	})
}

// TripActionRequest identifies a trip and the user acting on it.
type TripActionRequest struct {
	TripID string
	Actor  domain.Actor
}

// Reject declines a trip that is pending or held by the requesting driver.
func (s *TripService) Reject(ctx context.Context, req TripActionRequest) (*domain.Trip, error) {
	if err := validateTripID(req.TripID); err != nil {
		return nil, err
	}
	if !req.Actor.IsDriver() {
		return nil, fmt.Errorf("%w: only drivers can reject trips", ErrForbidden)
	}

	trip, err := s.tripRepo.GetByID(ctx, req.TripID)
	if err != nil {
		return nil, err
	}
	if trip.DriverID != "" && trip.DriverID != req.Actor.ID {
		return nil, fmt.Errorf("%w: trip is assigned to another driver", ErrForbidden)
	}
	if !trip.Status.CanTransitionTo(domain.TripStatusRejected) {
		return nil, invalidState(trip, domain.TripStatusRejected)
	}

	return s.transition(ctx, trip, repository.TripTransition{
		TripID:                trip.ID,
		From:                  domain.SourcesOf(domain.TripStatusRejected),
		To:                    domain.TripStatusRejected,
		RequireDriverID:       req.Actor.ID,
		AllowUnassignedDriver: true,
	})
}

// Start marks an accepted trip as in progress.
func (s *TripService) Start(ctx context.Context, req TripActionRequest) (*domain.Trip, error) {
	if err := validateTripID(req.TripID); err != nil {
		return nil, err
	}
	if !req.Actor.IsDriver() {
		return nil, fmt.Errorf("%w: only drivers can start trips", ErrForbidden)
	}

	trip, err := s.tripRepo.GetByID(ctx, req.TripID)
	if err != nil {
		return nil, err
	}
	if trip.DriverID != req.Actor.ID {
		return nil, fmt.Errorf("%w: trip is not assigned to you", ErrForbidden)
	}
	if !trip.Status.CanTransitionTo(domain.TripStatusInProgress) {
		return nil, invalidState(trip, domain.TripStatusInProgress)
	}

	return s.transition(ctx, trip, repository.TripTransition{
		TripID:          trip.ID,
		From:            domain.SourcesOf(domain.TripStatusInProgress),
		To:              domain.TripStatusInProgress,
		RequireDriverID: req.Actor.ID,
	})
}

// Complete finishes an accepted or in-progress trip. The status is checked
// before ownership, so completing a pending trip is always ErrInvalidState.
func (s *TripService) Complete(ctx context.Context, req TripActionRequest) (*domain.Trip, error) {
	if err := validateTripID(req.TripID); err != nil {
		return nil, err
	}

	trip, err := s.tripRepo.GetByID(ctx, req.TripID)
	if err != nil {
		return nil, err
	}
	if !trip.Status.CanTransitionTo(domain.TripStatusCompleted) {
		return nil, invalidState(trip, domain.TripStatusCompleted)
	}
	if !req.Actor.IsDriver() || trip.DriverID != req.Actor.ID {
		return nil, fmt.Errorf("%w: trip is not assigned to you", ErrForbidden)
	}

	return s.transition(ctx, trip, repository.TripTransition{
		TripID:          trip.ID,
		From:            domain.SourcesOf(domain.TripStatusCompleted),
		To:              domain.TripStatusCompleted,
		RequireDriverID: req.Actor.ID,
	})
}

// Cancel withdraws a pending or accepted trip on behalf of its passenger.
func (s *TripService) Cancel(ctx context.Context, req TripActionRequest) (*domain.Trip, error) {
	if err := validateTripID(req.TripID); err != nil {
		return nil, err
	}

	trip, err := s.tripRepo.GetByID(ctx, req.TripID)
	if err != nil {
		return nil, err
	}
	if trip.PassengerID != req.Actor.ID {
		return nil, fmt.Errorf("%w: only the passenger can cancel the trip", ErrForbidden)
	}
	if !trip.Status.CanTransitionTo(domain.TripStatusCancelled) {
		return nil, invalidState(trip, domain.TripStatusCancelled)
	}

	return s.transition(ctx, trip, repository.TripTransition{
		TripID:             trip.ID,
		From:               domain.SourcesOf(domain.TripStatusCancelled),
		To:                 domain.TripStatusCancelled,
		RequirePassengerID: req.Actor.ID,
	})
}

// UpdateTripRequest contains the fields a passenger may change before acceptance.
type UpdateTripRequest struct {
	TripID string
	Actor  domain.Actor
	Fields domain.TripPatch
}

// Update patches the details of a pending trip. Only non-nil fields change.
func (s *TripService) Update(ctx context.Context, req UpdateTripRequest) (*domain.Trip, error) {
	if err := validateTripID(req.TripID); err != nil {
		return nil, err
	}

	trip, err := s.tripRepo.GetByID(ctx, req.TripID)
	if err != nil {
		return nil, err
	}
	if trip.PassengerID != req.Actor.ID {
		return nil, fmt.Errorf("%w: only the passenger can update the trip", ErrForbidden)
	}
	if trip.Status != domain.TripStatusPending {
		return nil, fmt.Errorf("%w: trip is %s", ErrInvalidState, trip.Status)
	}

	patch := req.Fields
	if patch.FromAddress != nil {
		from, err := validateAddress("from_address", *patch.FromAddress)
		if err != nil {
			return nil, err
		}
		patch.FromAddress = &from
	}
	if patch.ToAddress != nil {
		to, err := validateAddress("to_address", *patch.ToAddress)
		if err != nil {
			return nil, err
		}
		patch.ToAddress = &to
	}
	if err := validatePrice(patch.Price); err != nil {
		return nil, err
	}
	if patch.Empty() {
		return trip, nil
	}

	patch.Apply(trip)
	trip.UpdatedAt = s.now().UTC()

	updated, err := s.tripRepo.UpdateDetails(ctx, trip)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, s.lostRace(ctx, trip.ID)
		}
		return nil, fmt.Errorf("update trip: %w", err)
	}

	s.invalidate(ctx, updated)
	return updated, nil
}

// Get returns a trip visible to actor: one they take part in, or an
// available trip when actor is a driver.
func (s *TripService) Get(ctx context.Context, tripID string, actor domain.Actor) (*domain.Trip, error) {
	if err := validateTripID(tripID); err != nil {
		return nil, err
	}

	trip, err := s.tripRepo.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if trip.Involves(actor.ID) || (actor.IsDriver() && trip.IsAvailable()) {
		return trip, nil
	}
	return nil, fmt.Errorf("%w: trip belongs to another user", ErrForbidden)
}

// ListAvailable returns trips still waiting for a driver.
func (s *TripService) ListAvailable(ctx context.Context, filter domain.TripFilter) ([]*domain.Trip, error) {
	var key string
	if s.cacheUsable() {
		k, err := s.cache.AvailableTripsKey(ctx, filter)
		if err != nil {
			s.logger.WarnContext(ctx, "trip cache key", "error", err)
		} else {
			key = k
			cached, err := s.cache.GetTrips(ctx, key)
			if err != nil {
				s.logger.WarnContext(ctx, "trip cache read", "key", key, "error", err)
			} else if cached != nil {
				return cached, nil
			}
		}
	}

	trips, err := s.tripRepo.ListAvailable(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list available trips: %w", err)
	}

	if key != "" && s.cacheUsable() {
		if err := s.cache.SetTrips(ctx, key, trips); err != nil {
			s.logger.WarnContext(ctx, "trip cache write", "key", key, "error", err)
		}
	}
	return trips, nil
}

// ListForUser returns a page of the trips userID takes part in, newest first.
func (s *TripService) ListForUser(ctx context.Context, userID string, filter domain.TripFilter, page domain.PaginationParams) (*domain.TripPage, error) {
	page = domain.NewPaginationParams(page.Page, page.Limit)

	var key string
	if s.cacheUsable() {
		k, err := s.cache.UserTripsKey(ctx, userID, filter, page)
		if err != nil {
			s.logger.WarnContext(ctx, "trip cache key", "error", err)
		} else {
			key = k
			cached, err := s.cache.GetTripPage(ctx, key)
			if err != nil {
				s.logger.WarnContext(ctx, "trip cache read", "key", key, "error", err)
			} else if cached != nil {
				return cached, nil
			}
		}
	}

	result, err := s.tripRepo.ListForUser(ctx, userID, filter, page)
	if err != nil {
		return nil, fmt.Errorf("list user trips: %w", err)
	}

	if key != "" && s.cacheUsable() {
		if err := s.cache.SetTripPage(ctx, key, result); err != nil {
			s.logger.WarnContext(ctx, "trip cache write", "key", key, "error", err)
		}
	}
	return result, nil
}

// transition applies t on top of the previously loaded trip and publishes the change.
func (s *TripService) transition(ctx context.Context, trip *domain.Trip, t repository.TripTransition) (*domain.Trip, error) {
	t.At = s.now().UTC()

	updated, err := s.tripRepo.Transition(ctx, t)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, s.lostRace(ctx, t.TripID)
		}
		return nil, fmt.Errorf("%s trip: %w", t.To, err)
	}

	s.afterChange(ctx, updated, trip.Status)
	return updated, nil
}

// lostRace reports a conditional write that another writer got to first.
func (s *TripService) lostRace(ctx context.Context, tripID string) error {
	current, err := s.tripRepo.GetByID(ctx, tripID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidState, ErrConflict)
	}
	return fmt.Errorf("%w: %w: trip is now %s", ErrInvalidState, ErrConflict, current.Status)
}

func (s *TripService) afterChange(ctx context.Context, trip *domain.Trip, previous domain.TripStatus) {
	s.invalidate(ctx, trip)
	if s.notificationService != nil {
		s.notificationService.NotifyTripStatusChanged(ctx, trip, previous)
	}
}

func (s *TripService) invalidate(ctx context.Context, trip *domain.Trip) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateTrips(ctx, trip.PassengerID, trip.DriverID); err != nil {
		// Entries cached before the change outlive it by at most one TTL.
		until := s.now().Add(s.cache.TTL())
		s.cacheBypassUntil.Store(until.UnixNano())
		s.logger.ErrorContext(ctx, "trip cache invalidation, bypassing cache",
			"trip_id", trip.ID, "until", until, "error", err)
	}
}

func (s *TripService) cacheUsable() bool {
	return s.cache != nil && s.now().UnixNano() >= s.cacheBypassUntil.Load()
}

func (s *TripService) checkCarOwnership(ctx context.Context, carID, driverID string) error {
	if _, err := uuid.Parse(carID); err != nil {
		return invalid("car_id must be a UUID")
	}
	car, err := s.carRepo.GetByID(ctx, carID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return invalid("car %s does not exist", carID)
		}
		return fmt.Errorf("load car: %w", err)
	}
	if car.DriverID != driverID {
		return fmt.Errorf("%w: car belongs to another driver", ErrForbidden)
	}
	return nil
}

func invalidState(trip *domain.Trip, to domain.TripStatus) error {
	return fmt.Errorf("%w: cannot move trip from %s to %s", ErrInvalidState, trip.Status, to)
}

func validateTripID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return invalid("trip id must be a UUID")
	}
	return nil
}

func validateAddress(field, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", invalid("%s is required", field)
	}
	if len([]rune(value)) > maxAddressLength {
		return "", invalid("%s must be at most %d characters", field, maxAddressLength)
	}
	return value, nil
}

func validatePrice(price *float64) error {
	if price != nil && *price < 0 {
		return invalid("price must not be negative")
	}
	return nil
}
