package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"ridehail/internal/domain"
	"ridehail/internal/repository"
)

const maxCommentLength = 1000

// ReviewService handles passenger reviews of drivers.
type ReviewService struct {
	reviewRepo repository.ReviewRepository
	userRepo   repository.UserRepository
	tripRepo   repository.TripRepository
	now        func() time.Time
}

// NewReviewService creates a new ReviewService.
func NewReviewService(reviewRepo repository.ReviewRepository, userRepo repository.UserRepository, tripRepo repository.TripRepository) *ReviewService {
	return &ReviewService{
		reviewRepo: reviewRepo,
		userRepo:   userRepo,
		tripRepo:   tripRepo,
		now:        time.Now,
	}
}

// CreateReviewRequest contains the parameters for reviewing a driver.
type CreateReviewRequest struct {
	DriverID string
	TripID   string // optional
	Rating   int
	Comment  string
}

// DriverReviews is a driver's reviews with their average rating.
type DriverReviews struct {
	DriverID      string
	Reviews       []*domain.Review
	AverageRating float64
}

// Create records a passenger's review of a driver.
func (s *ReviewService) Create(ctx context.Context, actor domain.Actor, req CreateReviewRequest) (*domain.Review, error) {
	if !actor.IsPassenger() {
		return nil, fmt.Errorf("%w: only passengers can review drivers", ErrForbidden)
	}
	if req.Rating < domain.MinRating || req.Rating > domain.MaxRating {
		return nil, invalid("rating must be between %d and %d", domain.MinRating, domain.MaxRating)
	}
	comment := strings.TrimSpace(req.Comment)
	if len([]rune(comment)) > maxCommentLength {
		return nil, invalid("comment must be at most %d characters", maxCommentLength)
	}

	if err := s.checkDriver(ctx, req.DriverID); err != nil {
		return nil, err
	}
	if req.TripID != "" {
		if err := s.checkTrip(ctx, actor, req); err != nil {
			return nil, err
		}
	}

	review := &domain.Review{
		ID:          uuid.New().String(),
		PassengerID: actor.ID,
		DriverID:    req.DriverID,
		TripID:      req.TripID,
		Rating:      req.Rating,
		Comment:     comment,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.reviewRepo.Create(ctx, review); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("%w: trip already reviewed", ErrDuplicate)
		}
		return nil, fmt.Errorf("create review: %w", err)
	}
	return review, nil
}

// ListForDriver returns every review of a driver.
func (s *ReviewService) ListForDriver(ctx context.Context, driverID string) (*DriverReviews, error) {
	if err := s.checkDriver(ctx, driverID); err != nil {
		return nil, err
	}
	reviews, err := s.reviewRepo.ListByDriver(ctx, driverID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return &DriverReviews{
		DriverID:      driverID,
		Reviews:       reviews,
		AverageRating: domain.AverageRating(reviews),
	}, nil
}

func (s *ReviewService) checkDriver(ctx context.Context, driverID string) error {
	if _, err := uuid.Parse(driverID); err != nil {
		return invalid("driver id must be a UUID")
	}
	driver, err := s.userRepo.GetByID(ctx, driverID)
	if err != nil {
		return err
	}
	if driver.Role != domain.RoleDriver {
		return fmt.Errorf("%w: user %s is not a driver", repository.ErrNotFound, driverID)
	}
	return nil
}

func (s *ReviewService) checkTrip(ctx context.Context, actor domain.Actor, req CreateReviewRequest) error {
	if _, err := uuid.Parse(req.TripID); err != nil {
		return invalid("trip_id must be a UUID")
	}
	trip, err := s.tripRepo.GetByID(ctx, req.TripID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return invalid("trip %s does not exist", req.TripID)
		}
		return err
	}
	if trip.PassengerID != actor.ID {
		return fmt.Errorf("%w: trip belongs to another passenger", ErrForbidden)
	}
	if trip.DriverID != req.DriverID {
		return invalid("trip was not driven by this driver")
	}
	if trip.Status != domain.TripStatusCompleted {
		return fmt.Errorf("%w: only completed trips can be reviewed", ErrInvalidState)
	}
	return nil
}
