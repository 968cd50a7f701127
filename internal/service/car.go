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

const (
	maxCarFieldLength = 100
	maxPlateLength    = 20
	maxCarSeats       = 8
)

// CarService manages the cars drivers register.
type CarService struct {
	carRepo repository.CarRepository
	now     func() time.Time
}

// NewCarService creates a new CarService.
func NewCarService(carRepo repository.CarRepository) *CarService {
	return &CarService{carRepo: carRepo, now: time.Now}
}

// CarInput holds the driver-supplied attributes of a car.
type CarInput struct {
	Make        string
	Model       string
	PlateNumber string
	Color       string
	Seats       int // 0 means DefaultCarSeats
}

func (in CarInput) normalize() (CarInput, error) {
	in.Make = strings.TrimSpace(in.Make)
	in.Model = strings.TrimSpace(in.Model)
	in.PlateNumber = strings.ToUpper(strings.TrimSpace(in.PlateNumber))
	in.Color = strings.TrimSpace(in.Color)

	switch {
	case in.Make == "" || len(in.Make) > maxCarFieldLength:
		return in, invalid("make is required and must be at most %d characters", maxCarFieldLength)
	case in.Model == "" || len(in.Model) > maxCarFieldLength:
		return in, invalid("model is required and must be at most %d characters", maxCarFieldLength)
	case in.PlateNumber == "" || len(in.PlateNumber) > maxPlateLength:
		return in, invalid("plate_number is required and must be at most %d characters", maxPlateLength)
	case len(in.Color) > maxCarFieldLength:
		return in, invalid("color must be at most %d characters", maxCarFieldLength)
	}

	if in.Seats == 0 {
		in.Seats = domain.DefaultCarSeats
	}
	if in.Seats < 1 || in.Seats > maxCarSeats {
		return in, invalid("seats must be between 1 and %d", maxCarSeats)
	}
	return in, nil
}

// Create registers a car for the requesting driver.
func (s *CarService) Create(ctx context.Context, actor domain.Actor, in CarInput) (*domain.Car, error) {
	if !actor.IsDriver() {
		return nil, fmt.Errorf("%w: only drivers can register cars", ErrForbidden)
	}
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	car := &domain.Car{
		ID:          uuid.New().String(),
		DriverID:    actor.ID,
		Make:        in.Make,
		Model:       in.Model,
		PlateNumber: in.PlateNumber,
		Color:       in.Color,
		Seats:       in.Seats,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.carRepo.Create(ctx, car); err != nil {
		return nil, mapCarError(err)
	}
	return car, nil
}

// ListForDriver returns the requesting driver's cars.
func (s *CarService) ListForDriver(ctx context.Context, actor domain.Actor) ([]*domain.Car, error) {
	if !actor.IsDriver() {
		return nil, fmt.Errorf("%w: only drivers have cars", ErrForbidden)
	}
	return s.carRepo.ListByDriver(ctx, actor.ID)
}

// Update replaces the attributes of a car owned by the requesting driver.
func (s *CarService) Update(ctx context.Context, actor domain.Actor, carID string, in CarInput) (*domain.Car, error) {
	car, err := s.owned(ctx, actor, carID)
	if err != nil {
		return nil, err
	}
	in, err = in.normalize()
	if err != nil {
		return nil, err
	}

	car.Make = in.Make
	car.Model = in.Model
	car.PlateNumber = in.PlateNumber
	car.Color = in.Color
	car.Seats = in.Seats
	car.UpdatedAt = s.now().UTC()

	if err := s.carRepo.Update(ctx, car); err != nil {
		return nil, mapCarError(err)
	}
	return car, nil
}

// Delete removes a car owned by the requesting driver.
func (s *CarService) Delete(ctx context.Context, actor domain.Actor, carID string) error {
	if _, err := s.owned(ctx, actor, carID); err != nil {
		return err
	}
	return s.carRepo.Delete(ctx, carID)
}

func (s *CarService) owned(ctx context.Context, actor domain.Actor, carID string) (*domain.Car, error) {
	if _, err := uuid.Parse(carID); err != nil {
		return nil, invalid("car id must be a UUID")
	}
	if !actor.IsDriver() {
		return nil, fmt.Errorf("%w: only drivers have cars", ErrForbidden)
	}
	car, err := s.carRepo.GetByID(ctx, carID)
	if err != nil {
		return nil, err
	}
	if car.DriverID != actor.ID {
		return nil, fmt.Errorf("%w: car belongs to another driver", ErrForbidden)
	}
	return car, nil
}

func mapCarError(err error) error {
	if errors.Is(err, repository.ErrDuplicate) {
		return fmt.Errorf("%w: plate number already registered", ErrDuplicate)
	}
	return fmt.Errorf("save car: %w", err)
}
