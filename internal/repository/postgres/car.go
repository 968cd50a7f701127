package postgres

import (
	"context"
	"database/sql"
	"errors"

	"ridehail/internal/domain"
	"ridehail/internal/repository"
)

// CarRepository implements repository.CarRepository using PostgreSQL.
type CarRepository struct {
	q Querier
}

// NewCarRepository creates a new CarRepository.
func NewCarRepository(db *sql.DB) *CarRepository {
	return &CarRepository{q: db}
}

// NewCarRepositoryWithTx creates a car repository using a transaction.
func NewCarRepositoryWithTx(tx *sql.Tx) *CarRepository {
	return &CarRepository{q: tx}
}

// Create persists a new car.
func (r *CarRepository) Create(ctx context.Context, car *domain.Car) error {
	query := `
		INSERT INTO cars (id, driver_id, make, model, plate_number, color, seats, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.q.ExecContext(ctx, query,
		car.ID,
		car.DriverID,
		car.Make,
		car.Model,
		car.PlateNumber,
		nullString(car.Color),
		car.Seats,
		car.CreatedAt,
		car.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return repository.ErrDuplicate
	}
	return err
}

// GetByID retrieves a car by ID.
func (r *CarRepository) GetByID(ctx context.Context, id string) (*domain.Car, error) {
	query := `SELECT id, driver_id, make, model, plate_number, color, seats, created_at, updated_at FROM cars WHERE id = $1`

	car, err := scanCar(r.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return car, err
}

// ListByDriver retrieves all cars of a driver.
func (r *CarRepository) ListByDriver(ctx context.Context, driverID string) ([]*domain.Car, error) {
	query := `
		SELECT id, driver_id, make, model, plate_number, color, seats, created_at, updated_at
		FROM cars WHERE driver_id = $1 ORDER BY created_at DESC
	`
	rows, err := r.q.QueryContext(ctx, query, driverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cars := make([]*domain.Car, 0)
	for rows.Next() {
		car, err := scanCar(rows)
		if err != nil {
			return nil, err
		}
		cars = append(cars, car)
	}
	return cars, rows.Err()
}

// Update updates an existing car.
func (r *CarRepository) Update(ctx context.Context, car *domain.Car) error {
	query := `
		UPDATE cars
		SET make = $1, model = $2, plate_number = $3, color = $4, seats = $5, updated_at = $6
		WHERE id = $7
	`
	result, err := r.q.ExecContext(ctx, query,
		car.Make,
		car.Model,
		car.PlateNumber,
		nullString(car.Color),
		car.Seats,
		car.UpdatedAt,
		car.ID,
	)
	if isUniqueViolation(err) {
		return repository.ErrDuplicate
	}
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// Delete removes a car.
func (r *CarRepository) Delete(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM cars WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

func scanCar(row rowScanner) (*domain.Car, error) {
	var car domain.Car
	var color sql.NullString
	if err := row.Scan(
		&car.ID,
		&car.DriverID,
		&car.Make,
		&car.Model,
		&car.PlateNumber,
		&color,
		&car.Seats,
		&car.CreatedAt,
		&car.UpdatedAt,
	); err != nil {
		return nil, err
	}
	car.Color = color.String
	return &car, nil
}

func requireAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

var _ repository.CarRepository = (*CarRepository)(nil)
