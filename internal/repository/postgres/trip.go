package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"ridehail/internal/domain"
	"ridehail/internal/repository"
)

const tripColumns = `id, passenger_id, driver_id, car_id, from_address, to_address, preferences, status,
	price, started_at, finished_at, cancelled_at, created_at, updated_at`

// availableTripsLimit caps the unpaginated available-trips listing.
const availableTripsLimit = 100

// TripRepository is a PostgreSQL implementation of repository.TripRepository.
type TripRepository struct {
	q Querier
}

// NewTripRepository creates a new PostgreSQL trip repository.
func NewTripRepository(db *sql.DB) *TripRepository {
	return &TripRepository{q: db}
}

// NewTripRepositoryWithTx creates a trip repository using a transaction.
func NewTripRepositoryWithTx(tx *sql.Tx) *TripRepository {
	return &TripRepository{q: tx}
}

// Create persists a new trip.
func (r *TripRepository) Create(ctx context.Context, trip *domain.Trip) error {
	preferences, err := marshalPreferences(trip.Preferences)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO trips (id, passenger_id, from_address, to_address, preferences, status, price, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.q.ExecContext(ctx, query,
		trip.ID,
		trip.PassengerID,
		trip.FromAddress,
		trip.ToAddress,
		preferences,
		trip.Status,
		nullPrice(trip.Price),
		trip.CreatedAt,
		trip.UpdatedAt,
	)
	return err
}

// GetByID retrieves a trip by ID.
func (r *TripRepository) GetByID(ctx context.Context, id string) (*domain.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips WHERE id = $1`

	trip, err := scanTrip(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return trip, nil
}

// Transition applies a conditional status change in a single statement, so
// concurrent writers racing on the same trip resolve to one winner.
func (r *TripRepository) Transition(ctx context.Context, t repository.TripTransition) (*domain.Trip, error) {
	var set clause
	set.add("status = ?", t.To)
	set.add("updated_at = ?", t.At)
	if t.AssignDriverID != "" {
		set.add("driver_id = ?", t.AssignDriverID)
	}
	if t.AssignCarID != "" {
		set.add("car_id = ?", t.AssignCarID)
	}
	switch t.To {
	case domain.TripStatusInProgress:
		set.add("started_at = ?", t.At)
	case domain.TripStatusCompleted:
		set.add("finished_at = ?", t.At)
	case domain.TripStatusCancelled:
		set.add("cancelled_at = ?", t.At)
	}

	where := clause{args: set.args}
	where.add("id = ?", t.TripID)
	where.add("status = ANY(?)", pq.Array(statusStrings(t.From)))
	if t.RequireUnassigned {
		where.add("driver_id IS NULL")
	}
	if t.RequireDriverID != "" {
		if t.AllowUnassignedDriver {
			where.add("(driver_id IS NULL OR driver_id = ?)", t.RequireDriverID)
		} else {
			where.add("driver_id = ?", t.RequireDriverID)
		}
	}
	if t.RequirePassengerID != "" {
		where.add("passenger_id = ?", t.RequirePassengerID)
	}

	query := `UPDATE trips SET ` + set.join(", ") + where.where() + ` RETURNING ` + tripColumns

	trip, err := scanTrip(r.q.QueryRowContext(ctx, query, where.args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, r.missOrConflict(ctx, t.TripID)
		}
		return nil, err
	}
	return trip, nil
}

// UpdateDetails writes the passenger-editable fields of a pending trip.
func (r *TripRepository) UpdateDetails(ctx context.Context, trip *domain.Trip) (*domain.Trip, error) {
	preferences, err := marshalPreferences(trip.Preferences)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE trips
		SET from_address = $1, to_address = $2, preferences = $3, price = $4, updated_at = $5
		WHERE id = $6 AND passenger_id = $7 AND status = $8
		RETURNING ` + tripColumns

	updated, err := scanTrip(r.q.QueryRowContext(ctx, query,
		trip.FromAddress,
		trip.ToAddress,
		preferences,
		nullPrice(trip.Price),
		trip.UpdatedAt,
		trip.ID,
		trip.PassengerID,
		domain.TripStatusPending,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, r.missOrConflict(ctx, trip.ID)
		}
		return nil, err
	}
	return updated, nil
}

// ListAvailable returns unassigned trips matching filter, oldest first.
func (r *TripRepository) ListAvailable(ctx context.Context, filter domain.TripFilter) ([]*domain.Trip, error) {
	status := filter.Status
	if status == "" {
		status = domain.TripStatusPending
	}

	var where clause
	where.add("status = ?", status)
	where.add("driver_id IS NULL")
	applyDate(&where, filter.Date)
	if filter.PassengerID != "" {
		where.add("passenger_id = ?", filter.PassengerID)
	}

	query := `SELECT ` + tripColumns + ` FROM trips` + where.where() +
		fmt.Sprintf(` ORDER BY created_at ASC, id ASC LIMIT %d`, availableTripsLimit)

	return r.queryTrips(ctx, query, where.args...)
}

// ListForUser returns a page of trips where userID is passenger or driver, newest first.
func (r *TripRepository) ListForUser(ctx context.Context, userID string, filter domain.TripFilter, page domain.PaginationParams) (*domain.TripPage, error) {
	var where clause
	where.add("(passenger_id = ? OR driver_id = ?)", userID, userID)
	if filter.Status != "" {
		where.add("status = ?", filter.Status)
	}
	applyDate(&where, filter.Date)
	if filter.PassengerID != "" {
		where.add("passenger_id = ?", filter.PassengerID)
	}
	if filter.DriverID != "" {
		where.add("driver_id = ?", filter.DriverID)
	}

	var total int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM trips`+where.where(), where.args...).Scan(&total); err != nil {
		return nil, err
	}

	args := append(where.args, page.Limit, page.Offset())
	query := `SELECT ` + tripColumns + ` FROM trips` + where.where() +
		fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	trips, err := r.queryTrips(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	return &domain.TripPage{
		Trips: trips,
		Total: total,
		Page:  page.Page,
		Limit: page.Limit,
	}, nil
}

// missOrConflict distinguishes a missing trip from one that failed a condition.
func (r *TripRepository) missOrConflict(ctx context.Context, id string) error {
	var exists bool
	if err := r.q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM trips WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrConflict
}

func (r *TripRepository) queryTrips(ctx context.Context, query string, args ...any) ([]*domain.Trip, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trips := make([]*domain.Trip, 0)
	for rows.Next() {
		trip, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		trips = append(trips, trip)
	}

	return trips, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrip(row rowScanner) (*domain.Trip, error) {
	var trip domain.Trip
	var driverID, carID sql.NullString
	var preferences []byte
	var price sql.NullFloat64
	var startedAt, finishedAt, cancelledAt sql.NullTime

	if err := row.Scan(
		&trip.ID,
		&trip.PassengerID,
		&driverID,
		&carID,
		&trip.FromAddress,
		&trip.ToAddress,
		&preferences,
		&trip.Status,
		&price,
		&startedAt,
		&finishedAt,
		&cancelledAt,
		&trip.CreatedAt,
		&trip.UpdatedAt,
	); err != nil {
		return nil, err
	}

	trip.DriverID = driverID.String
	trip.CarID = carID.String
	if price.Valid {
		p := price.Float64
		trip.Price = &p
	}
	if startedAt.Valid {
		trip.StartedAt = startedAt.Time
	}
	if finishedAt.Valid {
		trip.FinishedAt = finishedAt.Time
	}
	if cancelledAt.Valid {
		trip.CancelledAt = cancelledAt.Time
	}
	if len(preferences) > 0 {
		if err := json.Unmarshal(preferences, &trip.Preferences); err != nil {
			return nil, fmt.Errorf("decode preferences of trip %s: %w", trip.ID, err)
		}
	}

	return &trip, nil
}

func applyDate(where *clause, date time.Time) {
	if date.IsZero() {
		return
	}
	y, m, d := date.UTC().Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	where.add("created_at >= ?", day)
	where.add("created_at < ?", day.Add(24*time.Hour))
}

// marshalPreferences encodes preferences for a JSONB column. Nil preferences
// bind as SQL NULL.
func marshalPreferences(preferences map[string]any) (sql.NullString, error) {
	if preferences == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(preferences)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode preferences: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullPrice(price *float64) sql.NullFloat64 {
	if price == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *price, Valid: true}
}

func statusStrings(statuses []domain.TripStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// Ensure TripRepository implements repository.TripRepository.
var _ repository.TripRepository = (*TripRepository)(nil)
