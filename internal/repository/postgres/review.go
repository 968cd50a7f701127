package postgres

import (
	"context"
	"database/sql"

	"ridehail/internal/domain"
	"ridehail/internal/repository"
)

// ReviewRepository implements repository.ReviewRepository using PostgreSQL.
type ReviewRepository struct {
	q Querier
}

// NewReviewRepository creates a new ReviewRepository.
func NewReviewRepository(db *sql.DB) *ReviewRepository {
	return &ReviewRepository{q: db}
}

// NewReviewRepositoryWithTx creates a review repository using a transaction.
func NewReviewRepositoryWithTx(tx *sql.Tx) *ReviewRepository {
	return &ReviewRepository{q: tx}
}

// Create persists a new review.
func (r *ReviewRepository) Create(ctx context.Context, review *domain.Review) error {
	query := `
		INSERT INTO reviews (id, passenger_id, driver_id, trip_id, rating, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.q.ExecContext(ctx, query,
		review.ID,
		review.PassengerID,
		review.DriverID,
		nullString(review.TripID),
		review.Rating,
		nullString(review.Comment),
		review.CreatedAt,
	)
	if isUniqueViolation(err) {
		return repository.ErrDuplicate
	}
	return err
}

// ListByDriver retrieves the reviews of a driver, newest first.
func (r *ReviewRepository) ListByDriver(ctx context.Context, driverID string) ([]*domain.Review, error) {
	query := `
		SELECT id, passenger_id, driver_id, trip_id, rating, comment, created_at
		FROM reviews WHERE driver_id = $1 ORDER BY created_at DESC
	`
	rows, err := r.q.QueryContext(ctx, query, driverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reviews := make([]*domain.Review, 0)
	for rows.Next() {
		var review domain.Review
		var tripID, comment sql.NullString
		if err := rows.Scan(
			&review.ID,
			&review.PassengerID,
			&review.DriverID,
			&tripID,
			&review.Rating,
			&comment,
			&review.CreatedAt,
		); err != nil {
			return nil, err
		}
		review.TripID = tripID.String
		review.Comment = comment.String
		reviews = append(reviews, &review)
	}
	return reviews, rows.Err()
}

var _ repository.ReviewRepository = (*ReviewRepository)(nil)
