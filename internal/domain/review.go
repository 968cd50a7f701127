package domain

import "time"

const (
	MinRating = 1
	MaxRating = 5
)

// Review is a passenger's rating of a driver.
type Review struct {
	ID          string
	PassengerID string
	DriverID    string
	TripID      string
	Rating      int
	Comment     string
	CreatedAt   time.Time
}

// AverageRating returns the mean rating of reviews, or 0 when there are none.
func AverageRating(reviews []*Review) float64 {
	if len(reviews) == 0 {
		return 0
	}
	sum := 0
	for _, r := range reviews {
		sum += r.Rating
	}
	return float64(sum) / float64(len(reviews))
}
