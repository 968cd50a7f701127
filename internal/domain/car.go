package domain

import "time"

// DefaultCarSeats is used when a car is registered without a seat count.
const DefaultCarSeats = 4

// Car represents a vehicle registered by a driver.
type Car struct {
	ID          string
	DriverID    string
	Make        string
	Model       string
	PlateNumber string
	Color       string
	Seats       int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
