package domain

import "time"

// TripStatus represents the current status of a trip.
type TripStatus string

const (
	TripStatusPending    TripStatus = "pending"
	TripStatusAccepted   TripStatus = "accepted"
	TripStatusRejected   TripStatus = "rejected"
	TripStatusInProgress TripStatus = "in_progress"
	TripStatusCompleted  TripStatus = "completed"
	TripStatusCancelled  TripStatus = "cancelled"
)

// tripTransitions is the directed graph of legal status changes.
// Statuses without outgoing edges are terminal.
var tripTransitions = map[TripStatus][]TripStatus{
	TripStatusPending:    {TripStatusAccepted, TripStatusRejected, TripStatusCancelled},
	TripStatusAccepted:   {TripStatusInProgress, TripStatusCompleted, TripStatusRejected, TripStatusCancelled},
	TripStatusInProgress: {TripStatusCompleted},
}

// Valid reports whether s is a known trip status.
func (s TripStatus) Valid() bool {
	switch s {
	case TripStatusPending, TripStatusAccepted, TripStatusRejected,
		TripStatusInProgress, TripStatusCompleted, TripStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are possible from s.
func (s TripStatus) Terminal() bool {
	return len(tripTransitions[s]) == 0
}

// CanTransitionTo reports whether moving from s to next is a legal transition.
func (s TripStatus) CanTransitionTo(next TripStatus) bool {
	for _, allowed := range tripTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// SourcesOf returns every status from which target can be reached in one step.
func SourcesOf(target TripStatus) []TripStatus {
	var sources []TripStatus
	for _, from := range []TripStatus{TripStatusPending, TripStatusAccepted, TripStatusInProgress} {
		if from.CanTransitionTo(target) {
			sources = append(sources, from)
		}
	}
	return sources
}

// Trip represents a single ride request and its lifecycle.
// Empty ID fields and zero timestamps mean "not set".
type Trip struct {
	ID          string
	PassengerID string
	DriverID    string
	CarID       string
	FromAddress string
	ToAddress   string
	Preferences map[string]any
	Status      TripStatus
	Price       *float64
	StartedAt   time.Time
	FinishedAt  time.Time
	CancelledAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsAvailable reports whether the trip can still be picked up by a driver.
func (t *Trip) IsAvailable() bool {
	return t.Status == TripStatusPending && t.DriverID == ""
}

// Involves reports whether userID is the trip's passenger or driver.
func (t *Trip) Involves(userID string) bool {
	return userID != "" && (t.PassengerID == userID || t.DriverID == userID)
}

// TripPatch carries the passenger-editable fields of a pending trip.
// Nil fields are left unchanged.
type TripPatch struct {
	FromAddress *string
	ToAddress   *string
	Preferences map[string]any
	Price       *float64
}

// Empty reports whether the patch changes nothing.
func (p TripPatch) Empty() bool {
	return p.FromAddress == nil && p.ToAddress == nil && p.Preferences == nil && p.Price == nil
}

// Apply copies the supplied fields onto t.
func (p TripPatch) Apply(t *Trip) {
	if p.FromAddress != nil {
		t.FromAddress = *p.FromAddress
	}
	if p.ToAddress != nil {
		t.ToAddress = *p.ToAddress
	}
	if p.Preferences != nil {
		t.Preferences = p.Preferences
	}
	if p.Price != nil {
		price := *p.Price
		t.Price = &price
	}
}

// TripFilter holds the optional predicates accepted by the trip listings.
type TripFilter struct {
	Status      TripStatus
	Date        time.Time // matches trips created on this UTC day
	PassengerID string
	DriverID    string
}

// Matches reports whether t satisfies every predicate set on f.
func (f TripFilter) Matches(t *Trip) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if !f.Date.IsZero() {
		y1, m1, d1 := f.Date.UTC().Date()
		y2, m2, d2 := t.CreatedAt.UTC().Date()
		if y1 != y2 || m1 != m2 || d1 != d2 {
			return false
		}
	}
	if f.PassengerID != "" && t.PassengerID != f.PassengerID {
		return false
	}
	if f.DriverID != "" && t.DriverID != f.DriverID {
		return false
	}
	return true
}

// TripStatusEvent is published after a trip status change has been committed.
type TripStatusEvent struct {
	TripID         string     `json:"trip_id"`
	Status         TripStatus `json:"status"`
	PreviousStatus TripStatus `json:"previous_status,omitempty"`
	PassengerID    string     `json:"passenger_id"`
	DriverID       string     `json:"driver_id,omitempty"`
	Message        string     `json:"message"`
	OccurredAt     time.Time  `json:"occurred_at"`
}
