package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var allStatuses = []TripStatus{
	TripStatusPending,
	TripStatusAccepted,
	TripStatusRejected,
	TripStatusInProgress,
	TripStatusCompleted,
	TripStatusCancelled,
}

func TestTripStatus_Transitions(t *testing.T) {
	allowed := map[[2]TripStatus]bool{
		{TripStatusPending, TripStatusAccepted}:     true,
		{TripStatusPending, TripStatusRejected}:     true,
		{TripStatusPending, TripStatusCancelled}:    true,
		{TripStatusAccepted, TripStatusInProgress}:  true,
		{TripStatusAccepted, TripStatusCompleted}:   true,
		{TripStatusAccepted, TripStatusRejected}:    true,
		{TripStatusAccepted, TripStatusCancelled}:   true,
		{TripStatusInProgress, TripStatusCompleted}: true,
	}

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			want := allowed[[2]TripStatus{from, to}]
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
		// Nothing ever returns to pending.
		assert.False(t, from.CanTransitionTo(TripStatusPending), "%s -> pending", from)
	}
}

func TestTripStatus_TerminalAndValid(t *testing.T) {
	terminal := map[TripStatus]bool{
		TripStatusRejected:  true,
		TripStatusCompleted: true,
		TripStatusCancelled: true,
	}
	for _, s := range allStatuses {
		assert.True(t, s.Valid())
		assert.Equal(t, terminal[s], s.Terminal(), s)
	}
	assert.False(t, TripStatus("archived").Valid())
}

func TestSourcesOf(t *testing.T) {
	assert.Equal(t, []TripStatus{TripStatusPending}, SourcesOf(TripStatusAccepted))
	assert.Equal(t, []TripStatus{TripStatusAccepted}, SourcesOf(TripStatusInProgress))
	assert.Equal(t, []TripStatus{TripStatusAccepted, TripStatusInProgress}, SourcesOf(TripStatusCompleted))
	assert.Equal(t, []TripStatus{TripStatusPending, TripStatusAccepted}, SourcesOf(TripStatusCancelled))
	assert.Empty(t, SourcesOf(TripStatusPending))
}

func TestTrip_IsAvailableAndInvolves(t *testing.T) {
	trip := &Trip{PassengerID: "p", Status: TripStatusPending}
	assert.True(t, trip.IsAvailable())
	assert.True(t, trip.Involves("p"))
	assert.False(t, trip.Involves(""))

	trip.DriverID = "d"
	assert.False(t, trip.IsAvailable())
	assert.True(t, trip.Involves("d"))
	assert.False(t, trip.Involves("x"))
}

func TestTripPatch(t *testing.T) {
	price := 7.5
	to := "C"
	trip := &Trip{FromAddress: "A", ToAddress: "B", Preferences: map[string]any{"ac": true}}

	assert.True(t, TripPatch{}.Empty())

	patch := TripPatch{ToAddress: &to, Price: &price}
	assert.False(t, patch.Empty())
	patch.Apply(trip)

	assert.Equal(t, "A", trip.FromAddress)
	assert.Equal(t, "C", trip.ToAddress)
	assert.Equal(t, map[string]any{"ac": true}, trip.Preferences)
	price = 99
	assert.Equal(t, 7.5, *trip.Price, "price is copied")
}

func TestTripFilter_Matches(t *testing.T) {
	created := time.Date(2024, 3, 10, 23, 30, 0, 0, time.UTC)
	trip := &Trip{PassengerID: "p", DriverID: "d", Status: TripStatusAccepted, CreatedAt: created}

	testCases := []struct {
		name   string
		filter TripFilter
		want   bool
	}{
		{name: "empty", filter: TripFilter{}, want: true},
		{name: "status", filter: TripFilter{Status: TripStatusAccepted}, want: true},
		{name: "other status", filter: TripFilter{Status: TripStatusPending}, want: false},
		{name: "same utc day", filter: TripFilter{Date: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)}, want: true},
		{name: "next day", filter: TripFilter{Date: time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)}, want: false},
		{name: "passenger", filter: TripFilter{PassengerID: "p"}, want: true},
		{name: "other driver", filter: TripFilter{DriverID: "x"}, want: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.filter.Matches(trip))
		})
	}
}

func TestPagination(t *testing.T) {
	assert.Equal(t, PaginationParams{Page: 1, Limit: DefaultPageSize}, NewPaginationParams(0, 0))
	assert.Equal(t, PaginationParams{Page: 3, Limit: MaxPageSize}, NewPaginationParams(3, 1000))
	assert.Equal(t, 40, NewPaginationParams(3, 20).Offset())
}

func TestParseRoleAndAverageRating(t *testing.T) {
	role, err := ParseRole(" DRIVER ")
	assert.NoError(t, err)
	assert.Equal(t, RoleDriver, role)

	_, err = ParseRole("admin")
	assert.ErrorIs(t, err, ErrUnknownRole)

	assert.Zero(t, AverageRating(nil))
	assert.InDelta(t, 4.0, AverageRating([]*Review{{Rating: 5}, {Rating: 3}}), 0.0001)
}
