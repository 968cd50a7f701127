package tests

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridehail/internal/domain"
	"ridehail/internal/repository"
	"ridehail/internal/service"
)

type tripFixture struct {
	trips     *MockTripRepository
	cars      *MockCarRepository
	cache     *MockTripCache
	publisher *RecordingPublisher
	events    *service.EventDispatcher
	svc       *service.TripService
}

func newTripFixture(t *testing.T) *tripFixture {
	t.Helper()

	f := &tripFixture{
		trips:     NewMockTripRepository(),
		cars:      NewMockCarRepository(),
		cache:     NewMockTripCache(),
		publisher: NewRecordingPublisher(),
	}
	f.events = service.NewEventDispatcher(nil, 64, 1, f.publisher)
	t.Cleanup(func() { _ = f.events.Close(context.Background()) })

	notifications := service.NewNotificationService(f.events, nil)
	f.svc = service.NewTripService(f.trips, f.cars, f.cache, notifications, nil)
	return f
}

// drain waits for every queued event to be delivered.
func (f *tripFixture) drain(t *testing.T) []domain.TripStatusEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.events.Close(ctx))
	return f.publisher.Events()
}

func passenger() domain.Actor {
	return domain.Actor{ID: uuid.NewString(), Role: domain.RolePassenger}
}

func driver() domain.Actor {
	return domain.Actor{ID: uuid.NewString(), Role: domain.RoleDriver}
}

func createTrip(t *testing.T, f *tripFixture, p domain.Actor) *domain.Trip {
	t.Helper()
	trip, err := f.svc.Create(context.Background(), service.CreateTripRequest{
		Actor:       p,
		FromAddress: "A",
		ToAddress:   "B",
	})
	require.NoError(t, err)
	return trip
}

func ptr[T any](v T) *T { return &v }

// ──────────────────────────────────────────────
// 1. CREATION
// ──────────────────────────────────────────────

func TestCreateTrip_StartsPendingWithoutDriver(t *testing.T) {
	t.Parallel()
	f := newTripFixture(t)
	p := passenger()

	trip, err := f.svc.Create(context.Background(), service.CreateTripRequest{
		Actor:       p,
		FromAddress: "  Main St 1 ",
		ToAddress:   "Airport",
		Preferences: map[string]any{"music": "jazz"},
		Price:       ptr(12.5),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.TripStatusPending, trip.Status)
	assert.Empty(t, trip.DriverID)
	assert.Equal(t, p.ID, trip.PassengerID)
	assert.Equal(t, "Main St 1", trip.FromAddress)
	assert.NotNil(t, f.trips.GetTrip(trip.ID))

	events := f.drain(t)
	require.Len(t, events, 1)
	assert.Equal(t, domain.TripStatusPending, events[0].Status)
	assert.Empty(t, events[0].PreviousStatus)
}

func TestCreateTrip_Validation(t *testing.T) {
	t.Parallel()

	long := make([]rune, 256)
	for i := range long {
		long[i] = 'x'
	}

	testCases := []struct {
		name    string
		actor   domain.Actor
		from    string
		to      string
		price   *float64
		wantErr error
	}{
		{name: "driver cannot create", actor: driver(), from: "A", to: "B", wantErr: service.ErrForbidden},
		{name: "missing from", actor: passenger(), from: "  ", to: "B", wantErr: service.ErrValidation},
		{name: "missing to", actor: passenger(), from: "A", to: "", wantErr: service.ErrValidation},
		{name: "address too long", actor: passenger(), from: string(long), to: "B", wantErr: service.ErrValidation},
		{name: "negative price", actor: passenger(), from: "A", to: "B", price: ptr(-1.0), wantErr: service.ErrValidation},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newTripFixture(t)
			_, err := f.svc.Create(context.Background(), service.CreateTripRequest{
				Actor:       tc.actor,
				FromAddress: tc.from,
				ToAddress:   tc.to,
				Price:       tc.price,
			})
			require.ErrorIs(t, err, tc.wantErr)
			assert.Zero(t, f.trips.CountTrips())
		})
	}
}

// ──────────────────────────────────────────────
// 2. STATE MACHINE
// ──────────────────────────────────────────────

func TestCompletePendingTrip_AlwaysInvalidState(t *testing.T) {
	t.Parallel()
	f := newTripFixture(t)
	p := passenger()
	trip := createTrip(t, f, p)

	for _, actor := range []domain.Actor{p, driver()} {
		_, err := f.svc.Complete(context.Background(), service.TripActionRequest{TripID: trip.ID, Actor: actor})
		require.ErrorIs(t, err, service.ErrInvalidState)
	}
	assert.Equal(t, domain.TripStatusPending, f.trips.GetTrip(trip.ID).Status)
}

func TestCancelByNonPassenger_Forbidden(t *testing.T) {
	t.Parallel()
	f := newTripFixture(t)
	ctx := context.Background()
	p, d := passenger(), driver()
	trip := createTrip(t, f, p)

	_, err := f.svc.Accept(ctx, service.AcceptTripRequest{TripID: trip.ID, Actor: d})
	require.NoError(t, err)

	// The assigned driver is still not allowed to cancel.
	_, err = f.svc.Cancel(ctx, service.TripActionRequest{TripID: trip.ID, Actor: d})
	require.ErrorIs(t, err, service.ErrForbidden)

	_, err = f.svc.Cancel(ctx, service.TripActionRequest{TripID: trip.ID, Actor: passenger()})
	require.ErrorIs(t, err, service.ErrForbidden)

	assert.Equal(t, domain.TripStatusAccepted, f.trips.GetTrip(trip.ID).Status)
}

func TestCancelTwice_SecondIsInvalidState(t *testing.T) {
	t.Parallel()
	f := newTripFixture(t)
	ctx := context.Background()
	p := passenger()
	trip := createTrip(t, f, p)

	cancelled, err := f.svc.Cancel(ctx, service.TripActionRequest{TripID: trip.ID, Actor: p})
	require.NoError(t, err)
	assert.Equal(t, domain.TripStatusCancelled, cancelled.Status)
	assert.False(t, cancelled.CancelledAt.IsZero())

	_, err = f.svc.Cancel(ctx, service.TripActionRequest{TripID: trip.ID, Actor: p})
	require.ErrorIs(t, err, service.ErrInvalidState)
}

func TestTerminalStatuses_RejectEveryAction(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for _, status := range []domain.TripStatus{domain.TripStatusRejected, domain.TripStatusCompleted, domain.TripStatusCancelled} {
		t.Run(string(status), func(t *testing.T) {
			f := newTripFixture(t)
			p, d := passenger(), driver()
			trip := &domain.Trip{
				ID:          uuid.NewString(),
				PassengerID: p.ID,
				DriverID:    d.ID,
				FromAddress: "A",
				ToAddress:   "B",
				Status:      status,
			}
			f.trips.AddTrip(trip)
			req := service.TripActionRequest{TripID: trip.ID, Actor: d}

			_, err := f.svc.Accept(ctx, service.AcceptTripRequest{TripID: trip.ID, Actor: d})
			assert.ErrorIs(t, err, service.ErrInvalidState)
			_, err = f.svc.Reject(ctx, req)
			assert.ErrorIs(t, err, service.ErrInvalidState)
			_, err = f.svc.Start(ctx, req)
			assert.ErrorIs(t, err, service.ErrInvalidState)
			_, err = f.svc.Complete(ctx, req)
			assert.ErrorIs(t, err, service.ErrInvalidState)
			_, err = f.svc.Cancel(ctx, service.TripActionRequest{TripID: trip.ID, Actor: p})
			assert.ErrorIs(t, err, service.ErrInvalidState)

			assert.Equal(t, status, f.trips.GetTrip(trip.ID).Status)
			assert.Zero(t, atomic.LoadInt32(&f.trips.TransitionCallCount))
		})
	}
}

func TestStartThenComplete_SetsTimestamps(t *testing.T) {
	t.Parallel()
	f := newTripFixture(t)
	ctx := context.Background()
	p, d := passenger(), driver()
	trip := createTrip(t, f, p)

	_, err := f.svc.Accept(ctx, service.AcceptTripRequest{TripID: trip.ID, Actor: d})
	require.NoError(t, err)

	// Only the assigned driver can start.
	_, err = f.svc.Start(ctx, service.TripActionRequest{TripID: trip.ID, Actor: driver()})
	require.ErrorIs(t, err, service.ErrForbidden)

	started, err := f.svc.Start(ctx, service.TripActionRequest{TripID: trip.ID, Actor: d})
	require.NoError(t, err)
	assert.Equal(t, domain.TripStatusInProgress, started.Status)
	assert.False(t, started.StartedAt.IsZero())

	// In progress can no longer be cancelled.
	_, err = f.svc.Cancel(ctx, service.TripActionRequest{TripID: trip.ID, Actor: p})
	require.ErrorIs(t, err, service.ErrInvalidState)

	completed, err := f.svc.Complete(ctx, service.TripActionRequest{TripID: trip.ID, Actor: d})
	require.NoError(t, err)
	assert.Equal(t, domain.TripStatusCompleted, completed.Status)
	assert.False(t, completed.FinishedAt.IsZero())

	events := f.drain(t)
	statuses := make([]domain.TripStatus, 0, len(events))
	for _, e := range events {
		statuses = append(statuses, e.Status)
	}
	assert.Equal(t, []domain.TripStatus{
		domain.TripStatusPending,
		domain.TripStatusAccepted,
		domain.TripStatusInProgress,
		domain.TripStatusCompleted,
	}, statuses)
	assert.Equal(t, domain.TripStatusInProgress, events[3].PreviousStatus)
}

func TestReject(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("pending trip by any driver", func(t *testing.T) {
		f := newTripFixture(t)
		trip := createTrip(t, f, passenger())

		rejected, err := f.svc.Reject(ctx, service.TripActionRequest{TripID: trip.ID, Actor: driver()})
		require.NoError(t, err)
		assert.Equal(t, domain.TripStatusRejected, rejected.Status)
	})

	t.Run("accepted trip by another driver", func(t *testing.T) {
		f := newTripFixture(t)
		trip := createTrip(t, f, passenger())
		_, err := f.svc.Accept(ctx, service.AcceptTripRequest{TripID: trip.ID, Actor: driver()})
		require.NoError(t, err)

		_, err = f.svc.Reject(ctx, service.TripActionRequest{TripID: trip.ID, Actor: driver()})
		require.ErrorIs(t, err, service.ErrForbidden)
	})

	t.Run("accepted trip by its driver", func(t *testing.T) {
		f := newTripFixture(t)
		d := driver()
		trip := createTrip(t, f, passenger())
		_, err := f.svc.Accept(ctx, service.AcceptTripRequest{TripID: trip.ID, Actor: d})
		require.NoError(t, err)

		rejected, err := f.svc.Reject(ctx, service.TripActionRequest{TripID: trip.ID, Actor: d})
		require.NoError(t, err)
		assert.Equal(t, domain.TripStatusRejected, rejected.Status)
	})

	t.Run("passenger cannot reject", func(t *testing.T) {
		f := newTripFixture(t)
		p := passenger()
		trip := createTrip(t, f, p)

		_, err := f.svc.Reject(ctx, service.TripActionRequest{TripID: trip.ID, Actor: p})
		require.ErrorIs(t, err, service.ErrForbidden)
	})
}

func TestActions_UnknownAndMalformedTripIDs(t *testing.T) {
	t.Parallel()
	f := newTripFixture(t)
	ctx := context.Background()

	_, err := f.svc.Accept(ctx, service.AcceptTripRequest{TripID: uuid.NewString(), Actor: driver()})
	require.ErrorIs(t, err, repository.ErrNotFound)

	_, err = f.svc.Cancel(ctx, service.TripActionRequest{TripID: "not-a-uuid", Actor: passenger()})
	require.ErrorIs(t, err, service.ErrValidation)
}

// ──────────────────────────────────────────────
// 3. ACCEPT AND CARS
// ──────────────────────────────────────────────

func TestAccept_CarOwnership(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := driver()

	own := &domain.Car{ID: uuid.NewString(), DriverID: d.ID, PlateNumber: "OWN-1"}
	foreign := &domain.Car{ID: uuid.NewString(), DriverID: uuid.NewString(), PlateNumber: "FOREIGN-1"}

	testCases := []struct {
		name    string
		carID   string
		wantErr error
	}{
		{name: "own car", carID: own.ID},
		{name: "another driver's car", carID: foreign.ID, wantErr: service.ErrForbidden},
		{name: "unknown car", carID: uuid.NewString(), wantErr: service.ErrValidation},
		{name: "malformed car id", carID: "abc", wantErr: service.ErrValidation},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newTripFixture(t)
			f.cars.AddCar(own)
			f.cars.AddCar(foreign)
			trip := createTrip(t, f, passenger())

			accepted, err := f.svc.Accept(ctx, service.AcceptTripRequest{TripID: trip.ID, Actor: d, CarID: tc.carID})
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				assert.Equal(t, domain.TripStatusPending, f.trips.GetTrip(trip.ID).Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.carID, accepted.CarID)
			assert.Equal(t, d.ID, accepted.DriverID)
		})
	}
}

// ──────────────────────────────────────────────
// 4. CONCURRENCY
// ──────────────────────────────────────────────

func TestConcurrentAccept_ExactlyOneWinner(t *testing.T) {
	t.Parallel()
	f := newTripFixture(t)
	trip := createTrip(t, f, passenger())

	const drivers = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
		losers  []error
		start   = make(chan struct{})
	)

	for i := 0; i < drivers; i++ {
		d := driver()
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			accepted, err := f.svc.Accept(context.Background(), service.AcceptTripRequest{TripID: trip.ID, Actor: d})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				losers = append(losers, err)
				return
			}
			winners = append(winners, accepted.DriverID)
		}()
	}
	close(start)
	wg.Wait()

	require.Len(t, winners, 1)
	require.Len(t, losers, drivers-1)
	for _, err := range losers {
		assert.ErrorIs(t, err, service.ErrInvalidState)
	}

	stored := f.trips.GetTrip(trip.ID)
	assert.Equal(t, domain.TripStatusAccepted, stored.Status)
	assert.Equal(t, winners[0], stored.DriverID)
}

// staleTripRepository serves one outdated snapshot so the service believes
// the trip is still pending when another writer has already moved it.
type staleTripRepository struct {
	*MockTripRepository
	stale *domain.Trip
	once  sync.Once
}

func (r *staleTripRepository) GetByID(ctx context.Context, id string) (*domain.Trip, error) {
	var snapshot *domain.Trip
	r.once.Do(func() { snapshot = r.stale })
	if snapshot != nil {
		return cloneTrip(snapshot), nil
	}
	return r.MockTripRepository.GetByID(ctx, id)
}

func TestAccept_LostRaceReportsConflict(t *testing.T) {
	t.Parallel()
	p := passenger()
	pending := &domain.Trip{
		ID:          uuid.NewString(),
		PassengerID: p.ID,
		FromAddress: "A",
		ToAddress:   "B",
		Status:      domain.TripStatusPending,
	}

	inner := NewMockTripRepository()
	taken := cloneTrip(pending)
	taken.Status = domain.TripStatusAccepted
	taken.DriverID = uuid.NewString()
	inner.AddTrip(taken)

	repo := &staleTripRepository{MockTripRepository: inner, stale: pending}
	cache := NewMockTripCache()
	svc := service.NewTripService(repo, NewMockCarRepository(), cache, nil, nil)

	_, err := svc.Accept(context.Background(), service.AcceptTripRequest{TripID: pending.ID, Actor: driver()})
	require.ErrorIs(t, err, service.ErrInvalidState)
	require.ErrorIs(t, err, service.ErrConflict)
	assert.Contains(t, err.Error(), "accepted")

	assert.Equal(t, taken.DriverID, inner.GetTrip(pending.ID).DriverID)
	assert.Zero(t, atomic.LoadInt32(&cache.InvalidateCallCount))
}

// ──────────────────────────────────────────────
// 5. UPDATE
// ──────────────────────────────────────────────

func TestUpdate_PendingPatchesOnlySuppliedFields(t *testing.T) {
	t.Parallel()
	f := newTripFixture(t)
	p := passenger()
	trip, err := f.svc.Create(context.Background(), service.CreateTripRequest{
		Actor:       p,
		FromAddress: "A",
		ToAddress:   "B",
		Preferences: map[string]any{"ac": true},
		Price:       ptr(10.0),
	})
	require.NoError(t, err)

	updated, err := f.svc.Update(context.Background(), service.UpdateTripRequest{
		TripID: trip.ID,
		Actor:  p,
		Fields: domain.TripPatch{ToAddress: ptr("C")},
	})
	require.NoError(t, err)

	assert.Equal(t, "C", updated.ToAddress)
	assert.Equal(t, "A", updated.FromAddress)
	assert.Equal(t, map[string]any{"ac": true}, updated.Preferences)
	require.NotNil(t, updated.Price)
	assert.InDelta(t, 10.0, *updated.Price, 0.0001)
	assert.Equal(t, domain.TripStatusPending, updated.Status)
}

func TestUpdate_Rules(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("after accept", func(t *testing.T) {
		f := newTripFixture(t)
		p := passenger()
		trip := createTrip(t, f, p)
		_, err := f.svc.Accept(ctx, service.AcceptTripRequest{TripID: trip.ID, Actor: driver()})
		require.NoError(t, err)

		_, err = f.svc.Update(ctx, service.UpdateTripRequest{TripID: trip.ID, Actor: p, Fields: domain.TripPatch{ToAddress: ptr("C")}})
		require.ErrorIs(t, err, service.ErrInvalidState)
		assert.Equal(t, "B", f.trips.GetTrip(trip.ID).ToAddress)
	})

	t.Run("other passenger", func(t *testing.T) {
		f := newTripFixture(t)
		trip := createTrip(t, f, passenger())

		_, err := f.svc.Update(ctx, service.UpdateTripRequest{TripID: trip.ID, Actor: passenger(), Fields: domain.TripPatch{ToAddress: ptr("C")}})
		require.ErrorIs(t, err, service.ErrForbidden)
	})

	t.Run("blank address", func(t *testing.T) {
		f := newTripFixture(t)
		p := passenger()
		trip := createTrip(t, f, p)

		_, err := f.svc.Update(ctx, service.UpdateTripRequest{TripID: trip.ID, Actor: p, Fields: domain.TripPatch{FromAddress: ptr(" ")}})
		require.ErrorIs(t, err, service.ErrValidation)
	})

	t.Run("empty patch is a no-op", func(t *testing.T) {
		f := newTripFixture(t)
		p := passenger()
		trip := createTrip(t, f, p)
		before := atomic.LoadInt32(&f.cache.InvalidateCallCount)

		got, err := f.svc.Update(ctx, service.UpdateTripRequest{TripID: trip.ID, Actor: p})
		require.NoError(t, err)
		assert.Equal(t, trip.ToAddress, got.ToAddress)
		assert.Equal(t, before, atomic.LoadInt32(&f.cache.InvalidateCallCount))
	})
}

// ──────────────────────────────────────────────
// 6. VISIBILITY AND LISTINGS
// ──────────────────────────────────────────────

func TestGet_Visibility(t *testing.T) {
	t.Parallel()
	f := newTripFixture(t)
	ctx := context.Background()
	p, d := passenger(), driver()
	trip := createTrip(t, f, p)

	_, err := f.svc.Get(ctx, trip.ID, p)
	require.NoError(t, err)

	// Any driver sees an available trip.
	_, err = f.svc.Get(ctx, trip.ID, driver())
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, trip.ID, passenger())
	require.ErrorIs(t, err, service.ErrForbidden)

	_, err = f.svc.Accept(ctx, service.AcceptTripRequest{TripID: trip.ID, Actor: d})
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, trip.ID, d)
	require.NoError(t, err)
	_, err = f.svc.Get(ctx, trip.ID, driver())
	require.ErrorIs(t, err, service.ErrForbidden)
}

func TestListAvailable_CachedUntilTripChanges(t *testing.T) {
	t.Parallel()
	f := newTripFixture(t)
	ctx := context.Background()
	createTrip(t, f, passenger())
	second := createTrip(t, f, passenger())

	trips, err := f.svc.ListAvailable(ctx, domain.TripFilter{})
	require.NoError(t, err)
	require.Len(t, trips, 2)

	_, err = f.svc.ListAvailable(ctx, domain.TripFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&f.trips.ListAvailableCallCount), "second read should hit the cache")

	_, err = f.svc.Accept(ctx, service.AcceptTripRequest{TripID: second.ID, Actor: driver()})
	require.NoError(t, err)

	trips, err = f.svc.ListAvailable(ctx, domain.TripFilter{})
	require.NoError(t, err)
	assert.Len(t, trips, 1)
	assert.EqualValues(t, 2, atomic.LoadInt32(&f.trips.ListAvailableCallCount))
}

func TestListAvailable_CacheErrorFallsBackToRepository(t *testing.T) {
	t.Parallel()
	f := newTripFixture(t)
	createTrip(t, f, passenger())
	f.cache.GetError = errors.New("redis down")

	trips, err := f.svc.ListAvailable(context.Background(), domain.TripFilter{})
	require.NoError(t, err)
	assert.Len(t, trips, 1)
}

func TestListAvailable_FailedInvalidationBypassesCache(t *testing.T) {
	t.Parallel()
	f := newTripFixture(t)
	ctx := context.Background()
	p := passenger()
	first := createTrip(t, f, p)
	second := createTrip(t, f, passenger())

	trips, err := f.svc.ListAvailable(ctx, domain.TripFilter{})
	require.NoError(t, err)
	require.Len(t, trips, 2)

	f.cache.ListTTL = 50 * time.Millisecond
	f.cache.InvalidateError = errors.New("redis down")
	_, err = f.svc.Accept(ctx, service.AcceptTripRequest{TripID: second.ID, Actor: driver()})
	require.NoError(t, err, "a cache failure must not fail the transition")

	for i := 0; i < 2; i++ {
		trips, err = f.svc.ListAvailable(ctx, domain.TripFilter{})
		require.NoError(t, err)
		require.Len(t, trips, 1)
		assert.Equal(t, first.ID, trips[0].ID)
	}
	assert.EqualValues(t, 3, atomic.LoadInt32(&f.trips.ListAvailableCallCount), "listings skip the cache while bypassed")

	// Once the window has passed and invalidation works again, the cache is used.
	f.cache.InvalidateError = nil
	time.Sleep(100 * time.Millisecond)
	_, err = f.svc.Cancel(ctx, service.TripActionRequest{TripID: first.ID, Actor: p})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		trips, err = f.svc.ListAvailable(ctx, domain.TripFilter{})
		require.NoError(t, err)
		assert.Empty(t, trips)
	}
	assert.EqualValues(t, 4, atomic.LoadInt32(&f.trips.ListAvailableCallCount))
}

func TestListForUser_PaginatesAndInvalidatesPerUser(t *testing.T) {
	t.Parallel()
	f := newTripFixture(t)
	ctx := context.Background()
	p, d := passenger(), driver()

	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, createTrip(t, f, p).ID)
	}
	createTrip(t, f, passenger())

	page, err := f.svc.ListForUser(ctx, p.ID, domain.TripFilter{}, domain.PaginationParams{Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Trips, 2)

	// Non-positive values fall back to defaults.
	page, err = f.svc.ListForUser(ctx, p.ID, domain.TripFilter{}, domain.PaginationParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, domain.DefaultPageSize, page.Limit)

	_, err = f.svc.Accept(ctx, service.AcceptTripRequest{TripID: ids[0], Actor: d})
	require.NoError(t, err)
	assert.Contains(t, f.cache.Invalidated, p.ID)
	assert.Contains(t, f.cache.Invalidated, d.ID)

	page, err = f.svc.ListForUser(ctx, d.ID, domain.TripFilter{Status: domain.TripStatusAccepted}, domain.NewPaginationParams(1, 10))
	require.NoError(t, err)
	require.Len(t, page.Trips, 1)
	assert.Equal(t, ids[0], page.Trips[0].ID)
}

// ──────────────────────────────────────────────
// 7. END-TO-END SCENARIOS
// ──────────────────────────────────────────────

func TestScenario_AcceptRaceThenComplete(t *testing.T) {
	t.Parallel()
	f := newTripFixture(t)
	ctx := context.Background()
	p, d1, d2 := passenger(), driver(), driver()

	trip := createTrip(t, f, p)
	assert.Equal(t, domain.TripStatusPending, trip.Status)
	assert.Empty(t, trip.DriverID)

	accepted, err := f.svc.Accept(ctx, service.AcceptTripRequest{TripID: trip.ID, Actor: d1})
	require.NoError(t, err)
	assert.Equal(t, domain.TripStatusAccepted, accepted.Status)
	assert.Equal(t, d1.ID, accepted.DriverID)

	_, err = f.svc.Accept(ctx, service.AcceptTripRequest{TripID: trip.ID, Actor: d2})
	require.ErrorIs(t, err, service.ErrInvalidState)

	completed, err := f.svc.Complete(ctx, service.TripActionRequest{TripID: trip.ID, Actor: d1})
	require.NoError(t, err)
	assert.Equal(t, domain.TripStatusCompleted, completed.Status)
	assert.False(t, completed.FinishedAt.IsZero())

	_, err = f.svc.Cancel(ctx, service.TripActionRequest{TripID: trip.ID, Actor: p})
	require.ErrorIs(t, err, service.ErrInvalidState)
}

func TestScenario_UpdateDestinationWhilePending(t *testing.T) {
	t.Parallel()
	f := newTripFixture(t)
	p := passenger()
	trip := createTrip(t, f, p)

	updated, err := f.svc.Update(context.Background(), service.UpdateTripRequest{
		TripID: trip.ID,
		Actor:  p,
		Fields: domain.TripPatch{ToAddress: ptr("C")},
	})
	require.NoError(t, err)
	assert.Equal(t, "C", updated.ToAddress)
	assert.Equal(t, "A", updated.FromAddress)
	assert.Equal(t, "C", f.trips.GetTrip(trip.ID).ToAddress)
}
