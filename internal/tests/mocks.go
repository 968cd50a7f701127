// Package tests provides in-memory doubles of the repositories and Redis
// stores for service, handler and middleware tests.
package tests

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"ridehail/internal/domain"
	"ridehail/internal/redis"
	"ridehail/internal/repository"
)

// ──────────────────────────────────────────────
// MOCK TRIP REPOSITORY
// ──────────────────────────────────────────────

// MockTripRepository is an in-memory TripRepository. Transition and
// UpdateDetails evaluate their conditions under a single lock, matching the
// single-statement semantics of the PostgreSQL implementation.
type MockTripRepository struct {
	mu    sync.RWMutex
	trips map[string]*domain.Trip

	// Counters for verification
	TransitionCallCount    int32
	ListAvailableCallCount int32
	ListForUserCallCount   int32

	// Error injection
	CreateError     error
	GetError        error
	TransitionError error
	ListError       error
}

// NewMockTripRepository creates a new mock trip repository.
func NewMockTripRepository() *MockTripRepository {
	return &MockTripRepository{trips: make(map[string]*domain.Trip)}
}

// AddTrip stores a copy of trip.
func (m *MockTripRepository) AddTrip(trip *domain.Trip) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trips[trip.ID] = cloneTrip(trip)
}

// GetTrip returns a copy of the stored trip, or nil.
func (m *MockTripRepository) GetTrip(id string) *domain.Trip {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if t, ok := m.trips[id]; ok {
		return cloneTrip(t)
	}
	return nil
}

// CountTrips returns the number of stored trips.
func (m *MockTripRepository) CountTrips() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.trips)
}

func (m *MockTripRepository) Create(ctx context.Context, trip *domain.Trip) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.AddTrip(trip)
	return nil
}

func (m *MockTripRepository) GetByID(ctx context.Context, id string) (*domain.Trip, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	if t := m.GetTrip(id); t != nil {
		return t, nil
	}
	return nil, repository.ErrNotFound
}

func (m *MockTripRepository) Transition(ctx context.Context, t repository.TripTransition) (*domain.Trip, error) {
	atomic.AddInt32(&m.TransitionCallCount, 1)
	if m.TransitionError != nil {
		return nil, m.TransitionError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	trip, ok := m.trips[t.TripID]
	if !ok {
		return nil, repository.ErrNotFound
	}

	switch {
	case !slices.Contains(t.From, trip.Status),
		t.RequireUnassigned && trip.DriverID != "",
		t.RequirePassengerID != "" && trip.PassengerID != t.RequirePassengerID:
		return nil, repository.ErrConflict
	case t.RequireDriverID != "" && trip.DriverID != t.RequireDriverID:
		if !(t.AllowUnassignedDriver && trip.DriverID == "") {
			return nil, repository.ErrConflict
		}
	}

	trip.Status = t.To
	trip.UpdatedAt = t.At
	if t.AssignDriverID != "" {
		trip.DriverID = t.AssignDriverID
	}
	if t.AssignCarID != "" {
		trip.CarID = t.AssignCarID
	}
	switch t.To {
	case domain.TripStatusInProgress:
		trip.StartedAt = t.At
	case domain.TripStatusCompleted:
		trip.FinishedAt = t.At
	case domain.TripStatusCancelled:
		trip.CancelledAt = t.At
	}

	return cloneTrip(trip), nil
}

func (m *MockTripRepository) UpdateDetails(ctx context.Context, update *domain.Trip) (*domain.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	trip, ok := m.trips[update.ID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if trip.Status != domain.TripStatusPending || trip.PassengerID != update.PassengerID {
		return nil, repository.ErrConflict
	}

	trip.FromAddress = update.FromAddress
	trip.ToAddress = update.ToAddress
	trip.Preferences = update.Preferences
	trip.Price = update.Price
	trip.UpdatedAt = update.UpdatedAt
	return cloneTrip(trip), nil
}

func (m *MockTripRepository) ListAvailable(ctx context.Context, filter domain.TripFilter) ([]*domain.Trip, error) {
	atomic.AddInt32(&m.ListAvailableCallCount, 1)
	if m.ListError != nil {
		return nil, m.ListError
	}
	if filter.Status == "" {
		filter.Status = domain.TripStatusPending
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	trips := make([]*domain.Trip, 0)
	for _, t := range m.trips {
		if t.DriverID == "" && filter.Matches(t) {
			trips = append(trips, cloneTrip(t))
		}
	}
	sort.Slice(trips, func(i, j int) bool {
		if trips[i].CreatedAt.Equal(trips[j].CreatedAt) {
			return trips[i].ID < trips[j].ID
		}
		return trips[i].CreatedAt.Before(trips[j].CreatedAt)
	})
	return trips, nil
}

func (m *MockTripRepository) ListForUser(ctx context.Context, userID string, filter domain.TripFilter, page domain.PaginationParams) (*domain.TripPage, error) {
	atomic.AddInt32(&m.ListForUserCallCount, 1)
	if m.ListError != nil {
		return nil, m.ListError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]*domain.Trip, 0)
	for _, t := range m.trips {
		if t.Involves(userID) && filter.Matches(t) {
			matched = append(matched, cloneTrip(t))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	start := min(page.Offset(), len(matched))
	end := min(start+page.Limit, len(matched))
	return &domain.TripPage{
		Trips: matched[start:end],
		Total: len(matched),
		Page:  page.Page,
		Limit: page.Limit,
	}, nil
}

func cloneTrip(t *domain.Trip) *domain.Trip {
	c := *t
	if t.Price != nil {
		p := *t.Price
		c.Price = &p
	}
	if t.Preferences != nil {
		c.Preferences = make(map[string]any, len(t.Preferences))
		for k, v := range t.Preferences {
			c.Preferences[k] = v
		}
	}
	return &c
}

// ──────────────────────────────────────────────
// MOCK USER REPOSITORY
// ──────────────────────────────────────────────

// MockUserRepository is an in-memory UserRepository.
type MockUserRepository struct {
	mu    sync.RWMutex
	users map[string]*domain.User

	CreateError error
}

// NewMockUserRepository creates a new mock user repository.
func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{users: make(map[string]*domain.User)}
}

// AddUser adds a user to the mock repository.
func (m *MockUserRepository) AddUser(user *domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := *user
	m.users[user.ID] = &u
}

func (m *MockUserRepository) Create(ctx context.Context, user *domain.User) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email || u.Phone == user.Phone {
			return repository.ErrDuplicate
		}
	}
	u := *user
	m.users[user.ID] = &u
	return nil
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.users[id]; ok {
		c := *u
		return &c, nil
	}
	return nil, repository.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *MockUserRepository) ExistsByEmailOrPhone(ctx context.Context, email, phone string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Email == email || u.Phone == phone {
			return true, nil
		}
	}
	return false, nil
}

// ──────────────────────────────────────────────
// MOCK CAR REPOSITORY
// ──────────────────────────────────────────────

// MockCarRepository is an in-memory CarRepository with unique plate numbers.
type MockCarRepository struct {
	mu   sync.RWMutex
	cars map[string]*domain.Car
}

// NewMockCarRepository creates a new mock car repository.
func NewMockCarRepository() *MockCarRepository {
	return &MockCarRepository{cars: make(map[string]*domain.Car)}
}

// AddCar adds a car to the mock repository.
func (m *MockCarRepository) AddCar(car *domain.Car) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *car
	m.cars[car.ID] = &c
}

func (m *MockCarRepository) Create(ctx context.Context, car *domain.Car) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.cars {
		if c.PlateNumber == car.PlateNumber {
			return repository.ErrDuplicate
		}
	}
	c := *car
	m.cars[car.ID] = &c
	return nil
}

func (m *MockCarRepository) GetByID(ctx context.Context, id string) (*domain.Car, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.cars[id]; ok {
		car := *c
		return &car, nil
	}
	return nil, repository.ErrNotFound
}

func (m *MockCarRepository) ListByDriver(ctx context.Context, driverID string) ([]*domain.Car, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cars := make([]*domain.Car, 0)
	for _, c := range m.cars {
		if c.DriverID == driverID {
			car := *c
			cars = append(cars, &car)
		}
	}
	sort.Slice(cars, func(i, j int) bool { return cars[i].CreatedAt.Before(cars[j].CreatedAt) })
	return cars, nil
}

func (m *MockCarRepository) Update(ctx context.Context, car *domain.Car) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cars[car.ID]; !ok {
		return repository.ErrNotFound
	}
	for id, c := range m.cars {
		if id != car.ID && c.PlateNumber == car.PlateNumber {
			return repository.ErrDuplicate
		}
	}
	c := *car
	m.cars[car.ID] = &c
	return nil
}

func (m *MockCarRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cars[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.cars, id)
	return nil
}

// ──────────────────────────────────────────────
// MOCK REVIEW REPOSITORY
// ──────────────────────────────────────────────

// MockReviewRepository is an in-memory ReviewRepository allowing one review per trip.
type MockReviewRepository struct {
	mu      sync.RWMutex
	reviews []*domain.Review
}

// NewMockReviewRepository creates a new mock review repository.
func NewMockReviewRepository() *MockReviewRepository {
	return &MockReviewRepository{}
}

func (m *MockReviewRepository) Create(ctx context.Context, review *domain.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if review.TripID != "" {
		for _, r := range m.reviews {
			if r.TripID == review.TripID {
				return repository.ErrDuplicate
			}
		}
	}
	r := *review
	m.reviews = append(m.reviews, &r)
	return nil
}

func (m *MockReviewRepository) ListByDriver(ctx context.Context, driverID string) ([]*domain.Review, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Review, 0)
	for i := len(m.reviews) - 1; i >= 0; i-- {
		if m.reviews[i].DriverID == driverID {
			r := *m.reviews[i]
			out = append(out, &r)
		}
	}
	return out, nil
}

// ──────────────────────────────────────────────
// MOCK REDIS STORES
// ──────────────────────────────────────────────

// MockTripCache is an in-memory TripCacheInterface using the same
// generation-per-key scheme as the Redis cache.
type MockTripCache struct {
	mu          sync.Mutex
	generations map[string]int64
	lists       map[string][]*domain.Trip
	pages       map[string]*domain.TripPage

	InvalidateCallCount int32
	Invalidated         []string
	ListTTL             time.Duration

	// Error injection
	GetError        error
	InvalidateError error
}

// NewMockTripCache creates a new mock trip cache.
func NewMockTripCache() *MockTripCache {
	return &MockTripCache{
		generations: make(map[string]int64),
		lists:       make(map[string][]*domain.Trip),
		pages:       make(map[string]*domain.TripPage),
		ListTTL:     30 * time.Minute,
	}
}

func (m *MockTripCache) AvailableTripsKey(ctx context.Context, filter domain.TripFilter) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fmt.Sprintf("available:%d:%+v", m.generations["available"], filter), nil
}

func (m *MockTripCache) UserTripsKey(ctx context.Context, userID string, filter domain.TripFilter, page domain.PaginationParams) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fmt.Sprintf("user:%s:%d:%+v:%+v", userID, m.generations["user:"+userID], filter, page), nil
}

func (m *MockTripCache) GetTrips(ctx context.Context, key string) ([]*domain.Trip, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lists[key], nil
}

func (m *MockTripCache) SetTrips(ctx context.Context, key string, trips []*domain.Trip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[key] = trips
	return nil
}

func (m *MockTripCache) GetTripPage(ctx context.Context, key string) (*domain.TripPage, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pages[key], nil
}

func (m *MockTripCache) SetTripPage(ctx context.Context, key string, page *domain.TripPage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[key] = page
	return nil
}

func (m *MockTripCache) InvalidateTrips(ctx context.Context, userIDs ...string) error {
	atomic.AddInt32(&m.InvalidateCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InvalidateError != nil {
		return m.InvalidateError
	}
	m.generations["available"]++
	for _, id := range userIDs {
		if id == "" {
			continue
		}
		m.generations["user:"+id]++
		m.Invalidated = append(m.Invalidated, id)
	}
	return nil
}

func (m *MockTripCache) TTL() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ListTTL
}

// MockLockStore is an in-memory LockStoreInterface.
type MockLockStore struct {
	mu    sync.Mutex
	locks map[string]bool
}

// NewMockLockStore creates a new mock lock store.
func NewMockLockStore() *MockLockStore {
	return &MockLockStore{locks: make(map[string]bool)}
}

func (m *MockLockStore) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[key] {
		return false, nil
	}
	m.locks[key] = true
	return true, nil
}

func (m *MockLockStore) Release(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, key)
	return nil
}

// MockIdempotencyStore is an in-memory IdempotencyStoreInterface.
type MockIdempotencyStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMockIdempotencyStore creates a new mock idempotency store.
func NewMockIdempotencyStore() *MockIdempotencyStore {
	return &MockIdempotencyStore{data: make(map[string][]byte)}
}

func (m *MockIdempotencyStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], nil
}

func (m *MockIdempotencyStore) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = data
	return nil
}

// MockTokenDenylist is an in-memory TokenDenylistInterface.
type MockTokenDenylist struct {
	mu      sync.Mutex
	revoked map[string]time.Time
}

// NewMockTokenDenylist creates a new mock token denylist.
func NewMockTokenDenylist() *MockTokenDenylist {
	return &MockTokenDenylist{revoked: make(map[string]time.Time)}
}

func (m *MockTokenDenylist) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[tokenID] = expiresAt
	return nil
}

func (m *MockTokenDenylist) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.revoked[tokenID]
	return ok, nil
}

// ──────────────────────────────────────────────
// RECORDING PUBLISHER
// ──────────────────────────────────────────────

// RecordingPublisher captures every trip event handed to it.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []domain.TripStatusEvent

	PublishError error
}

// NewRecordingPublisher creates a new RecordingPublisher.
func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{}
}

func (p *RecordingPublisher) Name() string { return "recording" }

func (p *RecordingPublisher) Publish(ctx context.Context, event domain.TripStatusEvent, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.PublishError
}

// Events returns the captured events in delivery order.
func (p *RecordingPublisher) Events() []domain.TripStatusEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.events)
}

// Ensure mocks implement interfaces.
var (
	_ repository.TripRepository   = (*MockTripRepository)(nil)
	_ repository.UserRepository   = (*MockUserRepository)(nil)
	_ repository.CarRepository    = (*MockCarRepository)(nil)
	_ repository.ReviewRepository = (*MockReviewRepository)(nil)

	_ redis.TripCacheInterface        = (*MockTripCache)(nil)
	_ redis.LockStoreInterface        = (*MockLockStore)(nil)
	_ redis.IdempotencyStoreInterface = (*MockIdempotencyStore)(nil)
	_ redis.TokenDenylistInterface    = (*MockTokenDenylist)(nil)
)
