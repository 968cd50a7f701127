package redis

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ridehail/internal/domain"
)

// DefaultTripListTTL bounds how long a cached trip listing may be served.
const DefaultTripListTTL = 30 * time.Minute

// Key prefixes
const (
	availableTripsPrefix = "cache:trips:available:"
	userTripsPrefix      = "cache:trips:user:"
	availableGenKey      = "cache:trips:available:gen"
)

// CacheStore caches trip listings in Redis.
//
// Every key embeds a generation number. Invalidation bumps the generation, so
// entries written from a read that raced with a mutation land under a key
// that is never read again and simply expire.
type CacheStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCacheStore creates a new CacheStore. A non-positive ttl uses DefaultTripListTTL.
func NewCacheStore(client *redis.Client, ttl time.Duration) *CacheStore {
	if ttl <= 0 {
		ttl = DefaultTripListTTL
	}
	return &CacheStore{client: client, ttl: ttl}
}

// TTL reports how long a cached listing lives.
func (s *CacheStore) TTL() time.Duration {
	return s.ttl
}

// CachedTrip represents a cached trip entity.
type CachedTrip struct {
	ID          string         `json:"id"`
	PassengerID string         `json:"passenger_id"`
	DriverID    string         `json:"driver_id,omitempty"`
	CarID       string         `json:"car_id,omitempty"`
	FromAddress string         `json:"from_address"`
	ToAddress   string         `json:"to_address"`
	Preferences map[string]any `json:"preferences,omitempty"`
	Status      string         `json:"status"`
	Price       *float64       `json:"price,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
	CancelledAt time.Time      `json:"cancelled_at"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// CachedTripPage represents a cached page of trips.
type CachedTripPage struct {
	Trips []CachedTrip `json:"trips"`
	Total int          `json:"total"`
	Page  int          `json:"page"`
	Limit int          `json:"limit"`
}

// AvailableTripsKey returns the current cache key for an available-trips listing.
func (s *CacheStore) AvailableTripsKey(ctx context.Context, filter domain.TripFilter) (string, error) {
	gen, err := s.generation(ctx, availableGenKey)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%d:%s", availableTripsPrefix, gen, filterHash(filter, domain.PaginationParams{})), nil
}

// UserTripsKey returns the current cache key for a user's trip page.
func (s *CacheStore) UserTripsKey(ctx context.Context, userID string, filter domain.TripFilter, page domain.PaginationParams) (string, error) {
	gen, err := s.generation(ctx, userGenKey(userID))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%s:%d:%s", userTripsPrefix, userID, gen, filterHash(filter, page)), nil
}

// GetTrips retrieves a cached trip list. Returns nil, nil on a cache miss.
func (s *CacheStore) GetTrips(ctx context.Context, key string) ([]*domain.Trip, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Cache miss
		}
		return nil, err
	}

	var cached []CachedTrip
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}

	trips := make([]*domain.Trip, len(cached))
	for i := range cached {
		trips[i] = cached[i].toDomain()
	}
	return trips, nil
}

// SetTrips stores a trip list in cache.
func (s *CacheStore) SetTrips(ctx context.Context, key string, trips []*domain.Trip) error {
	cached := make([]CachedTrip, len(trips))
	for i, t := range trips {
		cached[i] = toCachedTrip(t)
	}
	data, err := json.Marshal(cached)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, s.ttl).Err()
}

// GetTripPage retrieves a cached trip page. Returns nil, nil on a cache miss.
func (s *CacheStore) GetTripPage(ctx context.Context, key string) (*domain.TripPage, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Cache miss
		}
		return nil, err
	}

	var cached CachedTripPage
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}

	page := &domain.TripPage{
		Trips: make([]*domain.Trip, len(cached.Trips)),
		Total: cached.Total,
		Page:  cached.Page,
		Limit: cached.Limit,
	}
	for i := range cached.Trips {
		page.Trips[i] = cached.Trips[i].toDomain()
	}
	return page, nil
}

// SetTripPage stores a trip page in cache.
func (s *CacheStore) SetTripPage(ctx context.Context, key string, page *domain.TripPage) error {
	cached := CachedTripPage{
		Trips: make([]CachedTrip, len(page.Trips)),
		Total: page.Total,
		Page:  page.Page,
		Limit: page.Limit,
	}
	for i, t := range page.Trips {
		cached.Trips[i] = toCachedTrip(t)
	}
	data, err := json.Marshal(cached)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, s.ttl).Err()
}

// InvalidateTrips retires the available-trips listings and the listings of
// every given user in a single round trip.
func (s *CacheStore) InvalidateTrips(ctx context.Context, userIDs ...string) error {
	pipe := s.client.TxPipeline()
	pipe.Incr(ctx, availableGenKey)
	for _, id := range userIDs {
		if id == "" {
			continue
		}
		pipe.Incr(ctx, userGenKey(id))
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *CacheStore) generation(ctx context.Context, key string) (int64, error) {
	gen, err := s.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return gen, err
}

func userGenKey(userID string) string {
	return userTripsPrefix + userID + ":gen"
}

// filterHash derives a stable key fragment from a filter set and page.
func filterHash(filter domain.TripFilter, page domain.PaginationParams) string {
	var date string
	if !filter.Date.IsZero() {
		date = filter.Date.UTC().Format(time.DateOnly)
	}
	raw := fmt.Sprintf("status=%s|date=%s|passenger=%s|driver=%s|page=%d|limit=%d",
		filter.Status, date, filter.PassengerID, filter.DriverID, page.Page, page.Limit)
	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func toCachedTrip(t *domain.Trip) CachedTrip {
	return CachedTrip{
		ID:          t.ID,
		PassengerID: t.PassengerID,
		DriverID:    t.DriverID,
		CarID:       t.CarID,
		FromAddress: t.FromAddress,
		ToAddress:   t.ToAddress,
		Preferences: t.Preferences,
		Status:      string(t.Status),
		Price:       t.Price,
		StartedAt:   t.StartedAt,
		FinishedAt:  t.FinishedAt,
		CancelledAt: t.CancelledAt,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func (c CachedTrip) toDomain() *domain.Trip {
	return &domain.Trip{
		ID:          c.ID,
		PassengerID: c.PassengerID,
		DriverID:    c.DriverID,
		CarID:       c.CarID,
		FromAddress: c.FromAddress,
		ToAddress:   c.ToAddress,
		Preferences: c.Preferences,
		Status:      domain.TripStatus(c.Status),
		Price:       c.Price,
		StartedAt:   c.StartedAt,
		FinishedAt:  c.FinishedAt,
		CancelledAt: c.CancelledAt,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}
