package redis

import (
	"context"
	"time"

	"ridehail/internal/domain"
)

// TripCacheInterface defines the interface for trip listing caching.
type TripCacheInterface interface {
	AvailableTripsKey(ctx context.Context, filter domain.TripFilter) (string, error)
	UserTripsKey(ctx context.Context, userID string, filter domain.TripFilter, page domain.PaginationParams) (string, error)
	GetTrips(ctx context.Context, key string) ([]*domain.Trip, error)
	SetTrips(ctx context.Context, key string, trips []*domain.Trip) error
	GetTripPage(ctx context.Context, key string) (*domain.TripPage, error)
	SetTripPage(ctx context.Context, key string, page *domain.TripPage) error
	InvalidateTrips(ctx context.Context, userIDs ...string) error
	TTL() time.Duration
}

// LockStoreInterface defines the interface for distributed locking.
type LockStoreInterface interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// TokenDenylistInterface defines the interface for revoked token lookups.
type TokenDenylistInterface interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// IdempotencyStoreInterface defines the interface for stored idempotent responses.
type IdempotencyStoreInterface interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
}

// Ensure concrete types implement interfaces.
var (
	_ TripCacheInterface     = (*CacheStore)(nil)
	_ LockStoreInterface     = (*LockStore)(nil)
	_ TokenDenylistInterface = (*TokenDenylist)(nil)

	_ IdempotencyStoreInterface = (*IdempotencyStore)(nil)
)
