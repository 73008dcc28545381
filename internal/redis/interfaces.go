package redis

import (
	"context"
	"time"

	"carpool/internal/domain"
	"carpool/internal/middleware"
)

// LockStoreInterface defines the interface for distributed trip locking.
type LockStoreInterface interface {
	AcquireTripLock(ctx context.Context, tripID string, ttl time.Duration) (string, bool, error)
	ReleaseTripLock(ctx context.Context, tripID, token string) error
}

// CacheStoreInterface defines the interface for trip caching and webhook
// event deduplication.
type CacheStoreInterface interface {
	GetTrip(ctx context.Context, tripID string) (*domain.Trip, error)
	SetTrip(ctx context.Context, trip *domain.Trip) error
	InvalidateTrip(ctx context.Context, tripID string) error
	GetPopularTrips(ctx context.Context, limit int) ([]*domain.Trip, error)
	SetPopularTrips(ctx context.Context, limit int, trips []*domain.Trip) error
	MarkEventProcessed(ctx context.Context, eventID string) (bool, error)
	ForgetEvent(ctx context.Context, eventID string) error
}

// Ensure concrete types implement interfaces.
var (
	_ LockStoreInterface     = (*LockStore)(nil)
	_ CacheStoreInterface    = (*CacheStore)(nil)
	_ middleware.ReplayStore = (*ReplayStore)(nil)
)
