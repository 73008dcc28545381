package service

import (
	"context"
	"time"

	"carpool/internal/domain"
)

// IdentityProvider answers questions about users. Accounts and tokens are
// managed outside this service.
type IdentityProvider interface {
	IsVerifiedDriver(ctx context.Context, userID string) (bool, error)
	GetUser(ctx context.Context, userID string) (*domain.User, error)
}

// Notifier delivers a notification to one user. Callers on the trip and
// payment paths log its errors and carry on.
type Notifier interface {
	Notify(ctx context.Context, req NotificationRequest) (*domain.Notification, error)
}

// PaymentProcessor is the external payment provider.
type PaymentProcessor interface {
	CreatePaymentIntent(ctx context.Context, amount int64, currency, customerID string, metadata map[string]string) (*domain.PaymentIntent, error)
	RetrievePaymentIntent(ctx context.Context, intentID string) (*domain.PaymentIntent, error)
}

// TripLocker serializes mutations of one trip across instances.
type TripLocker interface {
	AcquireTripLock(ctx context.Context, tripID string, ttl time.Duration) (string, bool, error)
	ReleaseTripLock(ctx context.Context, tripID, token string) error
}

// TripCache is a read-through cache for trips and the popular ranking.
type TripCache interface {
	GetTrip(ctx context.Context, tripID string) (*domain.Trip, error)
	SetTrip(ctx context.Context, trip *domain.Trip) error
	InvalidateTrip(ctx context.Context, tripID string) error
	GetPopularTrips(ctx context.Context, limit int) ([]*domain.Trip, error)
	SetPopularTrips(ctx context.Context, limit int, trips []*domain.Trip) error
}

// EventPublisher emits committed trip changes to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.TripEvent) error
}
