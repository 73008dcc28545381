package repository

import (
	"context"

	"carpool/internal/domain"
)

// PaymentRepository defines the persistence operations for payments.
type PaymentRepository interface {
	// Create persists a new payment.
	Create(ctx context.Context, payment *domain.Payment) error

	// GetByID retrieves a payment by ID.
	GetByID(ctx context.Context, id string) (*domain.Payment, error)

	// GetByIntentID retrieves a payment by processor intent ID and locks
	// its row when called inside a transaction.
	GetByIntentID(ctx context.Context, intentID string) (*domain.Payment, error)

	// GetByReservationID retrieves the payment backing a reservation.
	GetByReservationID(ctx context.Context, reservationID string) (*domain.Payment, error)

	// ListByUser retrieves all payments of a user, newest first.
	ListByUser(ctx context.Context, userID string) ([]*domain.Payment, error)

	// SetIntent records the processor intent ID of a payment.
	// Returns ErrVersionConflict when a different intent is already recorded.
	SetIntent(ctx context.Context, id, intentID string) error

	// UpdateStatus updates the status of a payment.
	UpdateStatus(ctx context.Context, id string, status domain.PaymentStatus) error
}
