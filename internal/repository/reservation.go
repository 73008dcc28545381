package repository

import (
	"context"

	"carpool/internal/domain"
)

// ReservationRepository defines the persistence operations for reservations.
type ReservationRepository interface {
	// Create persists a new reservation.
	// Returns ErrDuplicate if the passenger already holds an active
	// reservation on the trip.
	Create(ctx context.Context, reservation *domain.Reservation) error

	// GetByID retrieves a reservation by ID.
	GetByID(ctx context.Context, id string) (*domain.Reservation, error)

	// GetActive retrieves the passenger's active reservation on a trip.
	// Returns nil if there is none.
	GetActive(ctx context.Context, tripID, passengerID string) (*domain.Reservation, error)

	// ListByTrip retrieves all reservations of a trip.
	ListByTrip(ctx context.Context, tripID string) ([]*domain.Reservation, error)

	// ListByPassenger retrieves all reservations made by a passenger.
	ListByPassenger(ctx context.Context, passengerID string) ([]*domain.Reservation, error)

	// ListActiveByTrips retrieves active reservations for the given trips.
	ListActiveByTrips(ctx context.Context, tripIDs []string) ([]*domain.Reservation, error)

	// UpdateStatus updates the status of a reservation.
	UpdateStatus(ctx context.Context, id string, status domain.ReservationStatus) error

	// CompleteByTrip marks every confirmed reservation of a trip completed
	// and returns how many changed.
	CompleteByTrip(ctx context.Context, tripID string) (int64, error)
}
