package repository

import (
	"context"

	"carpool/internal/domain"
)

// TripRepository defines the persistence operations for trips.
type TripRepository interface {
	// Create persists a new trip.
	Create(ctx context.Context, trip *domain.Trip) error

	// GetByID retrieves a trip by ID.
	GetByID(ctx context.Context, id string) (*domain.Trip, error)

	// GetByIDForUpdate retrieves a trip and locks its row until the
	// surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id string) (*domain.Trip, error)

	// List retrieves trips matching the filter, newest first.
	List(ctx context.Context, filter domain.TripFilter) ([]*domain.Trip, error)

	// Search retrieves trips matching an exact route and date.
	Search(ctx context.Context, criteria domain.TripSearch) ([]*domain.Trip, error)

	// ListByStatuses retrieves every trip in one of the given statuses.
	ListByStatuses(ctx context.Context, statuses []domain.TripStatus) ([]*domain.Trip, error)

	// Update writes the trip back if its stored version still equals
	// trip.Version, then increments trip.Version.
	// Returns ErrVersionConflict when the version moved.
	Update(ctx context.Context, trip *domain.Trip) error

	// Delete removes a trip. Returns ErrReferenced while reservations
	// point at it.
	Delete(ctx context.Context, id string) error
}
