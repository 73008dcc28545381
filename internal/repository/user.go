package repository

import (
	"context"

	"carpool/internal/domain"
)

// UserRepository provides read access to user accounts.
type UserRepository interface {
	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// CarRepository provides read access to cars.
type CarRepository interface {
	// GetByIDAndDriver retrieves a car only if it belongs to the driver.
	GetByIDAndDriver(ctx context.Context, carID, driverID string) (*domain.Car, error)

	// GetByID retrieves a car by ID.
	GetByID(ctx context.Context, id string) (*domain.Car, error)
}
