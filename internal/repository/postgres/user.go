package postgres

import (
	"context"
	"database/sql"

	"carpool/internal/domain"
	"carpool/internal/repository"
)

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT id, name, email, is_verified_driver, stripe_customer_id, created_at FROM users WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)

	var user domain.User
	err := row.Scan(&user.ID, &user.Name, &user.Email, &user.IsVerifiedDriver, &user.StripeCustomerID, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// CarRepository implements repository.CarRepository using PostgreSQL.
type CarRepository struct {
	db *sql.DB
}

// NewCarRepository creates a new CarRepository.
func NewCarRepository(db *sql.DB) *CarRepository {
	return &CarRepository{db: db}
}

// GetByIDAndDriver retrieves a car only if it belongs to the driver.
func (r *CarRepository) GetByIDAndDriver(ctx context.Context, carID, driverID string) (*domain.Car, error) {
	query := `SELECT id, driver_id, make, model, license_plate, number_of_seats FROM cars WHERE id = $1 AND driver_id = $2`
	return r.scan(r.db.QueryRowContext(ctx, query, carID, driverID))
}

// GetByID retrieves a car by ID.
func (r *CarRepository) GetByID(ctx context.Context, id string) (*domain.Car, error) {
	query := `SELECT id, driver_id, make, model, license_plate, number_of_seats FROM cars WHERE id = $1`
	return r.scan(r.db.QueryRowContext(ctx, query, id))
}

func (r *CarRepository) scan(row *sql.Row) (*domain.Car, error) {
	var car domain.Car
	err := row.Scan(&car.ID, &car.DriverID, &car.Make, &car.Model, &car.LicensePlate, &car.NumberOfSeats)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &car, nil
}

var (
	_ repository.UserRepository = (*UserRepository)(nil)
	_ repository.CarRepository  = (*CarRepository)(nil)
)
