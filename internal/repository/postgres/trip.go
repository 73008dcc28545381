package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"carpool/internal/domain"
	"carpool/internal/repository"
)

const tripColumns = `id, driver_id, car_id, departure_location, arrival_location,
	to_char(departure_date, 'YYYY-MM-DD'), to_char(departure_time, 'HH24:MI'),
	total_seats, available_seats, price_per_seat, description, status,
	passenger_ids, version, created_at, updated_at`

// TripRepository is a PostgreSQL implementation of repository.TripRepository.
type TripRepository struct {
	q Querier
}

// NewTripRepository creates a new PostgreSQL trip repository.
func NewTripRepository(db *sql.DB) *TripRepository {
	return &TripRepository{q: db}
}

// NewTripRepositoryWithTx creates a trip repository using a transaction.
func NewTripRepositoryWithTx(tx *sql.Tx) *TripRepository {
	return &TripRepository{q: tx}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrip(row rowScanner) (*domain.Trip, error) {
	var trip domain.Trip
	var passengers pq.StringArray
	if err := row.Scan(
		&trip.ID,
		&trip.DriverID,
		&trip.CarID,
		&trip.DepartureLocation,
		&trip.ArrivalLocation,
		&trip.DepartureDate,
		&trip.DepartureTime,
		&trip.TotalSeats,
		&trip.AvailableSeats,
		&trip.PricePerSeat,
		&trip.Description,
		&trip.Status,
		&passengers,
		&trip.Version,
		&trip.CreatedAt,
		&trip.UpdatedAt,
	); err != nil {
		return nil, err
	}
	trip.PassengerIDs = []string(passengers)
	if trip.PassengerIDs == nil {
		trip.PassengerIDs = []string{}
	}
	return &trip, nil
}

func (r *TripRepository) queryTrips(ctx context.Context, query string, args ...any) ([]*domain.Trip, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trips := []*domain.Trip{}
	for rows.Next() {
		trip, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		trips = append(trips, trip)
	}
	return trips, rows.Err()
}

// Create persists a new trip.
func (r *TripRepository) Create(ctx context.Context, trip *domain.Trip) error {
	query := `
		INSERT INTO trips (id, driver_id, car_id, departure_location, arrival_location,
			departure_date, departure_time, total_seats, available_seats, price_per_seat,
			description, status, passenger_ids, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := r.q.ExecContext(ctx, query,
		trip.ID,
		trip.DriverID,
		trip.CarID,
		trip.DepartureLocation,
		trip.ArrivalLocation,
		trip.DepartureDate,
		trip.DepartureTime,
		trip.TotalSeats,
		trip.AvailableSeats,
		trip.PricePerSeat,
		trip.Description,
		trip.Status,
		pq.Array(trip.PassengerIDs),
		trip.Version,
		trip.CreatedAt,
		trip.UpdatedAt,
	)
	return mapWriteError(err)
}

// GetByID retrieves a trip by ID.
func (r *TripRepository) GetByID(ctx context.Context, id string) (*domain.Trip, error) {
	return r.get(ctx, `SELECT `+tripColumns+` FROM trips WHERE id = $1`, id)
}

// GetByIDForUpdate retrieves a trip and locks its row.
func (r *TripRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Trip, error) {
	return r.get(ctx, `SELECT `+tripColumns+` FROM trips WHERE id = $1 FOR UPDATE`, id)
}

func (r *TripRepository) get(ctx context.Context, query, id string) (*domain.Trip, error) {
	trip, err := scanTrip(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return trip, nil
}

// List retrieves trips matching the filter, newest first.
func (r *TripRepository) List(ctx context.Context, filter domain.TripFilter) ([]*domain.Trip, error) {
	var conds []string
	var args []any
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, "status = $"+strconv.Itoa(len(args)))
	}
	if filter.DriverID != "" {
		args = append(args, filter.DriverID)
		conds = append(conds, "driver_id = $"+strconv.Itoa(len(args)))
	}
	if filter.PassengerID != "" {
		args = append(args, filter.PassengerID)
		conds = append(conds, "$"+strconv.Itoa(len(args))+" = ANY(passenger_ids)")
	}

	query := `SELECT ` + tripColumns + ` FROM trips`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC`

	return r.queryTrips(ctx, query, args...)
}

// Search retrieves trips on an exact route and date with enough free seats.
func (r *TripRepository) Search(ctx context.Context, criteria domain.TripSearch) ([]*domain.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips
		WHERE departure_location = $1
		  AND arrival_location = $2
		  AND departure_date = $3
		  AND available_seats >= $4
		  AND status = ANY($5)
		ORDER BY departure_time, id`

	return r.queryTrips(ctx, query,
		criteria.DepartureLocation,
		criteria.ArrivalLocation,
		criteria.DepartureDate,
		criteria.MinSeats,
		pq.Array(statusStrings(criteria.Statuses)),
	)
}

// ListByStatuses retrieves every trip in one of the given statuses.
func (r *TripRepository) ListByStatuses(ctx context.Context, statuses []domain.TripStatus) ([]*domain.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips WHERE status = ANY($1) ORDER BY id`
	return r.queryTrips(ctx, query, pq.Array(statusStrings(statuses)))
}

// Update writes the trip back guarded by its version.
func (r *TripRepository) Update(ctx context.Context, trip *domain.Trip) error {
	query := `
		UPDATE trips
		SET departure_location = $1, arrival_location = $2, departure_date = $3,
			departure_time = $4, total_seats = $5, available_seats = $6,
			price_per_seat = $7, description = $8, status = $9, passenger_ids = $10,
			version = version + 1, updated_at = $11
		WHERE id = $12 AND version = $13
	`

	now := time.Now().UTC()
	result, err := r.q.ExecContext(ctx, query,
		trip.DepartureLocation,
		trip.ArrivalLocation,
		trip.DepartureDate,
		trip.DepartureTime,
		trip.TotalSeats,
		trip.AvailableSeats,
		trip.PricePerSeat,
		trip.Description,
		trip.Status,
		pq.Array(trip.PassengerIDs),
		now,
		trip.ID,
		trip.Version,
	)
	if err != nil {
		return err
	}

	if err := requireRows(result); err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		var exists bool
		if err := r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM trips WHERE id = $1)`, trip.ID).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return repository.ErrVersionConflict
		}
		return repository.ErrNotFound
	}

	trip.Version++
	trip.UpdatedAt = now
	return nil
}

// Delete removes a trip.
func (r *TripRepository) Delete(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM trips WHERE id = $1`, id)
	if err != nil {
		return mapWriteError(err)
	}
	return requireRows(result)
}

// Ensure TripRepository implements repository.TripRepository.
var _ repository.TripRepository = (*TripRepository)(nil)
