package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"carpool/internal/domain"
	"carpool/internal/repository"
)

const reservationColumns = `id, trip_id, passenger_id, number_of_seats, status, total_amount, created_at, updated_at`

// ReservationRepository is a PostgreSQL implementation of repository.ReservationRepository.
type ReservationRepository struct {
	q Querier
}

// NewReservationRepository creates a new PostgreSQL reservation repository.
func NewReservationRepository(db *sql.DB) *ReservationRepository {
	return &ReservationRepository{q: db}
}

// NewReservationRepositoryWithTx creates a reservation repository using a transaction.
func NewReservationRepositoryWithTx(tx *sql.Tx) *ReservationRepository {
	return &ReservationRepository{q: tx}
}

func scanReservation(row rowScanner) (*domain.Reservation, error) {
	var res domain.Reservation
	if err := row.Scan(
		&res.ID,
		&res.TripID,
		&res.PassengerID,
		&res.NumberOfSeats,
		&res.Status,
		&res.TotalAmount,
		&res.CreatedAt,
		&res.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *ReservationRepository) queryReservations(ctx context.Context, query string, args ...any) ([]*domain.Reservation, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reservations := []*domain.Reservation{}
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, res)
	}
	return reservations, rows.Err()
}

// Create persists a new reservation.
func (r *ReservationRepository) Create(ctx context.Context, res *domain.Reservation) error {
	query := `
		INSERT INTO reservations (id, trip_id, passenger_id, number_of_seats, status, total_amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.q.ExecContext(ctx, query,
		res.ID,
		res.TripID,
		res.PassengerID,
		res.NumberOfSeats,
		res.Status,
		res.TotalAmount,
		res.CreatedAt,
		res.UpdatedAt,
	)
	return mapWriteError(err)
}

// GetByID retrieves a reservation by ID.
func (r *ReservationRepository) GetByID(ctx context.Context, id string) (*domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`

	res, err := scanReservation(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return res, nil
}

// GetActive retrieves the passenger's active reservation on a trip.
// Returns nil if there is none.
func (r *ReservationRepository) GetActive(ctx context.Context, tripID, passengerID string) (*domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations
		WHERE trip_id = $1 AND passenger_id = $2 AND status <> $3`

	res, err := scanReservation(r.q.QueryRowContext(ctx, query, tripID, passengerID, domain.ReservationStatusCancelled))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return res, nil
}

// ListByTrip retrieves all reservations of a trip.
func (r *ReservationRepository) ListByTrip(ctx context.Context, tripID string) ([]*domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE trip_id = $1 ORDER BY created_at`
	return r.queryReservations(ctx, query, tripID)
}

// ListByPassenger retrieves all reservations made by a passenger.
func (r *ReservationRepository) ListByPassenger(ctx context.Context, passengerID string) ([]*domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE passenger_id = $1 ORDER BY created_at DESC`
	return r.queryReservations(ctx, query, passengerID)
}

// ListActiveByTrips retrieves active reservations for the given trips.
func (r *ReservationRepository) ListActiveByTrips(ctx context.Context, tripIDs []string) ([]*domain.Reservation, error) {
	if len(tripIDs) == 0 {
		return []*domain.Reservation{}, nil
	}
	query := `SELECT ` + reservationColumns + ` FROM reservations
		WHERE trip_id = ANY($1) AND status <> $2`
	return r.queryReservations(ctx, query, pq.Array(tripIDs), domain.ReservationStatusCancelled)
}

// UpdateStatus updates the status of a reservation.
func (r *ReservationRepository) UpdateStatus(ctx context.Context, id string, status domain.ReservationStatus) error {
	query := `UPDATE reservations SET status = $1, updated_at = $2 WHERE id = $3`

	result, err := r.q.ExecContext(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		return mapWriteError(err)
	}
	return requireRows(result)
}

// CompleteByTrip marks every confirmed reservation of a trip completed.
func (r *ReservationRepository) CompleteByTrip(ctx context.Context, tripID string) (int64, error) {
	query := `UPDATE reservations SET status = $1, updated_at = $2 WHERE trip_id = $3 AND status = $4`

	result, err := r.q.ExecContext(ctx, query,
		domain.ReservationStatusCompleted,
		time.Now().UTC(),
		tripID,
		domain.ReservationStatusConfirmed,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Ensure ReservationRepository implements repository.ReservationRepository.
var _ repository.ReservationRepository = (*ReservationRepository)(nil)
