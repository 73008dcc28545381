package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"carpool/internal/domain"
	"carpool/internal/repository"
)

var reservationRowColumns = []string{"id", "trip_id", "passenger_id", "number_of_seats", "status", "total_amount", "created_at", "updated_at"}

func newReservationMock(t *testing.T) (*ReservationRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewReservationRepository(db), mock
}

func TestReservationRepository_CreateMapsUniqueViolation(t *testing.T) {
	t.Parallel()
	repo, mock := newReservationMock(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO reservations")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "reservations_active_uq"})

	err := repo.Create(context.Background(), &domain.Reservation{ID: "res-1", TripID: "trip-1", PassengerID: "p", NumberOfSeats: 1})
	if !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestReservationRepository_GetActiveReturnsNilWhenAbsent(t *testing.T) {
	t.Parallel()
	repo, mock := newReservationMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE trip_id = $1 AND passenger_id = $2 AND status <> $3")).
		WithArgs("trip-1", "p", domain.ReservationStatusCancelled).
		WillReturnRows(sqlmock.NewRows(reservationRowColumns))

	res, err := repo.GetActive(context.Background(), "trip-1", "p")
	if err != nil || res != nil {
		t.Fatalf("expected nil, nil; got %v, %v", res, err)
	}
}

func TestReservationRepository_GetActiveFindsReservation(t *testing.T) {
	t.Parallel()
	repo, mock := newReservationMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("FROM reservations")).
		WillReturnRows(sqlmock.NewRows(reservationRowColumns).AddRow("res-1", "trip-1", "p", 2, "PAYMENT_FAILED", 20.0, now, now))

	res, err := repo.GetActive(context.Background(), "trip-1", "p")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != domain.ReservationStatusPaymentFailed || res.NumberOfSeats != 2 {
		t.Errorf("unexpected reservation: %+v", res)
	}
}

func TestReservationRepository_ListActiveByTripsSkipsEmptyInput(t *testing.T) {
	t.Parallel()
	repo, mock := newReservationMock(t)

	list, err := repo.ListActiveByTrips(context.Background(), nil)
	if err != nil || len(list) != 0 {
		t.Fatalf("expected empty result, got %v, %v", list, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("no query expected: %v", err)
	}
}

func TestReservationRepository_CompleteByTripReportsCount(t *testing.T) {
	t.Parallel()
	repo, mock := newReservationMock(t)

	mock.ExpectExec(regexp.QuoteMeta("WHERE trip_id = $3 AND status = $4")).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.CompleteByTrip(context.Background(), "trip-1")
	if err != nil || n != 3 {
		t.Fatalf("expected 3 completed, got %d (%v)", n, err)
	}
}

func TestReservationRepository_UpdateStatusMissing(t *testing.T) {
	t.Parallel()
	repo, mock := newReservationMock(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE reservations SET status")).WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.UpdateStatus(context.Background(), "nope", domain.ReservationStatusCancelled); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
