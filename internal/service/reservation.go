package service

import (
	"context"

	"carpool/internal/domain"
	"carpool/internal/repository"
)

// ReservationService exposes the reservation ledger for reading. Writes go
// through TripService and PaymentService inside their transactions.
type ReservationService struct {
	reservations repository.ReservationRepository
	trips        repository.TripRepository
	payments     repository.PaymentRepository
}

// NewReservationService creates a new ReservationService.
func NewReservationService(reservations repository.ReservationRepository, trips repository.TripRepository, payments repository.PaymentRepository) *ReservationService {
	return &ReservationService{reservations: reservations, trips: trips, payments: payments}
}

// GetReservation returns a reservation visible to userID: the passenger who
// made it or the driver of its trip.
func (s *ReservationService) GetReservation(ctx context.Context, reservationID, userID string) (*domain.Reservation, error) {
	if reservationID == "" {
		return nil, invalidArgument("reservation id is required")
	}

	res, err := s.reservations.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if res.PassengerID == userID {
		return res, nil
	}

	trip, err := s.trips.GetByID(ctx, res.TripID)
	if err != nil {
		return nil, err
	}
	if trip.DriverID != userID {
		return nil, ErrNotReservationParty
	}
	return res, nil
}

// ListTripReservations returns every reservation of a trip to its driver.
func (s *ReservationService) ListTripReservations(ctx context.Context, tripID, driverID string) ([]*domain.Reservation, error) {
	trip, err := s.trips.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if trip.DriverID != driverID {
		return nil, ErrNotTripDriver
	}
	return s.reservations.ListByTrip(ctx, tripID)
}

// ListPassengerReservations returns a passenger's reservations, newest first.
func (s *ReservationService) ListPassengerReservations(ctx context.Context, passengerID string) ([]*domain.Reservation, error) {
	if passengerID == "" {
		return nil, invalidArgument("passenger id is required")
	}
	return s.reservations.ListByPassenger(ctx, passengerID)
}

// GetReservationPayment returns the payment backing a reservation to
// either party of it.
func (s *ReservationService) GetReservationPayment(ctx context.Context, reservationID, userID string) (*domain.Payment, error) {
	res, err := s.GetReservation(ctx, reservationID, userID)
	if err != nil {
		return nil, err
	}
	return s.payments.GetByReservationID(ctx, res.ID)
}
