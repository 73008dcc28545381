package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"carpool/internal/domain"
	"carpool/internal/observability"
	"carpool/internal/repository"
)

// JoinTripRequest contains the parameters for reserving seats on a trip.
type JoinTripRequest struct {
	TripID      string
	PassengerID string
	Seats       int
}

// JoinTripResponse contains the result of a successful join.
type JoinTripResponse struct {
	Trip        *domain.Trip
	Reservation *domain.Reservation
	Payment     *domain.Payment
	// ClientSecret lets the passenger confirm the payment intent. Empty when
	// the intent could not be created; the payment then stays PENDING and
	// the intent can be requested again.
	ClientSecret string
}

// JoinTrip reserves seats for a passenger and opens a pending payment for
// them. The trip row is locked for the duration of the check-and-write.
func (s *TripService) JoinTrip(ctx context.Context, req JoinTripRequest) (resp *JoinTripResponse, err error) {
	defer func() { observability.ReservationOutcomes.WithLabelValues("join", outcomeOf(err)).Inc() }()

	if req.TripID == "" {
		return nil, invalidArgument("trip id is required")
	}
	if req.PassengerID == "" {
		return nil, invalidArgument("passenger id is required")
	}
	if req.Seats < 1 {
		return nil, ErrInvalidSeatCount
	}

	if s.identity != nil {
		if _, err := s.identity.GetUser(ctx, req.PassengerID); err != nil {
			return nil, err
		}
	}

	unlock, err := s.lockTrip(ctx, req.TripID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	resp = &JoinTripResponse{}
	err = s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		trip, err := repos.Trips.GetByIDForUpdate(ctx, req.TripID)
		if err != nil {
			return err
		}
		if !trip.Status.Joinable() {
			return invalidState("trip is %s and cannot be joined", trip.Status)
		}
		if req.Seats > trip.AvailableSeats {
			return invalidArgument("not enough seats available, only %d seats left", trip.AvailableSeats)
		}

		existing, err := repos.Reservations.GetActive(ctx, trip.ID, req.PassengerID)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrDuplicateReservation
		}

		now := time.Now().UTC()
		reservation := &domain.Reservation{
			ID:            uuid.New().String(),
			TripID:        trip.ID,
			PassengerID:   req.PassengerID,
			NumberOfSeats: req.Seats,
			Status:        domain.ReservationStatusConfirmed,
			TotalAmount:   domain.RoundMoney(trip.PricePerSeat * float64(req.Seats)),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := repos.Reservations.Create(ctx, reservation); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrDuplicateReservation
			}
			return err
		}

		payment := newPendingPayment(reservation, s.currency, now)
		if err := repos.Payments.Create(ctx, payment); err != nil {
			return err
		}

		trip.AvailableSeats -= req.Seats
		if trip.AvailableSeats == 0 {
			trip.Status = domain.TripStatusFull
		}
		trip.AddPassenger(req.PassengerID)
		if err := s.saveTrip(ctx, repos, trip); err != nil {
			return err
		}

		resp.Trip = trip
		resp.Reservation = reservation
		resp.Payment = payment
		return nil
	})
	if err != nil {
		return nil, err
	}

	trip := resp.Trip
	observability.SeatsReserved.Add(float64(req.Seats))
	s.logger.Info("passenger joined trip",
		"trip_id", trip.ID,
		"passenger_id", req.PassengerID,
		"seats", req.Seats,
		"available_seats", trip.AvailableSeats,
	)
	s.refresh(ctx, trip)

	if s.payments != nil {
		intent, err := s.payments.CreateIntent(ctx, resp.Payment.ID)
		if err != nil {
			s.logger.Warn("payment intent creation failed", "payment_id", resp.Payment.ID, "error", err)
		} else {
			resp.Payment = intent.Payment
			resp.ClientSecret = intent.ClientSecret
		}
	}

	s.notify(ctx, NotificationRequest{
		UserID:          req.PassengerID,
		Type:            domain.NotificationTripJoined,
		Content:         tripJoinedContent(trip, req.Seats),
		RelatedEntityID: trip.ID,
	})
	s.notify(ctx, NotificationRequest{
		UserID:          trip.DriverID,
		Type:            domain.NotificationPassengerJoined,
		Content:         passengerJoinedContent(trip, req.Seats),
		RelatedEntityID: trip.ID,
	})
	s.publish(ctx, domain.TripEvent{
		Type:          domain.TripEventJoined,
		TripID:        trip.ID,
		ActorID:       req.PassengerID,
		ReservationID: resp.Reservation.ID,
		Seats:         req.Seats,
		Status:        string(trip.Status),
	})

	return resp, nil
}

// LeaveTripRequest contains the parameters for cancelling a reservation.
type LeaveTripRequest struct {
	TripID      string
	PassengerID string
}

// LeaveTrip cancels the passenger's active reservation and returns its
// seats to the trip. A FULL trip becomes CONFIRMED again.
func (s *TripService) LeaveTrip(ctx context.Context, req LeaveTripRequest) (trip *domain.Trip, err error) {
	defer func() { observability.ReservationOutcomes.WithLabelValues("leave", outcomeOf(err)).Inc() }()

	if req.TripID == "" {
		return nil, invalidArgument("trip id is required")
	}
	if req.PassengerID == "" {
		return nil, invalidArgument("passenger id is required")
	}

	unlock, err := s.lockTrip(ctx, req.TripID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var released int
	err = s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		trip, err = repos.Trips.GetByIDForUpdate(ctx, req.TripID)
		if err != nil {
			return err
		}
		if !trip.Status.Leavable() {
			return invalidState("trip is %s and cannot be left", trip.Status)
		}

		reservation, err := repos.Reservations.GetActive(ctx, trip.ID, req.PassengerID)
		if err != nil {
			return err
		}
		if reservation == nil {
			return ErrNoReservation
		}

		if err := repos.Reservations.UpdateStatus(ctx, reservation.ID, domain.ReservationStatusCancelled); err != nil {
			return err
		}

		released = reservation.NumberOfSeats
		trip.AvailableSeats += released
		if trip.Status == domain.TripStatusFull {
			trip.Status = domain.TripStatusConfirmed
		}
		trip.RemovePassenger(req.PassengerID)
		return s.saveTrip(ctx, repos, trip)
	})
	if err != nil {
		return nil, err
	}

	observability.SeatsReserved.Sub(float64(released))
	s.logger.Info("passenger left trip",
		"trip_id", trip.ID,
		"passenger_id", req.PassengerID,
		"seats", released,
		"available_seats", trip.AvailableSeats,
	)
	s.refresh(ctx, trip)

	s.notify(ctx, NotificationRequest{
		UserID:          req.PassengerID,
		Type:            domain.NotificationTripLeft,
		Content:         tripLeftContent(trip),
		RelatedEntityID: trip.ID,
	})
	s.notify(ctx, NotificationRequest{
		UserID:          trip.DriverID,
		Type:            domain.NotificationPassengerLeft,
		Content:         passengerLeftContent(trip),
		RelatedEntityID: trip.ID,
	})
	s.publish(ctx, domain.TripEvent{
		Type:    domain.TripEventLeft,
		TripID:  trip.ID,
		ActorID: req.PassengerID,
		Seats:   released,
		Status:  string(trip.Status),
	})

	return trip, nil
}

// outcomeOf labels an error for the reservation metrics.
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrDuplicateReservation):
		return "duplicate"
	case IsRetryable(err):
		return "conflict"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
