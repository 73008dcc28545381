package domain

import "testing"

func TestCanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to TripStatus
		want     bool
	}{
		{TripStatusPending, TripStatusConfirmed, true},
		{TripStatusPending, TripStatusCancelled, true},
		{TripStatusPending, TripStatusInProgress, false},
		{TripStatusConfirmed, TripStatusInProgress, true},
		{TripStatusConfirmed, TripStatusFull, false},
		{TripStatusFull, TripStatusInProgress, true},
		{TripStatusFull, TripStatusConfirmed, false},
		{TripStatusInProgress, TripStatusCompleted, true},
		{TripStatusInProgress, TripStatusPending, false},
		{TripStatusCompleted, TripStatusCancelled, false},
		{TripStatusCancelled, TripStatusPending, false},
		{TripStatus("BOGUS"), TripStatusConfirmed, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTripStatusPredicates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status                              TripStatus
		valid, joinable, leavable, terminal bool
	}{
		{TripStatusPending, true, true, true, false},
		{TripStatusConfirmed, true, true, true, false},
		{TripStatusFull, true, false, true, false},
		{TripStatusInProgress, true, false, false, false},
		{TripStatusCompleted, true, false, false, true},
		{TripStatusCancelled, true, false, false, true},
		{TripStatus("pending"), false, false, false, false},
	}

	for _, tt := range tests {
		if got := tt.status.Valid(); got != tt.valid {
			t.Errorf("%s.Valid() = %v", tt.status, got)
		}
		if got := tt.status.Joinable(); got != tt.joinable {
			t.Errorf("%s.Joinable() = %v", tt.status, got)
		}
		if got := tt.status.Leavable(); got != tt.leavable {
			t.Errorf("%s.Leavable() = %v", tt.status, got)
		}
		if got := tt.status.Terminal(); got != tt.terminal {
			t.Errorf("%s.Terminal() = %v", tt.status, got)
		}
	}
}

func TestTripPassengers(t *testing.T) {
	t.Parallel()

	trip := &Trip{TotalSeats: 4, AvailableSeats: 1}
	trip.AddPassenger("a")
	trip.AddPassenger("b")
	trip.AddPassenger("a")

	if len(trip.PassengerIDs) != 2 {
		t.Fatalf("expected 2 passengers, got %v", trip.PassengerIDs)
	}
	if !trip.HasPassenger("b") {
		t.Error("expected b to be a passenger")
	}

	trip.RemovePassenger("a")
	if trip.HasPassenger("a") || len(trip.PassengerIDs) != 1 {
		t.Errorf("expected only b, got %v", trip.PassengerIDs)
	}
	trip.RemovePassenger("missing")
	if len(trip.PassengerIDs) != 1 {
		t.Errorf("removing an absent passenger changed the list: %v", trip.PassengerIDs)
	}

	if got := trip.ReservedSeats(); got != 3 {
		t.Errorf("ReservedSeats() = %d, want 3", got)
	}
}

func TestReservationStatusActive(t *testing.T) {
	t.Parallel()

	for _, s := range []ReservationStatus{ReservationStatusPending, ReservationStatusConfirmed, ReservationStatusCompleted, ReservationStatusPaymentFailed} {
		if !s.Active() {
			t.Errorf("%s should be active", s)
		}
	}
	if ReservationStatusCancelled.Active() {
		t.Error("CANCELLED should not be active")
	}
}

func TestMoney(t *testing.T) {
	t.Parallel()

	tests := []struct {
		amount float64
		minor  int64
		round  float64
	}{
		{10, 1000, 10},
		{12.3456, 1235, 12.35},
		{0.1 + 0.2, 30, 0.3},
		{19.999, 2000, 20},
	}

	for _, tt := range tests {
		if got := ToMinorUnits(tt.amount); got != tt.minor {
			t.Errorf("ToMinorUnits(%v) = %d, want %d", tt.amount, got, tt.minor)
		}
		if got := RoundMoney(tt.amount); got != tt.round {
			t.Errorf("RoundMoney(%v) = %v, want %v", tt.amount, got, tt.round)
		}
	}
}
