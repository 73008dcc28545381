package domain

import "time"

// TripStatus represents the current status of a trip.
type TripStatus string

const (
	TripStatusPending    TripStatus = "PENDING"
	TripStatusConfirmed  TripStatus = "CONFIRMED"
	TripStatusFull       TripStatus = "FULL"
	TripStatusInProgress TripStatus = "IN_PROGRESS"
	TripStatusCompleted  TripStatus = "COMPLETED"
	TripStatusCancelled  TripStatus = "CANCELLED"
)

// AllowedTransitions lists the statuses a trip may move to from each status.
// FULL is entered and left only through seat accounting on join/leave.
var AllowedTransitions = map[TripStatus][]TripStatus{
	TripStatusPending:    {TripStatusConfirmed, TripStatusCancelled},
	TripStatusConfirmed:  {TripStatusInProgress, TripStatusCancelled},
	TripStatusFull:       {TripStatusInProgress, TripStatusCancelled},
	TripStatusInProgress: {TripStatusCompleted, TripStatusCancelled},
	TripStatusCompleted:  {},
	TripStatusCancelled:  {},
}

// CanTransition reports whether an explicit status change from -> to is legal.
func CanTransition(from, to TripStatus) bool {
	for _, next := range AllowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known trip status.
func (s TripStatus) Valid() bool {
	_, ok := AllowedTransitions[s]
	return ok
}

// Joinable reports whether passengers may join a trip in this status.
func (s TripStatus) Joinable() bool {
	return s == TripStatusPending || s == TripStatusConfirmed
}

// Leavable reports whether passengers may leave a trip in this status.
func (s TripStatus) Leavable() bool {
	return s == TripStatusPending || s == TripStatusConfirmed || s == TripStatusFull
}

// Terminal reports whether no further transitions are possible.
func (s TripStatus) Terminal() bool {
	return s == TripStatusCompleted || s == TripStatusCancelled
}

// SearchableStatuses are the statuses returned by trip search.
var SearchableStatuses = []TripStatus{TripStatusPending, TripStatusConfirmed}

// PopularStatuses are the statuses considered when ranking popular trips.
var PopularStatuses = []TripStatus{TripStatusPending, TripStatusConfirmed, TripStatusFull}

// Trip is a driver-published offer of seats on a route at a date and time.
type Trip struct {
	ID                string     `json:"id"`
	DriverID          string     `json:"driver_id"`
	CarID             string     `json:"car_id"`
	DepartureLocation string     `json:"departure_location"`
	ArrivalLocation   string     `json:"arrival_location"`
	DepartureDate     string     `json:"departure_date"` // YYYY-MM-DD
	DepartureTime     string     `json:"departure_time"` // HH:MM
	TotalSeats        int        `json:"total_seats"`
	AvailableSeats    int        `json:"available_seats"`
	PricePerSeat      float64    `json:"price_per_seat"`
	Description       string     `json:"description,omitempty"`
	Status            TripStatus `json:"status"`
	PassengerIDs      []string   `json:"passenger_ids"`
	Version           int        `json:"version"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// ReservedSeats returns the number of seats held by active reservations.
func (t *Trip) ReservedSeats() int {
	return t.TotalSeats - t.AvailableSeats
}

// HasPassenger reports whether userID is in the passenger list.
func (t *Trip) HasPassenger(userID string) bool {
	for _, id := range t.PassengerIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// AddPassenger appends userID to the passenger list if absent.
func (t *Trip) AddPassenger(userID string) {
	if !t.HasPassenger(userID) {
		t.PassengerIDs = append(t.PassengerIDs, userID)
	}
}

// RemovePassenger drops userID from the passenger list.
func (t *Trip) RemovePassenger(userID string) {
	kept := t.PassengerIDs[:0]
	for _, id := range t.PassengerIDs {
		if id != userID {
			kept = append(kept, id)
		}
	}
	t.PassengerIDs = kept
}

// TripFilter narrows trip listings. Empty fields match everything.
type TripFilter struct {
	Status      TripStatus
	DriverID    string
	PassengerID string
}

// TripSearch is an exact-match search over open trips.
type TripSearch struct {
	DepartureLocation string
	ArrivalLocation   string
	DepartureDate     string
	MinSeats          int
	Statuses          []TripStatus
}
