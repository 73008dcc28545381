package domain

import "time"

// ReservationStatus represents the current status of a reservation.
type ReservationStatus string

const (
	ReservationStatusPending       ReservationStatus = "PENDING"
	ReservationStatusConfirmed     ReservationStatus = "CONFIRMED"
	ReservationStatusCancelled     ReservationStatus = "CANCELLED"
	ReservationStatusCompleted     ReservationStatus = "COMPLETED"
	ReservationStatusPaymentFailed ReservationStatus = "PAYMENT_FAILED"
)

// Active reports whether the reservation still holds seats on its trip.
// A failed payment does not release the seats.
func (s ReservationStatus) Active() bool {
	return s != ReservationStatusCancelled
}

// Reservation is a passenger's hold on seats of a trip.
type Reservation struct {
	ID            string            `json:"id"`
	TripID        string            `json:"trip_id"`
	PassengerID   string            `json:"passenger_id"`
	NumberOfSeats int               `json:"number_of_seats"`
	Status        ReservationStatus `json:"status"`
	TotalAmount   float64           `json:"total_amount"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}
