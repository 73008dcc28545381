package domain

import "time"

// User is a rider or driver account. Accounts are managed elsewhere; the
// trip engine only reads them.
type User struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	IsVerifiedDriver bool      `json:"is_verified_driver"`
	StripeCustomerID string    `json:"-"`
	CreatedAt        time.Time `json:"created_at"`
}

// Car belongs to a driver and bounds the seats a trip may offer.
type Car struct {
	ID            string `json:"id"`
	DriverID      string `json:"driver_id"`
	Make          string `json:"make"`
	Model         string `json:"model"`
	LicensePlate  string `json:"license_plate"`
	NumberOfSeats int    `json:"number_of_seats"`
}
