package repository

import "context"

// Repositories groups the repositories usable inside one transaction.
type Repositories struct {
	Trips        TripRepository
	Reservations ReservationRepository
	Payments     PaymentRepository
}

// Transactor runs fn inside a single database transaction. The transaction
// commits when fn returns nil and rolls back otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
