package service

import (
	"errors"
	"fmt"

	"carpool/internal/domain"
	"carpool/internal/repository"
)

// Error kinds. Every error returned by the services wraps exactly one of
// these; handlers map them to transport codes with errors.Is.
var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = repository.ErrNotFound

	// ErrForbidden is returned when the caller lacks the required role or ownership.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidArgument is returned for bad input or capacity violations.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidState is returned when an operation is not allowed in the
	// current lifecycle state.
	ErrInvalidState = errors.New("invalid state")

	// ErrConflict is returned on duplicate reservations and on lost races.
	// Conflicts caused by concurrent writers are safe to retry.
	ErrConflict = errors.New("conflict")
)

var (
	// ErrCarNotOwned is returned when the car is missing or belongs to another driver.
	ErrCarNotOwned = fmt.Errorf("%w: car not found or does not belong to the driver", ErrNotFound)

	// ErrDriverNotVerified is returned when an unverified user tries to publish a trip.
	ErrDriverNotVerified = fmt.Errorf("%w: only verified drivers can create trips", ErrForbidden)

	// ErrNotTripDriver is returned when someone other than the driver manages a trip.
	ErrNotTripDriver = fmt.Errorf("%w: only the driver of this trip can manage it", ErrForbidden)

	// ErrNotReservationParty is returned when a caller reads a reservation
	// that is neither theirs nor on their trip.
	ErrNotReservationParty = fmt.Errorf("%w: reservation belongs to another user", ErrForbidden)

	// ErrNotPaymentOwner is returned when a caller accesses another user's payment.
	ErrNotPaymentOwner = fmt.Errorf("%w: payment belongs to another user", ErrForbidden)

	// ErrDuplicateReservation is returned when a passenger joins a trip twice.
	ErrDuplicateReservation = fmt.Errorf("%w: passenger already has a reservation for this trip", ErrConflict)

	// ErrConcurrentModification is returned when another writer changed the trip first.
	ErrConcurrentModification = fmt.Errorf("%w: trip was modified concurrently, retry", ErrConflict)

	// ErrTripBusy is returned when the trip lock is held by another request.
	ErrTripBusy = fmt.Errorf("%w: trip is being modified, retry", ErrConflict)

	// ErrNoReservation is returned when a passenger leaves a trip they never joined.
	ErrNoReservation = fmt.Errorf("%w: passenger does not have a reservation for this trip", ErrInvalidArgument)

	// ErrInvalidSeatCount is returned when fewer than one seat is requested.
	ErrInvalidSeatCount = fmt.Errorf("%w: number of seats must be at least 1", ErrInvalidArgument)

	// ErrTripNotEditable is returned when a non-pending trip is edited or removed.
	ErrTripNotEditable = fmt.Errorf("%w: only pending trips can be modified", ErrInvalidState)

	// ErrTripHasReservations is returned when removing a trip that has ever
	// been booked. Its reservations and payments are kept as records.
	ErrTripHasReservations = fmt.Errorf("%w: trip has reservations", ErrInvalidState)

	// ErrPaymentRefunded is returned when a refunded payment receives a success.
	ErrPaymentRefunded = fmt.Errorf("%w: payment has been refunded", ErrInvalidState)

	// ErrIntentNotSucceeded is returned when the processor reports the intent
	// has not succeeded.
	ErrIntentNotSucceeded = fmt.Errorf("%w: payment intent has not succeeded", ErrInvalidState)

	// ErrPaymentNotPending is returned when creating an intent for a settled payment.
	ErrPaymentNotPending = fmt.Errorf("%w: payment is not pending", ErrInvalidState)

	// ErrIntentCanceled is returned when the recorded intent can no longer be confirmed.
	ErrIntentCanceled = fmt.Errorf("%w: payment intent was canceled", ErrInvalidState)

	// ErrProcessorUnavailable is returned when no payment processor is configured.
	ErrProcessorUnavailable = errors.New("payment processor not configured")
)

// TransitionError is returned when an explicit status change is not in the
// transition table.
type TransitionError struct {
	From domain.TripStatus
	To   domain.TripStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}

// Unwrap makes TransitionError match ErrInvalidState.
func (e *TransitionError) Unwrap() error {
	return ErrInvalidState
}

// invalidArgument wraps ErrInvalidArgument with a formatted message.
func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// invalidState wraps ErrInvalidState with a formatted message.
func invalidState(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

// IsRetryable reports whether err came from losing a race and the call can
// be repeated unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) || errors.Is(err, ErrTripBusy)
}
