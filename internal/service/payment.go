package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"carpool/internal/domain"
	"carpool/internal/logging"
	"carpool/internal/observability"
	"carpool/internal/repository"
)

// PaymentServiceDeps lists the collaborators of PaymentService. Processor,
// Notifier and Events are optional.
type PaymentServiceDeps struct {
	Tx        repository.Transactor
	Payments  repository.PaymentRepository
	Identity  IdentityProvider
	Processor PaymentProcessor
	Notifier  Notifier
	Events    EventPublisher
	Logger    *slog.Logger
}

// PaymentService creates processor intents for reservation payments and
// applies processor outcomes to payments and their reservations.
type PaymentService struct {
	tx        repository.Transactor
	payments  repository.PaymentRepository
	identity  IdentityProvider
	processor PaymentProcessor
	notifier  Notifier
	events    EventPublisher
	logger    *slog.Logger
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(deps PaymentServiceDeps) *PaymentService {
	s := &PaymentService{
		tx:        deps.Tx,
		payments:  deps.Payments,
		identity:  deps.Identity,
		processor: deps.Processor,
		notifier:  deps.Notifier,
		events:    deps.Events,
		logger:    deps.Logger,
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	return s
}

// newPendingPayment builds the payment opened alongside a reservation.
func newPendingPayment(res *domain.Reservation, currency string, now time.Time) *domain.Payment {
	return &domain.Payment{
		ID:            uuid.New().String(),
		ReservationID: res.ID,
		UserID:        res.PassengerID,
		Amount:        res.TotalAmount,
		Currency:      currency,
		PaymentMethod: domain.PaymentMethodStripe,
		Status:        domain.PaymentStatusPending,
		PaymentDate:   now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// CreateIntentResult carries a payment and the secret the client needs to
// confirm its intent.
type CreateIntentResult struct {
	Payment      *domain.Payment
	ClientSecret string
}

// CreateIntent creates a processor intent for a pending payment. Calling it
// again for a payment that already has an intent returns that intent, and
// so does a failed payment whose intent can still be confirmed.
func (s *PaymentService) CreateIntent(ctx context.Context, paymentID string) (*CreateIntentResult, error) {
	if s.processor == nil {
		return nil, ErrProcessorUnavailable
	}

	payment, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	switch {
	case payment.Status == domain.PaymentStatusPending:
	case payment.Status == domain.PaymentStatusFailed && payment.IntentID != "":
	default:
		return nil, ErrPaymentNotPending
	}

	if payment.IntentID != "" {
		return s.existingIntent(ctx, payment)
	}

	var customerID string
	if s.identity != nil {
		user, err := s.identity.GetUser(ctx, payment.UserID)
		if err != nil {
			return nil, err
		}
		customerID = user.StripeCustomerID
	}

	intent, err := s.processor.CreatePaymentIntent(ctx,
		domain.ToMinorUnits(payment.Amount),
		payment.Currency,
		customerID,
		map[string]string{
			"payment_id":     payment.ID,
			"reservation_id": payment.ReservationID,
		},
	)
	if err != nil {
		return nil, err
	}

	if err := s.payments.SetIntent(ctx, payment.ID, intent.ID); err != nil {
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, fmt.Errorf("record intent %s: %w", intent.ID, err)
		}
		// A concurrent request recorded its intent first. Only the recorded
		// intent is reconciled, so it is the one handed out.
		s.logger.Warn("payment intent superseded", "payment_id", payment.ID, "intent_id", intent.ID)
		recorded, err := s.payments.GetByID(ctx, payment.ID)
		if err != nil {
			return nil, err
		}
		return s.existingIntent(ctx, recorded)
	}
	payment.IntentID = intent.ID

	s.logger.Info("payment intent created", "payment_id", payment.ID, "intent_id", intent.ID, "amount", payment.Amount)
	return &CreateIntentResult{Payment: payment, ClientSecret: intent.ClientSecret}, nil
}

// existingIntent returns the client secret of the payment's recorded intent.
func (s *PaymentService) existingIntent(ctx context.Context, payment *domain.Payment) (*CreateIntentResult, error) {
	intent, err := s.processor.RetrievePaymentIntent(ctx, payment.IntentID)
	if err != nil {
		return nil, err
	}
	if intent.Status == domain.PaymentIntentCanceled {
		return nil, ErrIntentCanceled
	}
	return &CreateIntentResult{Payment: payment, ClientSecret: intent.ClientSecret}, nil
}

// RetryIntent is CreateIntent for the paying user.
func (s *PaymentService) RetryIntent(ctx context.Context, paymentID, userID string) (*CreateIntentResult, error) {
	if _, err := s.GetPaymentForUser(ctx, paymentID, userID); err != nil {
		return nil, err
	}
	return s.CreateIntent(ctx, paymentID)
}

// GetPaymentForUser retrieves a payment owned by userID.
func (s *PaymentService) GetPaymentForUser(ctx context.Context, paymentID, userID string) (*domain.Payment, error) {
	if paymentID == "" {
		return nil, invalidArgument("payment id is required")
	}
	payment, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.UserID != userID {
		return nil, ErrNotPaymentOwner
	}
	return payment, nil
}

// ListUserPayments retrieves a user's payments, newest first.
func (s *PaymentService) ListUserPayments(ctx context.Context, userID string) ([]*domain.Payment, error) {
	return s.payments.ListByUser(ctx, userID)
}

// ReconcileResult reports the payment after reconciliation and whether
// this call changed it.
type ReconcileResult struct {
	Payment *domain.Payment
	Applied bool
}

// CompletePayment records a processor success for the intent. Repeated
// calls are no-ops and do not notify again.
func (s *PaymentService) CompletePayment(ctx context.Context, intentID string) (*ReconcileResult, error) {
	if intentID == "" {
		return nil, invalidArgument("payment intent id is required")
	}

	if s.processor != nil {
		intent, err := s.processor.RetrievePaymentIntent(ctx, intentID)
		if err != nil {
			return nil, err
		}
		if intent.Status != domain.PaymentIntentSucceeded {
			return nil, fmt.Errorf("%w (status %s)", ErrIntentNotSucceeded, intent.Status)
		}
	}

	result := &ReconcileResult{}
	var settled *domain.Reservation
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		payment, err := repos.Payments.GetByIntentID(ctx, intentID)
		if err != nil {
			return err
		}
		result.Payment = payment

		switch payment.Status {
		case domain.PaymentStatusCompleted:
			return nil
		case domain.PaymentStatusRefunded:
			return ErrPaymentRefunded
		}

		if err := repos.Payments.UpdateStatus(ctx, payment.ID, domain.PaymentStatusCompleted); err != nil {
			return err
		}
		payment.Status = domain.PaymentStatusCompleted
		result.Applied = true

		settled, err = s.settleReservation(ctx, repos, payment.ReservationID, domain.ReservationStatusConfirmed)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.afterReconcile(ctx, result, "completed", settled)
	return result, nil
}

// FailPayment records a processor failure for the intent. The reservation
// keeps its seats. A completed or refunded payment is never moved back.
func (s *PaymentService) FailPayment(ctx context.Context, intentID string) (*ReconcileResult, error) {
	if intentID == "" {
		return nil, invalidArgument("payment intent id is required")
	}

	result := &ReconcileResult{}
	var settled *domain.Reservation
	err := s.tx.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		payment, err := repos.Payments.GetByIntentID(ctx, intentID)
		if err != nil {
			return err
		}
		result.Payment = payment

		switch payment.Status {
		case domain.PaymentStatusFailed:
			return nil
		case domain.PaymentStatusCompleted, domain.PaymentStatusRefunded:
			s.logger.Warn("ignoring failure for settled payment", "payment_id", payment.ID, "status", payment.Status)
			return nil
		}

		if err := repos.Payments.UpdateStatus(ctx, payment.ID, domain.PaymentStatusFailed); err != nil {
			return err
		}
		payment.Status = domain.PaymentStatusFailed
		result.Applied = true

		settled, err = s.settleReservation(ctx, repos, payment.ReservationID, domain.ReservationStatusPaymentFailed)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.afterReconcile(ctx, result, "failed", settled)
	return result, nil
}

// settleReservation moves a live reservation to target. Cancelled and
// completed reservations are left alone. It returns the reservation as
// stored afterwards, or nil if it no longer exists.
func (s *PaymentService) settleReservation(ctx context.Context, repos repository.Repositories, reservationID string, target domain.ReservationStatus) (*domain.Reservation, error) {
	res, err := repos.Reservations.GetByID(ctx, reservationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("payment references missing reservation", "reservation_id", reservationID)
			return nil, nil
		}
		return nil, err
	}

	switch res.Status {
	case domain.ReservationStatusCancelled, domain.ReservationStatusCompleted, target:
		return res, nil
	}

	if err := repos.Reservations.UpdateStatus(ctx, res.ID, target); err != nil {
		return nil, err
	}
	res.Status = target
	return res, nil
}

func (s *PaymentService) afterReconcile(ctx context.Context, result *ReconcileResult, outcome string, res *domain.Reservation) {
	payment := result.Payment
	observability.PaymentsReconciled.WithLabelValues(outcome, strconv.FormatBool(result.Applied)).Inc()

	if !result.Applied {
		s.logger.Info("payment reconciliation was a no-op", "payment_id", payment.ID, "status", payment.Status)
		return
	}
	s.logger.Info("payment reconciled",
		"payment_id", payment.ID,
		"intent_id", payment.IntentID,
		"status", payment.Status,
	)
	if res != nil {
		s.logger.Info("reservation settled", "reservation_id", res.ID, "status", res.Status)
	}

	req := NotificationRequest{UserID: payment.UserID, RelatedEntityID: payment.ID}
	if payment.Status == domain.PaymentStatusCompleted {
		req.Type = domain.NotificationPaymentSuccess
		req.Content = paymentSucceededContent(payment)
	} else {
		req.Type = domain.NotificationPaymentFailure
		req.Content = paymentFailedContent(payment)
	}
	if s.notifier != nil {
		if _, err := s.notifier.Notify(ctx, req); err != nil {
			s.logger.Warn("notification failed", "user_id", req.UserID, "type", req.Type, "error", err)
		}
	}

	if s.events != nil && res != nil {
		err := s.events.Publish(ctx, domain.TripEvent{
			Type:          domain.TripEventPaymentSettled,
			TripID:        res.TripID,
			ActorID:       payment.UserID,
			ReservationID: payment.ReservationID,
			Status:        string(payment.Status),
			OccurredAt:    time.Now().UTC(),
		})
		if err != nil {
			s.logger.Warn("payment event publish failed", "payment_id", payment.ID, "error", err)
		}
	}
}
