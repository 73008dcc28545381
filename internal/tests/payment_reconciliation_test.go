package tests

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"carpool/internal/domain"
	"carpool/internal/service"
)

// joinForPayment joins passenger-1 to a fresh trip and returns the payment.
func joinForPayment(t *testing.T, env *testEnv) *service.JoinTripResponse {
	t.Helper()
	env.seedTrip("trip-1", 3, domain.TripStatusPending)
	resp, err := env.trips.JoinTrip(context.Background(), service.JoinTripRequest{TripID: "trip-1", PassengerID: "passenger-1", Seats: 1})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if resp.Payment.IntentID == "" {
		t.Fatal("expected the join to create an intent")
	}
	return resp
}

// ──────────────────────────────────────────────
// 1. COMPLETE
// ──────────────────────────────────────────────

func TestCompletePayment_IsIdempotent(t *testing.T) {
	t.Parallel()
	env := newTestEnv()
	join := joinForPayment(t, env)
	intentID := join.Payment.IntentID
	env.psp.SetStatus(intentID, domain.PaymentIntentSucceeded)
	ctx := context.Background()

	first, err := env.payments.CompletePayment(ctx, intentID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first.Applied || first.Payment.Status != domain.PaymentStatusCompleted {
		t.Fatalf("expected applied completion, got %+v", first)
	}

	second, err := env.payments.CompletePayment(ctx, intentID)
	if err != nil {
		t.Fatalf("repeat completion must succeed: %v", err)
	}
	if second.Applied {
		t.Error("repeat completion must be a no-op")
	}

	if n := env.notifier.CountType(domain.NotificationPaymentSuccess); n != 1 {
		t.Errorf("expected exactly 1 PAYMENT_SUCCESS notification, got %d", n)
	}
	sent := env.notifier.Sent("passenger-1")
	if last := sent[len(sent)-1]; last.Content != "Your payment of 10.00 USD was successful." {
		t.Errorf("unexpected content %q", last.Content)
	}

	settled := 0
	for _, typ := range env.events.Types() {
		if typ == domain.TripEventPaymentSettled {
			settled++
		}
	}
	if settled != 1 {
		t.Errorf("expected 1 payment_settled event, got %d", settled)
	}

	res, err := env.reservations.GetReservation(ctx, join.Reservation.ID, "passenger-1")
	if err != nil {
		t.Fatalf("get reservation: %v", err)
	}
	if res.Status != domain.ReservationStatusConfirmed {
		t.Errorf("expected reservation CONFIRMED, got %s", res.Status)
	}
}

func TestCompletePayment_RequiresSucceededIntent(t *testing.T) {
	t.Parallel()
	env := newTestEnv()
	join := joinForPayment(t, env)

	_, err := env.payments.CompletePayment(context.Background(), join.Payment.IntentID)
	if !errors.Is(err, service.ErrIntentNotSucceeded) {
		t.Fatalf("expected ErrIntentNotSucceeded, got %v", err)
	}
	if p := env.store.Payment(join.Payment.ID); p.Status != domain.PaymentStatusPending {
		t.Errorf("payment moved to %s", p.Status)
	}
}

func TestCompletePayment_RefundedPaymentRejected(t *testing.T) {
	t.Parallel()
	env := newTestEnv()
	join := joinForPayment(t, env)
	env.psp.SetStatus(join.Payment.IntentID, domain.PaymentIntentSucceeded)

	p := env.store.Payment(join.Payment.ID)
	p.Status = domain.PaymentStatusRefunded
	env.store.AddPayment(p)

	_, err := env.payments.CompletePayment(context.Background(), join.Payment.IntentID)
	if !errors.Is(err, service.ErrPaymentRefunded) {
		t.Fatalf("expected ErrPaymentRefunded, got %v", err)
	}
}

func TestCompletePayment_CancelledReservationUntouched(t *testing.T) {
	t.Parallel()
	env := newTestEnv()
	join := joinForPayment(t, env)
	ctx := context.Background()

	if _, err := env.trips.LeaveTrip(ctx, service.LeaveTripRequest{TripID: "trip-1", PassengerID: "passenger-1"}); err != nil {
		t.Fatalf("leave: %v", err)
	}
	env.psp.SetStatus(join.Payment.IntentID, domain.PaymentIntentSucceeded)

	result, err := env.payments.CompletePayment(ctx, join.Payment.IntentID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Payment.Status != domain.PaymentStatusCompleted {
		t.Errorf("expected payment COMPLETED, got %s", result.Payment.Status)
	}
	res, _ := env.reservations.GetReservation(ctx, join.Reservation.ID, "passenger-1")
	if res.Status != domain.ReservationStatusCancelled {
		t.Errorf("cancelled reservation moved to %s", res.Status)
	}
	if ok, msg := env.seatInvariantHolds("trip-1"); !ok {
		t.Error(msg)
	}
}

// ──────────────────────────────────────────────
// 2. FAIL
// ──────────────────────────────────────────────

func TestFailPayment_KeepsSeatsAndIsIdempotent(t *testing.T) {
	t.Parallel()
	env := newTestEnv()
	join := joinForPayment(t, env)
	ctx := context.Background()

	first, err := env.payments.FailPayment(ctx, join.Payment.IntentID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first.Applied || first.Payment.Status != domain.PaymentStatusFailed {
		t.Fatalf("expected applied failure, got %+v", first)
	}

	res, _ := env.reservations.GetReservation(ctx, join.Reservation.ID, "passenger-1")
	if res.Status != domain.ReservationStatusPaymentFailed {
		t.Errorf("expected reservation PAYMENT_FAILED, got %s", res.Status)
	}
	if trip := env.store.Trip("trip-1"); trip.AvailableSeats != 2 {
		t.Errorf("failed payment must keep the seat, trip shows %d available", trip.AvailableSeats)
	}
	if ok, msg := env.seatInvariantHolds("trip-1"); !ok {
		t.Error(msg)
	}

	second, err := env.payments.FailPayment(ctx, join.Payment.IntentID)
	if err != nil || second.Applied {
		t.Errorf("repeat failure must be a no-op, got %+v (%v)", second, err)
	}
	if n := env.notifier.CountType(domain.NotificationPaymentFailure); n != 1 {
		t.Errorf("expected exactly 1 PAYMENT_FAILURE notification, got %d", n)
	}
	sent := env.notifier.Sent("passenger-1")
	if last := sent[len(sent)-1]; last.Content != "Your payment of 10.00 USD failed. Please update your payment method." {
		t.Errorf("unexpected content %q", last.Content)
	}
}

func TestFailPayment_ThenSuccessRecovers(t *testing.T) {
	t.Parallel()
	env := newTestEnv()
	join := joinForPayment(t, env)
	ctx := context.Background()

	if _, err := env.payments.FailPayment(ctx, join.Payment.IntentID); err != nil {
		t.Fatalf("fail: %v", err)
	}
	env.psp.SetStatus(join.Payment.IntentID, domain.PaymentIntentSucceeded)

	result, err := env.payments.CompletePayment(ctx, join.Payment.IntentID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !result.Applied || result.Payment.Status != domain.PaymentStatusCompleted {
		t.Fatalf("expected completion after failure, got %+v", result)
	}
	res, _ := env.reservations.GetReservation(ctx, join.Reservation.ID, "passenger-1")
	if res.Status != domain.ReservationStatusConfirmed {
		t.Errorf("expected reservation back to CONFIRMED, got %s", res.Status)
	}
}

func TestFailPayment_NeverDowngradesCompleted(t *testing.T) {
	t.Parallel()
	env := newTestEnv()
	join := joinForPayment(t, env)
	env.psp.SetStatus(join.Payment.IntentID, domain.PaymentIntentSucceeded)
	ctx := context.Background()

	if _, err := env.payments.CompletePayment(ctx, join.Payment.IntentID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	result, err := env.payments.FailPayment(ctx, join.Payment.IntentID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Applied || result.Payment.Status != domain.PaymentStatusCompleted {
		t.Errorf("completed payment must stay completed, got %+v", result)
	}
}

func TestReconcile_UnknownIntent(t *testing.T) {
	t.Parallel()
	env := newTestEnv()

	if _, err := env.payments.FailPayment(context.Background(), "pi_unknown"); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := env.payments.FailPayment(context.Background(), ""); !errors.Is(err, service.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

// ──────────────────────────────────────────────
// 3. INTENTS AND OWNERSHIP
// ──────────────────────────────────────────────

func TestCreateIntent_ReusesExistingIntent(t *testing.T) {
	t.Parallel()
	env := newTestEnv()
	join := joinForPayment(t, env)

	again, err := env.payments.RetryIntent(context.Background(), join.Payment.ID, "passenger-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.Payment.IntentID != join.Payment.IntentID || again.ClientSecret != join.ClientSecret {
		t.Errorf("expected the existing intent, got %+v", again)
	}
	if env.psp.CreateCallCount != 1 {
		t.Errorf("expected 1 processor create, got %d", env.psp.CreateCallCount)
	}
}

func TestRetryIntent_AfterFailureThenSuccess(t *testing.T) {
	t.Parallel()
	env := newTestEnv()
	join := joinForPayment(t, env)
	ctx := context.Background()

	if _, err := env.payments.FailPayment(ctx, join.Payment.IntentID); err != nil {
		t.Fatalf("fail: %v", err)
	}

	retry, err := env.payments.RetryIntent(ctx, join.Payment.ID, "passenger-1")
	if err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if retry.ClientSecret != join.ClientSecret || retry.Payment.IntentID != join.Payment.IntentID {
		t.Errorf("expected the failed intent to be handed out again, got %+v", retry)
	}
	if env.psp.CreateCallCount != 1 {
		t.Errorf("retry must not create a new intent, got %d creates", env.psp.CreateCallCount)
	}

	env.psp.SetStatus(join.Payment.IntentID, domain.PaymentIntentSucceeded)
	result, err := env.payments.CompletePayment(ctx, retry.Payment.IntentID)
	if err != nil || !result.Applied {
		t.Fatalf("expected completion after retry, got %+v (%v)", result, err)
	}
	if p := env.store.Payment(join.Payment.ID); p.Status != domain.PaymentStatusCompleted {
		t.Errorf("expected COMPLETED, got %s", p.Status)
	}
}

func TestRetryIntent_ConcurrentRequestsShareOneIntent(t *testing.T) {
	t.Parallel()
	env := newTestEnv()
	env.seedTrip("trip-1", 3, domain.TripStatusPending)
	ctx := context.Background()

	env.psp.CreateError = errors.New("processor timeout")
	join, err := env.trips.JoinTrip(ctx, service.JoinTripRequest{TripID: "trip-1", PassengerID: "passenger-1", Seats: 1})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if join.Payment.IntentID != "" {
		t.Fatal("expected the join to leave the payment without an intent")
	}
	env.psp.CreateError = nil
	env.psp.CreateDelay = 20 * time.Millisecond

	const callers = 2
	secrets := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := env.payments.RetryIntent(ctx, join.Payment.ID, "passenger-1")
			errs[i] = err
			if err == nil {
				secrets[i] = res.ClientSecret
			}
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}

	recorded := env.store.Payment(join.Payment.ID).IntentID
	if recorded == "" {
		t.Fatal("expected an intent to be recorded")
	}
	for i, secret := range secrets {
		if secret != recorded+"_secret" {
			t.Errorf("caller %d got %s, but only %s is reconciled", i, secret, recorded)
		}
	}

	env.psp.SetStatus(recorded, domain.PaymentIntentSucceeded)
	if result, err := env.payments.CompletePayment(ctx, recorded); err != nil || !result.Applied {
		t.Errorf("expected the handed out intent to settle the payment, got %+v (%v)", result, err)
	}
}

func TestCreateIntent_Rejections(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("other user", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv()
		join := joinForPayment(t, env)
		if _, err := env.payments.RetryIntent(ctx, join.Payment.ID, "passenger-2"); !errors.Is(err, service.ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("settled payment", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv()
		join := joinForPayment(t, env)
		env.psp.SetStatus(join.Payment.IntentID, domain.PaymentIntentSucceeded)
		if _, err := env.payments.CompletePayment(ctx, join.Payment.IntentID); err != nil {
			t.Fatalf("complete: %v", err)
		}
		if _, err := env.payments.RetryIntent(ctx, join.Payment.ID, "passenger-1"); !errors.Is(err, service.ErrPaymentNotPending) {
			t.Fatalf("expected ErrPaymentNotPending, got %v", err)
		}
	})

	t.Run("canceled intent", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv()
		join := joinForPayment(t, env)
		if _, err := env.payments.FailPayment(ctx, join.Payment.IntentID); err != nil {
			t.Fatalf("fail: %v", err)
		}
		env.psp.SetStatus(join.Payment.IntentID, domain.PaymentIntentCanceled)
		if _, err := env.payments.RetryIntent(ctx, join.Payment.ID, "passenger-1"); !errors.Is(err, service.ErrIntentCanceled) {
			t.Fatalf("expected ErrIntentCanceled, got %v", err)
		}
	})

	t.Run("no processor", func(t *testing.T) {
		t.Parallel()
		store := NewMockStore()
		store.AddPayment(&domain.Payment{ID: "pay-1", UserID: "passenger-1", Status: domain.PaymentStatusPending, CreatedAt: time.Now()})
		payments := service.NewPaymentService(service.PaymentServiceDeps{Tx: store, Payments: store.Repositories().Payments})
		if _, err := payments.CreateIntent(ctx, "pay-1"); !errors.Is(err, service.ErrProcessorUnavailable) {
			t.Fatalf("expected ErrProcessorUnavailable, got %v", err)
		}
	})
}

func TestListUserPayments(t *testing.T) {
	t.Parallel()
	env := newTestEnv()
	join := joinForPayment(t, env)

	list, err := env.payments.ListUserPayments(context.Background(), "passenger-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 1 || list[0].ID != join.Payment.ID {
		t.Errorf("expected the join payment, got %+v", list)
	}
}
