package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"carpool/internal/app"
	"carpool/internal/domain"
	"carpool/internal/handler"
	"carpool/internal/logging"
	"carpool/internal/middleware"
	"carpool/internal/payments"
	"carpool/internal/realtime"
	"carpool/internal/service"
)

var testSecret = []byte("test-secret")

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeParser accepts webhooks whose signature names a prepared event.
type fakeParser struct {
	events map[string]*payments.WebhookEvent
}

func (p *fakeParser) ParseWebhook(payload []byte, signature string) (*payments.WebhookEvent, error) {
	event, ok := p.events[signature]
	if !ok {
		return nil, errors.New("signature mismatch")
	}
	return event, nil
}

// memoryDedup is an in-memory EventDeduplicator.
type memoryDedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (d *memoryDedup) MarkEventProcessed(ctx context.Context, eventID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[eventID] {
		return false, nil
	}
	d.seen[eventID] = true
	return true, nil
}

func (d *memoryDedup) ForgetEvent(ctx context.Context, eventID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, eventID)
	return nil
}

type httpEnv struct {
	*testEnv
	router *gin.Engine
	parser *fakeParser
}

func newHTTPEnv() *httpEnv {
	env := newTestEnv()
	logger := logging.Discard()
	parser := &fakeParser{events: make(map[string]*payments.WebhookEvent)}
	notifications := service.NewNotificationService(NewMockNotificationRepository(), nil, logger)

	router := app.NewRouter(app.RouterDeps{
		TripHandler:         handler.NewTripHandler(env.trips),
		ReservationHandler:  handler.NewReservationHandler(env.reservations),
		PaymentHandler:      handler.NewPaymentHandler(env.payments),
		NotificationHandler: handler.NewNotificationHandler(notifications),
		WebhookHandler:      handler.NewWebhookHandler(parser, env.payments, &memoryDedup{seen: make(map[string]bool)}, logger),
		WSHandler:           handler.NewWSHandler(realtime.NewHub(logger), nil, logger),
		JWTSecret:           testSecret,
	})
	return &httpEnv{testEnv: env, router: router, parser: parser}
}

func (e *httpEnv) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := middleware.IssueToken(testSecret, userID, time.Hour)
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

// ──────────────────────────────────────────────
// 1. AUTH AND HEALTH
// ──────────────────────────────────────────────

func TestHTTP_HealthIsPublic(t *testing.T) {
	t.Parallel()
	env := newHTTPEnv()

	if rec := env.do(t, http.MethodGet, "/health", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHTTP_RequiresBearerToken(t *testing.T) {
	t.Parallel()
	env := newHTTPEnv()

	if rec := env.do(t, http.MethodGet, "/v1/trips", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/trips", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a bad token, got %d", rec.Code)
	}
}

// ──────────────────────────────────────────────
// 2. TRIP FLOW
// ──────────────────────────────────────────────

func TestHTTP_TripJoinFlowAndErrorMapping(t *testing.T) {
	t.Parallel()
	env := newHTTPEnv()

	rec := env.do(t, http.MethodPost, "/v1/trips", driverID, handler.CreateTripRequest{
		CarID:             carID,
		DepartureLocation: "Lyon",
		ArrivalLocation:   "Paris",
		DepartureDate:     "2026-11-02",
		DepartureTime:     "08:30",
		AvailableSeats:    2,
		PricePerSeat:      10,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	trip := decode[domain.Trip](t, rec)
	tripPath := "/v1/trips/" + trip.ID

	rec = env.do(t, http.MethodPost, tripPath+"/join", "passenger-1", handler.JoinTripRequest{Seats: 1})
	if rec.Code != http.StatusCreated {
		t.Fatalf("join: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	joined := decode[handler.JoinTripResponse](t, rec)
	if joined.ClientSecret == "" || joined.Trip.AvailableSeats != 1 {
		t.Errorf("unexpected join response: %+v", joined)
	}

	cases := []struct {
		name   string
		method string
		path   string
		user   string
		body   any
		want   int
	}{
		{"duplicate join", http.MethodPost, tripPath + "/join", "passenger-1", handler.JoinTripRequest{Seats: 1}, http.StatusConflict},
		{"too many seats", http.MethodPost, tripPath + "/join", "passenger-2", handler.JoinTripRequest{Seats: 5}, http.StatusBadRequest},
		{"unknown trip", http.MethodPost, "/v1/trips/nope/join", "passenger-2", handler.JoinTripRequest{Seats: 1}, http.StatusNotFound},
		{"passenger confirms", http.MethodPatch, tripPath + "/confirm", "passenger-1", nil, http.StatusForbidden},
		{"illegal transition", http.MethodPatch, tripPath + "/complete", driverID, nil, http.StatusConflict},
		{"leave without reservation", http.MethodPost, tripPath + "/leave", "passenger-3", nil, http.StatusBadRequest},
		{"unverified driver", http.MethodPost, "/v1/trips", "unverified-1", handler.CreateTripRequest{
			CarID: "car-2", DepartureLocation: "A", ArrivalLocation: "B", DepartureDate: "2026-11-02", DepartureTime: "09:00", AvailableSeats: 1,
		}, http.StatusForbidden},
	}
	for _, tc := range cases {
		if rec := env.do(t, tc.method, tc.path, tc.user, tc.body); rec.Code != tc.want {
			t.Errorf("%s: expected %d, got %d: %s", tc.name, tc.want, rec.Code, rec.Body.String())
		}
	}

	rec = env.do(t, http.MethodPatch, tripPath+"/confirm", driverID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm: expected 200, got %d", rec.Code)
	}
	if got := decode[domain.Trip](t, rec); got.Status != domain.TripStatusConfirmed {
		t.Errorf("expected CONFIRMED, got %s", got.Status)
	}

	rec = env.do(t, http.MethodGet, "/v1/trips/search?from=Lyon&to=Paris&date=2026-11-02", "passenger-2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("search: expected 200, got %d", rec.Code)
	}
	if found := decode[[]domain.Trip](t, rec); len(found) != 1 || found[0].ID != trip.ID {
		t.Errorf("expected the confirmed trip in search, got %+v", found)
	}

	if rec := env.do(t, http.MethodGet, "/v1/trips/popular?limit=abc", "passenger-2", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("popular with bad limit: expected 400, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, tripPath+"/reservations", driverID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reservations: expected 200, got %d", rec.Code)
	}
	if list := decode[[]domain.Reservation](t, rec); len(list) != 1 {
		t.Errorf("expected 1 reservation, got %d", len(list))
	}

	paymentPath := "/v1/reservations/" + joined.Reservation.ID + "/payment"
	rec = env.do(t, http.MethodGet, paymentPath, driverID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reservation payment: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if p := decode[domain.Payment](t, rec); p.ID != joined.Payment.ID || p.Status != domain.PaymentStatusPending {
		t.Errorf("unexpected reservation payment: %+v", p)
	}
	if rec := env.do(t, http.MethodGet, paymentPath, "passenger-2", nil); rec.Code != http.StatusForbidden {
		t.Errorf("outsider reads reservation payment: expected 403, got %d", rec.Code)
	}
}

func TestHTTP_InternalErrorsAreNotLeaked(t *testing.T) {
	t.Parallel()
	env := newHTTPEnv()
	env.seedTrip("trip-1", 2, domain.TripStatusPending)
	env.store.UpdateTripError = errors.New("pq: connection reset")

	rec := env.do(t, http.MethodPost, "/v1/trips/trip-1/join", "passenger-1", handler.JoinTripRequest{Seats: 1})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if body := decode[handler.ErrorResponse](t, rec); body.Error != "internal server error" {
		t.Errorf("expected a generic message, got %q", body.Error)
	}
}

// ──────────────────────────────────────────────
// 3. STRIPE WEBHOOK
// ──────────────────────────────────────────────

func (e *httpEnv) webhook(t *testing.T, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/stripe", bytes.NewBufferString(`{}`))
	req.Header.Set("Stripe-Signature", signature)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestHTTP_WebhookCompletesPaymentOnce(t *testing.T) {
	t.Parallel()
	env := newHTTPEnv()
	join := joinForPayment(t, env.testEnv)
	env.psp.SetStatus(join.Payment.IntentID, domain.PaymentIntentSucceeded)
	env.parser.events["sig-ok"] = &payments.WebhookEvent{ID: "evt_1", Type: payments.EventPaymentIntentSucceeded, IntentID: join.Payment.IntentID}

	rec := env.webhook(t, "sig-ok")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if p := env.store.Payment(join.Payment.ID); p.Status != domain.PaymentStatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", p.Status)
	}

	rec = env.webhook(t, "sig-ok")
	if rec.Code != http.StatusOK {
		t.Fatalf("redelivery: expected 200, got %d", rec.Code)
	}
	if body := decode[map[string]bool](t, rec); !body["duplicate"] {
		t.Errorf("expected redelivery to be reported as duplicate, got %v", body)
	}
	if n := env.notifier.CountType(domain.NotificationPaymentSuccess); n != 1 {
		t.Errorf("expected 1 success notification, got %d", n)
	}
}

func TestHTTP_WebhookRejectsBadSignature(t *testing.T) {
	t.Parallel()
	env := newHTTPEnv()

	if rec := env.webhook(t, "forged"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHTTP_WebhookAcksUnknownIntent(t *testing.T) {
	t.Parallel()
	env := newHTTPEnv()
	env.parser.events["sig"] = &payments.WebhookEvent{ID: "evt_2", Type: payments.EventPaymentIntentFailed, IntentID: "pi_elsewhere"}

	if rec := env.webhook(t, "sig"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for an intent we do not own, got %d", rec.Code)
	}
}

func TestHTTP_WebhookFailureAllowsRedelivery(t *testing.T) {
	t.Parallel()
	env := newHTTPEnv()
	join := joinForPayment(t, env.testEnv)
	// Intent still requires a payment method, so completion is refused.
	env.parser.events["sig"] = &payments.WebhookEvent{ID: "evt_3", Type: payments.EventPaymentIntentSucceeded, IntentID: join.Payment.IntentID}

	if rec := env.webhook(t, "sig"); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}

	env.psp.SetStatus(join.Payment.IntentID, domain.PaymentIntentSucceeded)
	rec := env.webhook(t, "sig")
	if rec.Code != http.StatusOK {
		t.Fatalf("redelivery: expected 200, got %d", rec.Code)
	}
	if body := decode[map[string]bool](t, rec); body["duplicate"] {
		t.Error("a failed delivery must not be remembered as processed")
	}
	if p := env.store.Payment(join.Payment.ID); p.Status != domain.PaymentStatusCompleted {
		t.Errorf("expected COMPLETED after redelivery, got %s", p.Status)
	}
}
