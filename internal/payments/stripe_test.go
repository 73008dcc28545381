package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
)

const testSecret = "whsec_test_secret"

func sign(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func eventPayload(id, eventType, intentID string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"object": "event",
		"api_version": %q,
		"type": %q,
		"data": {"object": {"id": %q, "object": "payment_intent", "status": "succeeded"}}
	}`, id, stripe.APIVersion, eventType, intentID))
}

func TestParseWebhook_SucceededEvent(t *testing.T) {
	t.Parallel()

	client := NewStripeClient("sk_test", testSecret)
	payload := eventPayload("evt_1", EventPaymentIntentSucceeded, "pi_123")

	event, err := client.ParseWebhook(payload, sign(payload, testSecret, time.Now()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.ID != "evt_1" {
		t.Errorf("expected event id evt_1, got %s", event.ID)
	}
	if event.Type != EventPaymentIntentSucceeded {
		t.Errorf("expected type %s, got %s", EventPaymentIntentSucceeded, event.Type)
	}
	if event.IntentID != "pi_123" {
		t.Errorf("expected intent pi_123, got %s", event.IntentID)
	}
}

func TestParseWebhook_OtherEventHasNoIntent(t *testing.T) {
	t.Parallel()

	client := NewStripeClient("sk_test", testSecret)
	payload := eventPayload("evt_2", "charge.refunded", "ch_1")

	event, err := client.ParseWebhook(payload, sign(payload, testSecret, time.Now()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.IntentID != "" {
		t.Errorf("expected no intent id, got %s", event.IntentID)
	}
}

func TestParseWebhook_BadSignature(t *testing.T) {
	t.Parallel()

	client := NewStripeClient("sk_test", testSecret)
	payload := eventPayload("evt_3", EventPaymentIntentFailed, "pi_9")

	if _, err := client.ParseWebhook(payload, sign(payload, "whsec_other", time.Now())); err == nil {
		t.Fatal("expected signature error")
	}
}

func TestParseWebhook_NotConfigured(t *testing.T) {
	t.Parallel()

	client := NewStripeClient("sk_test", "")
	_, err := client.ParseWebhook([]byte(`{}`), "t=1,v1=00")
	if !errors.Is(err, ErrWebhookNotConfigured) {
		t.Fatalf("expected ErrWebhookNotConfigured, got %v", err)
	}
}

func TestCreatePaymentIntent_SendsIdempotencyKey(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var keys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id": "pi_1", "object": "payment_intent", "client_secret": "pi_1_secret", "status": "requires_payment_method", "amount": 1000, "currency": "eur"}`)
	}))
	defer srv.Close()

	client := &StripeClient{intents: paymentintent.Client{
		B: stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			URL:               stripe.String(srv.URL),
			MaxNetworkRetries: stripe.Int64(0),
		}),
		Key: "sk_test",
	}}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		intent, err := client.CreatePaymentIntent(ctx, 1000, "eur", "", map[string]string{"payment_id": "pay-1"})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if intent.ID != "pi_1" || intent.ClientSecret != "pi_1_secret" {
			t.Fatalf("unexpected intent: %+v", intent)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(keys) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(keys))
	}
	for _, key := range keys {
		if key != IdempotencyKey("pay-1") {
			t.Errorf("expected idempotency key %q, got %q", IdempotencyKey("pay-1"), key)
		}
	}
}
