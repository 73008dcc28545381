package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
	"github.com/stripe/stripe-go/v74/webhook"

	"carpool/internal/domain"
)

// Stripe webhook event types handled by the reconciler.
const (
	EventPaymentIntentSucceeded = "payment_intent.succeeded"
	EventPaymentIntentFailed    = "payment_intent.payment_failed"
)

// ErrWebhookNotConfigured is returned when a webhook arrives but no signing
// secret is configured.
var ErrWebhookNotConfigured = errors.New("stripe webhook secret not configured")

// WebhookEvent is the part of a verified Stripe event the service needs.
type WebhookEvent struct {
	ID       string
	Type     string
	IntentID string
}

// StripeClient wraps stripe-go for the payment intent flow.
type StripeClient struct {
	intents       paymentintent.Client
	webhookSecret string
}

// NewStripeClient creates a client bound to the given secret key.
func NewStripeClient(secretKey, webhookSecret string) *StripeClient {
	return &StripeClient{
		intents: paymentintent.Client{
			B:   stripe.GetBackend(stripe.APIBackend),
			Key: secretKey,
		},
		webhookSecret: webhookSecret,
	}
}

// CreatePaymentIntent creates a card PaymentIntent for amount minor units.
func (s *StripeClient) CreatePaymentIntent(ctx context.Context, amount int64, currency, customerID string, metadata map[string]string) (*domain.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(amount),
		Currency:           stripe.String(currency),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	params.Context = ctx
	if customerID != "" {
		params.Customer = stripe.String(customerID)
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	// Retried creates for the same payment return the same intent.
	if paymentID := metadata["payment_id"]; paymentID != "" {
		params.SetIdempotencyKey(IdempotencyKey(paymentID))
	}

	pi, err := s.intents.New(params)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	return toDomainIntent(pi), nil
}

// IdempotencyKey is the processor idempotency key for a payment's intent.
func IdempotencyKey(paymentID string) string {
	return "carpool-payment-intent-" + paymentID
}

// RetrievePaymentIntent fetches the current state of an intent.
func (s *StripeClient) RetrievePaymentIntent(ctx context.Context, intentID string) (*domain.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := s.intents.Get(intentID, params)
	if err != nil {
		return nil, fmt.Errorf("retrieve payment intent %s: %w", intentID, err)
	}
	return toDomainIntent(pi), nil
}

// ParseWebhook verifies the Stripe-Signature header and decodes the event.
// IntentID is set only for payment_intent events.
func (s *StripeClient) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	if s.webhookSecret == "" {
		return nil, ErrWebhookNotConfigured
	}

	event, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("verify webhook: %w", err)
	}

	out := &WebhookEvent{ID: event.ID, Type: string(event.Type)}
	switch out.Type {
	case EventPaymentIntentSucceeded, EventPaymentIntentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("decode payment intent: %w", err)
		}
		out.IntentID = pi.ID
	}
	return out, nil
}

func toDomainIntent(pi *stripe.PaymentIntent) *domain.PaymentIntent {
	return &domain.PaymentIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       domain.PaymentIntentStatus(pi.Status),
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
	}
}
