package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"carpool/internal/payments"
	"carpool/internal/service"
)

const maxWebhookBody = 64 << 10

// WebhookParser verifies and decodes processor webhooks.
type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (*payments.WebhookEvent, error)
}

// PaymentReconciler applies processor outcomes.
type PaymentReconciler interface {
	CompletePayment(ctx context.Context, intentID string) (*service.ReconcileResult, error)
	FailPayment(ctx context.Context, intentID string) (*service.ReconcileResult, error)
}

// EventDeduplicator remembers processed webhook event ids.
type EventDeduplicator interface {
	MarkEventProcessed(ctx context.Context, eventID string) (bool, error)
	ForgetEvent(ctx context.Context, eventID string) error
}

// WebhookHandler receives Stripe webhooks.
type WebhookHandler struct {
	parser     WebhookParser
	reconciler PaymentReconciler
	dedup      EventDeduplicator
	logger     *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler. dedup may be nil; the
// reconciler is idempotent on its own.
func NewWebhookHandler(parser WebhookParser, reconciler PaymentReconciler, dedup EventDeduplicator, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{parser: parser, reconciler: reconciler, dedup: dedup, logger: logger}
}

// Stripe handles POST /v1/webhooks/stripe
func (h *WebhookHandler) Stripe(c *gin.Context) {
	if h.parser == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "webhooks not configured"})
		return
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unreadable body"})
		return
	}

	event, err := h.parser.ParseWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, payments.ErrWebhookNotConfigured) {
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "webhooks not configured"})
			return
		}
		h.logger.Warn("rejected stripe webhook", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid signature"})
		return
	}

	ctx := c.Request.Context()
	if h.dedup != nil {
		first, err := h.dedup.MarkEventProcessed(ctx, event.ID)
		if err != nil {
			h.logger.Warn("webhook dedup unavailable", "event_id", event.ID, "error", err)
		} else if !first {
			respondJSON(c, http.StatusOK, gin.H{"received": true, "duplicate": true})
			return
		}
	}

	if err := h.apply(ctx, event); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			// Unknown intents are not ours; retrying will not help.
			h.logger.Warn("webhook for unknown payment", "event_id", event.ID, "intent_id", event.IntentID)
			respondJSON(c, http.StatusOK, gin.H{"received": true})
			return
		}
		if h.dedup != nil {
			if ferr := h.dedup.ForgetEvent(context.WithoutCancel(ctx), event.ID); ferr != nil {
				h.logger.Warn("webhook dedup rollback failed", "event_id", event.ID, "error", ferr)
			}
		}
		h.logger.Error("webhook processing failed", "event_id", event.ID, "type", event.Type, "error", err)
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"received": true})
}

func (h *WebhookHandler) apply(ctx context.Context, event *payments.WebhookEvent) error {
	var err error
	switch event.Type {
	case payments.EventPaymentIntentSucceeded:
		_, err = h.reconciler.CompletePayment(ctx, event.IntentID)
	case payments.EventPaymentIntentFailed:
		_, err = h.reconciler.FailPayment(ctx, event.IntentID)
	default:
		h.logger.Debug("ignoring stripe event", "event_id", event.ID, "type", event.Type)
	}
	return err
}
