package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/RLASH18/abg-prime-v2/internal/domain"
	"github.com/RLASH18/abg-prime-v2/internal/payments"
	"github.com/RLASH18/abg-prime-v2/internal/platform/auth"
	"github.com/RLASH18/abg-prime-v2/internal/platform/httpx"
	"github.com/RLASH18/abg-prime-v2/internal/platform/observability"
	"github.com/RLASH18/abg-prime-v2/internal/platform/requestctx"
	"github.com/RLASH18/abg-prime-v2/internal/services"
)

const maxWebhookBodySize = 64 * 1024

// PaymentHandlers receives gateway redirects and webhooks. Redirects run as the signed-in customer;
// webhooks are trusted only after their signature checks out.
type PaymentHandlers struct {
	authn     *auth.Authenticator
	checkout  services.CheckoutService
	verifier  *payments.WebhookVerifier
	rateLimit func(http.Handler) http.Handler
}

// PaymentOption customises payment handlers.
type PaymentOption func(*PaymentHandlers)

// WithWebhookVerifier enables POST /webhooks/paymongo.
func WithWebhookVerifier(verifier *payments.WebhookVerifier) PaymentOption {
	return func(h *PaymentHandlers) {
		h.verifier = verifier
	}
}

// WithCallbackRateLimit throttles the redirect callbacks and webhooks.
func WithCallbackRateLimit(mw func(http.Handler) http.Handler) PaymentOption {
	return func(h *PaymentHandlers) {
		h.rateLimit = mw
	}
}

func NewPaymentHandlers(authn *auth.Authenticator, checkout services.CheckoutService, opts ...PaymentOption) *PaymentHandlers {
	h := &PaymentHandlers{authn: authn, checkout: checkout}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// CallbackRoutes registers the gateway redirect targets under /payments.
func (h *PaymentHandlers) CallbackRoutes(r chi.Router) {
	if r == nil {
		return
	}
	if h.rateLimit != nil {
		r.Use(h.rateLimit)
	}
	r.Use(h.authn.RequireAuth(), observability.IdentityLogMiddleware)
	r.Get("/callback/success", h.callback(services.PaymentOutcomeSucceeded))
	r.Get("/callback/failed", h.callback(services.PaymentOutcomeFailed))
}

// WebhookRoutes registers gateway webhooks under /webhooks.
func (h *PaymentHandlers) WebhookRoutes(r chi.Router) {
	if r == nil {
		return
	}
	if h.rateLimit != nil {
		r.Use(h.rateLimit)
	}
	r.Post("/paymongo", h.payMongoWebhook)
}

type callbackResponse struct {
	OrderID     int64  `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Status      string `json:"status"`
}

type webhookResponse struct {
	Status string `json:"status"`
}

func (h *PaymentHandlers) callback(outcome services.PaymentOutcome) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := requireIdentity(w, r)
		if !ok {
			return
		}
		ctx := r.Context()
		query := r.URL.Query()
		orderID, err := strconv.ParseInt(strings.TrimSpace(query.Get("order_id")), 10, 64)
		if err != nil || orderID <= 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order_id must be a positive integer", http.StatusBadRequest))
			return
		}

		order, err := h.checkout.HandlePaymentCallback(ctx, services.PaymentCallbackCommand{
			OrderID:   orderID,
			UserID:    identity.UserID,
			Outcome:   outcome,
			SessionID: strings.TrimSpace(query.Get("session_id")),
		})
		if err != nil {
			writeServiceError(ctx, w, err)
			return
		}
		writeJSONResponse(w, http.StatusOK, callbackResponse{
			OrderID:     order.ID,
			OrderNumber: order.Number(),
			Status:      string(order.Status),
		})
	}
}

func (h *PaymentHandlers) payMongoWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.verifier == nil {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_unavailable", "webhook verification is not configured", http.StatusServiceUnavailable))
		return
	}
	body, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	event, err := payments.ParseWebhookEvent(body)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_webhook", "webhook payload could not be parsed", http.StatusBadRequest))
		return
	}
	if err := h.verifier.Verify(r.Header.Get(payments.PayMongoSignatureHeader), body, event.Livemode); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature rejected", http.StatusUnauthorized))
		return
	}

	logger := requestctx.Logger(ctx).With(zap.String("event_id", event.ID), zap.String("event_type", event.Type))
	if event.Type != payments.PayMongoEventPaymentPaid || event.OrderID <= 0 {
		logger.Info("webhook ignored", zap.Int64("order_id", event.OrderID))
		writeJSONResponse(w, http.StatusOK, webhookResponse{Status: "ignored"})
		return
	}

	order, err := h.checkout.HandlePaymentCallback(ctx, services.PaymentCallbackCommand{
		OrderID:   event.OrderID,
		Verified:  true,
		Outcome:   services.PaymentOutcomeSucceeded,
		SessionID: event.SessionID,
		PaymentID: event.PaymentID,
	})
	switch {
	case errors.Is(err, services.ErrOrderNotFound), errors.Is(err, services.ErrInvalidInput):
		// Redelivery cannot fix these, so acknowledge to stop retries.
		logger.Warn("webhook rejected", zap.Int64("order_id", event.OrderID), zap.Error(err))
		writeJSONResponse(w, http.StatusOK, webhookResponse{Status: "ignored"})
		return
	case err != nil:
		writeServiceError(ctx, w, err)
		return
	}

	status := "processed"
	if order.Status != domain.OrderStatusConfirmed {
		status = "ignored"
	}
	writeJSONResponse(w, http.StatusOK, webhookResponse{Status: status})
}
