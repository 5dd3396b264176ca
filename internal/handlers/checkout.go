package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/RLASH18/abg-prime-v2/internal/domain"
	"github.com/RLASH18/abg-prime-v2/internal/platform/auth"
	"github.com/RLASH18/abg-prime-v2/internal/platform/idempotency"
	"github.com/RLASH18/abg-prime-v2/internal/platform/observability"
	"github.com/RLASH18/abg-prime-v2/internal/services"
)

// CheckoutHandlers exposes checkout for authenticated customers.
type CheckoutHandlers struct {
	authn       *auth.Authenticator
	checkout    services.CheckoutService
	idempotency func(http.Handler) http.Handler
	rateLimit   func(http.Handler) http.Handler
}

// CheckoutOption customises checkout handlers.
type CheckoutOption func(*CheckoutHandlers)

// WithCheckoutIdempotency guards POST /checkout with an Idempotency-Key middleware.
func WithCheckoutIdempotency(mw func(http.Handler) http.Handler) CheckoutOption {
	return func(h *CheckoutHandlers) {
		h.idempotency = mw
	}
}

// WithCheckoutRateLimit throttles POST /checkout.
func WithCheckoutRateLimit(mw func(http.Handler) http.Handler) CheckoutOption {
	return func(h *CheckoutHandlers) {
		h.rateLimit = mw
	}
}

func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService, opts ...CheckoutOption) *CheckoutHandlers {
	h := &CheckoutHandlers{authn: authn, checkout: checkout}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers checkout endpoints under /checkout.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Use(h.authn.RequireAuth(), observability.IdentityLogMiddleware)
	r.Get("/summary", h.summary)

	var guards []func(http.Handler) http.Handler
	for _, mw := range []func(http.Handler) http.Handler{h.rateLimit, h.idempotency} {
		if mw != nil {
			guards = append(guards, mw)
		}
	}
	r.With(guards...).Post("/", h.processCheckout)
}

type checkoutSummaryPayload struct {
	Lines     []cartLinePayload `json:"lines"`
	Subtotal  string            `json:"subtotal"`
	Total     string            `json:"total"`
	ItemCount int               `json:"item_count"`
}

type checkoutRequest struct {
	PaymentMethod   string `json:"payment_method"`
	DeliveryMethod  string `json:"delivery_method"`
	DeliveryAddress string `json:"delivery_address"`
}

type checkoutResponse struct {
	OrderID     int64  `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Status      string `json:"status"`
	Total       string `json:"total"`
	CheckoutURL string `json:"checkout_url,omitempty"`
}

func (h *CheckoutHandlers) summary(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	summary, err := h.checkout.Summary(r.Context(), identity.UserID)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	lines := make([]cartLinePayload, 0, len(summary.Lines))
	for _, line := range summary.Lines {
		lines = append(lines, buildCartLinePayload(line))
	}
	writeJSONResponse(w, http.StatusOK, checkoutSummaryPayload{
		Lines:     lines,
		Subtotal:  formatAmount(summary.Subtotal),
		Total:     formatAmount(summary.Total),
		ItemCount: summary.ItemCount,
	})
}

func (h *CheckoutHandlers) processCheckout(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req checkoutRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	result, err := h.checkout.ProcessCheckout(r.Context(), services.CheckoutCommand{
		UserID:          identity.UserID,
		Email:           identity.Email,
		PaymentMethod:   domain.PaymentMethod(req.PaymentMethod),
		DeliveryMethod:  domain.DeliveryMethod(req.DeliveryMethod),
		DeliveryAddress: req.DeliveryAddress,
		IdempotencyKey:  strings.TrimSpace(r.Header.Get(idempotency.HeaderName)),
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, checkoutResponse{
		OrderID:     result.Order.ID,
		OrderNumber: result.Order.Number(),
		Status:      string(result.Order.Status),
		Total:       formatAmount(result.Order.TotalAmount),
		CheckoutURL: result.CheckoutURL,
	})
}
