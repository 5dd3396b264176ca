package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/RLASH18/abg-prime-v2/internal/domain"
	"github.com/RLASH18/abg-prime-v2/internal/payments"
	"github.com/RLASH18/abg-prime-v2/internal/platform/idempotency"
	"github.com/RLASH18/abg-prime-v2/internal/services"
)

func newCheckoutRouter(t *testing.T, checkout services.CheckoutService, opts ...CheckoutOption) (http.Handler, string) {
	t.Helper()
	authn := newTestAuthenticator(t)
	h := NewCheckoutHandlers(authn, checkout, opts...)
	return NewRouter(WithCheckoutRoutes(func(r chi.Router) { h.Routes(r) })), bearer(t, authn, 7)
}

func postCheckout(t *testing.T, router http.Handler, token, key, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body))
	req.Header.Set("Authorization", token)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(idempotency.HeaderName, key)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestCheckoutHandlersProcessCheckout(t *testing.T) {
	var got services.CheckoutCommand
	checkout := &stubCheckoutService{
		processFn: func(_ context.Context, cmd services.CheckoutCommand) (services.CheckoutResult, error) {
			got = cmd
			order := sampleOrder(domain.OrderStatusPending)
			return services.CheckoutResult{Order: order, CheckoutURL: "https://checkout.paymongo.com/cs_123"}, nil
		},
	}
	router, token := newCheckoutRouter(t, checkout)

	rr := postCheckout(t, router, token, "key-1", `{"payment_method":"gcash","delivery_method":"delivery","delivery_address":"12 Rizal St"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var body checkoutResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.OrderID != 42 || body.OrderNumber != "0042" || body.CheckoutURL == "" || body.Total != "1500.00" {
		t.Fatalf("unexpected response %#v", body)
	}
	if got.UserID != 7 || got.Email != "user@example.com" || got.PaymentMethod != domain.PaymentMethodGCash || got.IdempotencyKey != "key-1" {
		t.Fatalf("unexpected command %#v", got)
	}
}

func TestCheckoutHandlersReplaysIdempotentRequests(t *testing.T) {
	calls := 0
	checkout := &stubCheckoutService{
		processFn: func(context.Context, services.CheckoutCommand) (services.CheckoutResult, error) {
			calls++
			return services.CheckoutResult{Order: sampleOrder(domain.OrderStatusPending)}, nil
		},
	}
	router, token := newCheckoutRouter(t, checkout,
		WithCheckoutIdempotency(idempotency.Middleware(idempotency.NewMemoryStore())))

	body := `{"payment_method":"cash","delivery_method":"pickup"}`
	first := postCheckout(t, router, token, "retry-me", body)
	second := postCheckout(t, router, token, "retry-me", body)
	if first.Code != http.StatusCreated || second.Code != http.StatusCreated {
		t.Fatalf("expected both 201, got %d and %d", first.Code, second.Code)
	}
	if calls != 1 {
		t.Fatalf("expected checkout to run once, ran %d times", calls)
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("expected replayed body, got %q vs %q", first.Body.String(), second.Body.String())
	}
	if missing := postCheckout(t, router, token, "", body); missing.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without idempotency key, got %d", missing.Code)
	}
}

func TestCheckoutHandlersErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"empty cart", services.ErrCartEmpty, http.StatusUnprocessableEntity, "cart_empty"},
		{
			"gateway rejected",
			fmt.Errorf("%w: %w", services.ErrPaymentSession, &payments.SessionError{Provider: "paymongo", Message: "amount too small"}),
			http.StatusBadGateway,
			"payment_session_failed",
		},
		{"rolled back", fmt.Errorf("%w: deadlock", services.ErrCheckoutFailed), http.StatusInternalServerError, "checkout_failed"},
		{"stock", &services.StockError{Source: domain.ItemSource(3), Requested: 4, Available: 1}, http.StatusConflict, "insufficient_stock"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			checkout := &stubCheckoutService{
				processFn: func(context.Context, services.CheckoutCommand) (services.CheckoutResult, error) {
					return services.CheckoutResult{}, tc.err
				},
			}
			router, token := newCheckoutRouter(t, checkout)
			rr := postCheckout(t, router, token, "", `{"payment_method":"gcash","delivery_method":"pickup"}`)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			var body map[string]any
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["error"] != tc.code {
				t.Fatalf("expected %s, got %v", tc.code, body["error"])
			}
			if tc.code == "payment_session_failed" && !strings.Contains(body["message"].(string), "amount too small") {
				t.Fatalf("expected provider message, got %v", body["message"])
			}
			if tc.code == "checkout_failed" && strings.Contains(body["message"].(string), "deadlock") {
				t.Fatalf("internal detail leaked: %v", body["message"])
			}
		})
	}
}

func TestCheckoutHandlersSummary(t *testing.T) {
	checkout := &stubCheckoutService{
		summaryFn: func(context.Context, int64) (services.CheckoutSummary, error) {
			return services.CheckoutSummary{
				Lines:     []domain.CartLine{{ID: 1, ItemName: "Paint Brush", Quantity: 3, Price: decimal.RequireFromString("55.5")}},
				Subtotal:  decimal.RequireFromString("166.5"),
				Total:     decimal.RequireFromString("166.5"),
				ItemCount: 3,
			}, nil
		},
	}
	router, token := newCheckoutRouter(t, checkout)

	rr := doRequest(t, router, http.MethodGet, "/api/v1/checkout/summary", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body checkoutSummaryPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != "166.50" || body.ItemCount != 3 {
		t.Fatalf("unexpected summary %#v", body)
	}
}

func TestCheckoutHandlersRateLimit(t *testing.T) {
	limit, err := NewRateLimit("1-M")
	if err != nil {
		t.Fatalf("NewRateLimit: %v", err)
	}
	checkout := &stubCheckoutService{
		processFn: func(context.Context, services.CheckoutCommand) (services.CheckoutResult, error) {
			return services.CheckoutResult{Order: sampleOrder(domain.OrderStatusPending)}, nil
		},
	}
	router, token := newCheckoutRouter(t, checkout, WithCheckoutRateLimit(limit))

	body := `{"payment_method":"cash","delivery_method":"pickup"}`
	if rr := postCheckout(t, router, token, "", body); rr.Code != http.StatusCreated {
		t.Fatalf("expected first request to pass, got %d", rr.Code)
	}
	rr := postCheckout(t, router, token, "", body)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "rate_limited") {
		t.Fatalf("expected rate_limited envelope, got %s", rr.Body.String())
	}

	if _, err := NewRateLimit("lots"); err == nil {
		t.Fatal("expected malformed rate to fail")
	}
}
