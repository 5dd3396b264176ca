package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/RLASH18/abg-prime-v2/internal/payments"
	"github.com/RLASH18/abg-prime-v2/internal/platform/auth"
	"github.com/RLASH18/abg-prime-v2/internal/platform/httpx"
	"github.com/RLASH18/abg-prime-v2/internal/platform/requestctx"
	"github.com/RLASH18/abg-prime-v2/internal/services"
)

const maxJSONBodySize = 16 * 1024

var (
	errEmptyBody    = errors.New("request body is required")
	errBodyTooLarge = errors.New("request body exceeds allowed size")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = maxJSONBodySize
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// decodeJSONBody reads a bounded JSON body into dst and writes the error response itself on failure.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	ctx := r.Context()
	body, err := readLimitedBody(r, maxJSONBodySize)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", err.Error(), http.StatusRequestEntityTooLarge))
			return false
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	httpx.WriteJSON(w, status, payload)
}

// requireIdentity returns the authenticated caller or answers 401.
func requireIdentity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity == nil || identity.UserID <= 0 {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

// pathID parses a positive integer URL parameter, answering 400 when it is malformed.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(chi.URLParam(r, name)), 10, 64)
	if err != nil || id <= 0 {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", fmt.Sprintf("%s must be a positive integer", name), http.StatusBadRequest))
		return 0, false
	}
	return id, true
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatAmount(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

var notFoundCodes = []struct {
	err     error
	code    string
	message string
}{
	{services.ErrItemNotFound, "item_not_found", "item not found"},
	{services.ErrDamagedItemNotFound, "damaged_item_not_found", "damaged item not found"},
	{services.ErrCartItemNotFound, "cart_item_not_found", "cart item not found"},
	{services.ErrOrderNotFound, "order_not_found", "order not found"},
	{services.ErrBillingNotFound, "billing_not_found", "billing not found"},
	{services.ErrDeliveryNotFound, "delivery_not_found", "delivery not found"},
}

// writeServiceError maps service sentinels onto HTTP envelopes. Internal failures are logged and
// answered with a generic message.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var stockErr *services.StockError
	var transitionErr *services.TransitionError
	var sessionErr *payments.SessionError
	switch {
	case errors.As(err, &stockErr):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", stockErr.Error(), http.StatusConflict).WithDetails(map[string]any{
			"requested": stockErr.Requested,
			"available": stockErr.Available,
		}))
	case errors.Is(err, services.ErrInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", "insufficient stock for the requested quantity", http.StatusConflict))
	case errors.Is(err, services.ErrNotFound):
		for _, candidate := range notFoundCodes {
			if errors.Is(err, candidate.err) {
				httpx.WriteError(ctx, w, httpx.NewError(candidate.code, candidate.message, http.StatusNotFound))
				return
			}
		}
		httpx.WriteError(ctx, w, httpx.NewError("not_found", "resource not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartEmpty):
		httpx.WriteError(ctx, w, httpx.NewError("cart_empty", "select at least one cart item to check out", http.StatusUnprocessableEntity))
	case errors.As(err, &transitionErr):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", transitionErr.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", "status change not allowed", http.StatusConflict))
	case errors.Is(err, services.ErrInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrConflict):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", "the resource changed concurrently; retry", http.StatusConflict))
	case errors.As(err, &sessionErr):
		httpx.WriteError(ctx, w, httpx.NewError("payment_session_failed", sessionErr.Error(), http.StatusBadGateway))
	case errors.Is(err, services.ErrPaymentSession):
		httpx.WriteError(ctx, w, httpx.NewError("payment_session_failed", "payment gateway rejected the checkout session", http.StatusBadGateway))
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("timeout", "request timed out", http.StatusGatewayTimeout))
	case errors.Is(err, services.ErrCheckoutFailed):
		requestctx.Logger(ctx).Error("checkout failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("checkout_failed", "checkout could not be completed", http.StatusInternalServerError))
	default:
		requestctx.Logger(ctx).Error("request failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "an internal error occurred", http.StatusInternalServerError))
	}
}
