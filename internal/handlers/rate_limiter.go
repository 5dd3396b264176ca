package handlers

import (
	"fmt"
	"net/http"

	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"

	"github.com/RLASH18/abg-prime-v2/internal/platform/httpx"
	"github.com/RLASH18/abg-prime-v2/internal/platform/requestctx"
)

// NewRateLimit builds a per-client-IP limiter from a formatted rate such as "30-M". Each call owns an
// independent in-memory store.
func NewRateLimit(formatted string) (func(http.Handler) http.Handler, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, fmt.Errorf("rate limit %q: %w", formatted, err)
	}
	instance := limiter.New(memory.NewStore(), rate)
	mw := stdlib.NewMiddleware(instance,
		stdlib.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "too many requests; slow down", http.StatusTooManyRequests))
		}),
		stdlib.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			requestctx.Logger(r.Context()).Error("rate limiter failed", zap.Error(err))
			httpx.WriteError(r.Context(), w, httpx.NewError("rate_limiter_unavailable", "rate limiter unavailable", http.StatusServiceUnavailable))
		}),
	)
	return mw.Handler, nil
}
