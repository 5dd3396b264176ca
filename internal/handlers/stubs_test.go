package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/RLASH18/abg-prime-v2/internal/domain"
	"github.com/RLASH18/abg-prime-v2/internal/platform/auth"
	"github.com/RLASH18/abg-prime-v2/internal/repositories"
	"github.com/RLASH18/abg-prime-v2/internal/services"
)

const testSecret = "handlers-test-secret"

func newTestAuthenticator(t *testing.T) *auth.Authenticator {
	t.Helper()
	authn, err := auth.NewAuthenticator(testSecret)
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}
	return authn
}

func bearer(t *testing.T, authn *auth.Authenticator, userID int64, roles ...string) string {
	t.Helper()
	token, err := authn.Issue(auth.Identity{UserID: userID, Email: "user@example.com", Roles: roles}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return "Bearer " + token
}

func doRequest(t *testing.T, h http.Handler, method, target, authz, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

type stubCartService struct {
	addFn    func(context.Context, services.AddToCartCommand) (domain.CartLine, error)
	getFn    func(context.Context, int64) (services.CartView, error)
	toggleFn func(context.Context, int64, bool) error
}

func (s *stubCartService) AddToCart(ctx context.Context, cmd services.AddToCartCommand) (domain.CartLine, error) {
	return s.addFn(ctx, cmd)
}

func (s *stubCartService) UpdateQuantity(context.Context, services.UpdateCartQuantityCommand) (domain.CartLine, error) {
	return domain.CartLine{}, nil
}

func (s *stubCartService) RemoveFromCart(context.Context, int64, int64) error { return nil }

func (s *stubCartService) ClearCart(context.Context, int64) error { return nil }

func (s *stubCartService) ToggleSelection(context.Context, int64, int64) (domain.CartLine, error) {
	return domain.CartLine{}, nil
}

func (s *stubCartService) ToggleAllSelection(ctx context.Context, userID int64, selected bool) error {
	if s.toggleFn == nil {
		return nil
	}
	return s.toggleFn(ctx, userID, selected)
}

func (s *stubCartService) GetCart(ctx context.Context, userID int64) (services.CartView, error) {
	return s.getFn(ctx, userID)
}

func (s *stubCartService) Total(context.Context, int64) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (s *stubCartService) SelectedTotal(context.Context, int64) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (s *stubCartService) SelectedLines(context.Context, int64) ([]domain.CartLine, error) {
	return nil, nil
}

type stubCheckoutService struct {
	summaryFn  func(context.Context, int64) (services.CheckoutSummary, error)
	processFn  func(context.Context, services.CheckoutCommand) (services.CheckoutResult, error)
	callbackFn func(context.Context, services.PaymentCallbackCommand) (domain.Order, error)
}

func (s *stubCheckoutService) Summary(ctx context.Context, userID int64) (services.CheckoutSummary, error) {
	return s.summaryFn(ctx, userID)
}

func (s *stubCheckoutService) ProcessCheckout(ctx context.Context, cmd services.CheckoutCommand) (services.CheckoutResult, error) {
	return s.processFn(ctx, cmd)
}

func (s *stubCheckoutService) HandlePaymentCallback(ctx context.Context, cmd services.PaymentCallbackCommand) (domain.Order, error) {
	return s.callbackFn(ctx, cmd)
}

type stubOrderService struct {
	listFn   func(context.Context, repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
	getFn    func(context.Context, int64) (domain.Order, error)
	updateFn func(context.Context, services.UpdateOrderStatusCommand) (domain.Order, error)
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	return s.listFn(ctx, filter)
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID int64) (domain.Order, error) {
	return s.getFn(ctx, orderID)
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, cmd services.UpdateOrderStatusCommand) (domain.Order, error) {
	return s.updateFn(ctx, cmd)
}

type stubDeliveryService struct {
	getFn    func(context.Context, int64) (services.DeliveryView, error)
	updateFn func(context.Context, services.UpdateDeliveryCommand) (domain.Delivery, error)
}

func (s *stubDeliveryService) EnsureDelivery(context.Context, domain.Order) (domain.Delivery, bool, error) {
	return domain.Delivery{}, false, nil
}

func (s *stubDeliveryService) SyncFromOrder(context.Context, int64, domain.OrderStatus) error {
	return nil
}

func (s *stubDeliveryService) UpdateStatus(ctx context.Context, cmd services.UpdateDeliveryCommand) (domain.Delivery, error) {
	return s.updateFn(ctx, cmd)
}

func (s *stubDeliveryService) GetDelivery(ctx context.Context, deliveryID int64) (services.DeliveryView, error) {
	return s.getFn(ctx, deliveryID)
}

type stubHealthRepository struct {
	report domain.SystemHealthReport
}

func (s stubHealthRepository) Collect(context.Context) (domain.SystemHealthReport, error) {
	return s.report, nil
}

func sampleOrder(status domain.OrderStatus) domain.Order {
	return domain.Order{
		ID:             42,
		UserID:         7,
		Status:         status,
		PaymentMethod:  domain.PaymentMethodGCash,
		DeliveryMethod: domain.DeliveryMethodDelivery,
		TotalAmount:    decimal.RequireFromString("1500"),
		Items: []domain.OrderItem{
			{ID: 1, OrderID: 42, ItemID: 3, ItemName: "Claw Hammer", Quantity: 2, UnitPrice: decimal.RequireFromString("750")},
		},
		CreatedAt: time.Date(2025, time.December, 14, 8, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2025, time.December, 14, 8, 0, 0, 0, time.UTC),
	}
}
