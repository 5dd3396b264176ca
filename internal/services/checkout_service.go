package services

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	domain "github.com/RLASH18/abg-prime-v2/internal/domain"
	"github.com/RLASH18/abg-prime-v2/internal/payments"
	"github.com/RLASH18/abg-prime-v2/internal/platform/textutil"
	"github.com/RLASH18/abg-prime-v2/internal/repositories"
)

const maxDeliveryAddressLength = 500

// checkoutSessionManager abstracts payments.Manager for easier testing.
type checkoutSessionManager interface {
	CreateCheckoutSession(ctx context.Context, paymentCtx payments.PaymentContext, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error)
}

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Carts      repositories.CartRepository
	Orders     repositories.OrderRepository
	Stock      StockLedger
	Payments   checkoutSessionManager
	OrderFlow  OrderService
	UnitOfWork repositories.UnitOfWork
	// SuccessURL and CancelURL receive an order_id query parameter per checkout.
	SuccessURL string
	CancelURL  string
	Meter      metric.Meter
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	carts      repositories.CartRepository
	orders     repositories.OrderRepository
	stock      StockLedger
	payments   checkoutSessionManager
	orderFlow  OrderService
	unitOfWork repositories.UnitOfWork
	successURL string
	cancelURL  string
	checkouts  metric.Int64Counter
	now        func() time.Time
	logger     func(context.Context, string, map[string]any)
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Carts == nil {
		return nil, errors.New("checkout service: cart repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.Stock == nil {
		return nil, errors.New("checkout service: stock ledger is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("checkout service: payment manager is required")
	}
	if deps.OrderFlow == nil {
		return nil, errors.New("checkout service: order service is required")
	}
	successURL := strings.TrimSpace(deps.SuccessURL)
	cancelURL := strings.TrimSpace(deps.CancelURL)
	if successURL == "" || cancelURL == "" {
		return nil, errors.New("checkout service: success and cancel urls are required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	counter, err := meter.Int64Counter(
		"checkout.completed",
		metric.WithDescription("Checkouts by payment method and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("checkout service: create counter: %w", err)
	}

	return &checkoutService{
		carts:      deps.Carts,
		orders:     deps.Orders,
		stock:      deps.Stock,
		payments:   deps.Payments,
		orderFlow:  deps.OrderFlow,
		unitOfWork: unit,
		successURL: successURL,
		cancelURL:  cancelURL,
		checkouts:  counter,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *checkoutService) Summary(ctx context.Context, userID int64) (CheckoutSummary, error) {
	lines, err := s.carts.ListSelected(ctx, userID)
	if err != nil {
		return CheckoutSummary{}, mapRepositoryError(err, nil)
	}
	if len(lines) == 0 {
		return CheckoutSummary{}, ErrCartEmpty
	}
	subtotal := domain.SumLines(lines)
	summary := CheckoutSummary{Lines: lines, Subtotal: subtotal, Total: subtotal}
	for _, line := range lines {
		summary.ItemCount += line.Quantity
	}
	return summary, nil
}

// ProcessCheckout turns the selected cart lines into a pending order. Stock, order rows, cart lines
// and the gateway session all commit or roll back together.
func (s *checkoutService) ProcessCheckout(ctx context.Context, cmd CheckoutCommand) (result CheckoutResult, err error) {
	ctx, span := tracer.Start(ctx, "checkout.ProcessCheckout")
	span.SetAttributes(
		attribute.Int64("user.id", cmd.UserID),
		attribute.String("payment.method", string(cmd.PaymentMethod)),
	)
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = checkoutOutcome(err)
		}
		s.checkouts.Add(ctx, 1, metric.WithAttributes(
			attribute.String("payment_method", string(cmd.PaymentMethod)),
			attribute.String("outcome", outcome),
		))
		endSpan(span, err)
	}()

	cmd, err = s.normaliseCommand(cmd)
	if err != nil {
		return CheckoutResult{}, err
	}
	// Minted outside the transaction so a deadlock replay reuses the same gateway key.
	if cmd.IdempotencyKey == "" {
		cmd.IdempotencyKey = ulid.Make().String()
	}

	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		res, err := s.checkoutInTx(txCtx, cmd)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		if isServiceError(err) || errors.Is(err, ErrConflict) || errors.Is(err, context.Canceled) {
			return CheckoutResult{}, err
		}
		s.logger(ctx, "checkout.failed", map[string]any{"userID": cmd.UserID, "error": err.Error()})
		return CheckoutResult{}, ErrCheckoutFailed
	}

	s.logger(ctx, "checkout.completed", map[string]any{
		"userID":        cmd.UserID,
		"orderID":       result.Order.ID,
		"paymentMethod": string(result.Order.PaymentMethod),
		"total":         result.Order.TotalAmount.StringFixed(2),
		"redirect":      result.RequiresRedirect(),
	})
	return result, nil
}

func (s *checkoutService) checkoutInTx(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error) {
	lines, err := s.carts.ListSelected(ctx, cmd.UserID)
	if err != nil {
		return CheckoutResult{}, mapRepositoryError(err, nil)
	}
	if len(lines) == 0 {
		return CheckoutResult{}, ErrCartEmpty
	}

	// Lock stock rows in a stable order so concurrent checkouts cannot deadlock each other.
	locked := slices.Clone(lines)
	slices.SortFunc(locked, func(a, b domain.CartLine) int {
		sa, sb := a.Source(), b.Source()
		return cmp.Or(cmp.Compare(sa.Kind(), sb.Kind()), cmp.Compare(sa.ItemID(), sb.ItemID()), cmp.Compare(sa.DamagedItemID(), sb.DamagedItemID()))
	})
	for _, line := range locked {
		if _, err := s.stock.Reserve(ctx, line.Source(), line.Quantity); err != nil {
			return CheckoutResult{}, err
		}
	}

	now := s.now()
	order := domain.Order{
		UserID:          cmd.UserID,
		CustomerEmail:   cmd.Email,
		Status:          domain.OrderStatusPending,
		PaymentMethod:   cmd.PaymentMethod,
		DeliveryMethod:  cmd.DeliveryMethod,
		DeliveryAddress: cmd.DeliveryAddress,
		TotalAmount:     domain.SumLines(lines),
		Items:           make([]domain.OrderItem, 0, len(lines)),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, line := range lines {
		order.Items = append(order.Items, domain.OrderItem{
			ItemID:        line.ItemID,
			DamagedItemID: line.DamagedItemID,
			ItemName:      line.ItemName,
			Quantity:      line.Quantity,
			UnitPrice:     line.Price,
		})
	}
	order, err = s.orders.Insert(ctx, order)
	if err != nil {
		return CheckoutResult{}, mapRepositoryError(err, nil)
	}

	for _, line := range lines {
		if err := s.stock.Commit(ctx, line.Source(), line.Quantity); err != nil {
			return CheckoutResult{}, err
		}
	}
	lineIDs := make([]int64, 0, len(lines))
	for _, line := range lines {
		lineIDs = append(lineIDs, line.ID)
	}
	removed, err := s.carts.DeleteLines(ctx, cmd.UserID, lineIDs)
	if err != nil {
		return CheckoutResult{}, mapRepositoryError(err, nil)
	}
	if removed != int64(len(lineIDs)) {
		return CheckoutResult{}, fmt.Errorf("%w: cart changed during checkout", ErrConflict)
	}

	result := CheckoutResult{Order: order}
	if !cmd.PaymentMethod.RequiresGateway() {
		return result, nil
	}

	session, err := s.payments.CreateCheckoutSession(ctx, payments.PaymentContext{
		PaymentMethod: string(cmd.PaymentMethod),
		Currency:      domain.Currency,
	}, s.sessionRequest(order, cmd))
	if err != nil {
		s.logger(ctx, "checkout.payment_session.failed", map[string]any{"orderID": order.ID, "error": err.Error()})
		return CheckoutResult{}, fmt.Errorf("%w: %s", ErrPaymentSession, paymentErrorMessage(err))
	}
	if err := s.orders.SetPaymentSession(ctx, order.ID, session.ID); err != nil {
		return CheckoutResult{}, mapRepositoryError(err, ErrOrderNotFound)
	}
	result.Order.PaymentSessionID = session.ID
	result.CheckoutURL = session.RedirectURL
	return result, nil
}

func (s *checkoutService) sessionRequest(order domain.Order, cmd CheckoutCommand) payments.CheckoutSessionRequest {
	items := make([]payments.CheckoutLineItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, payments.CheckoutLineItem{
			Name:     item.ItemName,
			Quantity: int64(item.Quantity),
			Amount:   domain.ToMinorUnits(item.UnitPrice),
			Currency: domain.Currency,
		})
	}
	orderID := strconv.FormatInt(order.ID, 10)
	return payments.CheckoutSessionRequest{
		Amount:             domain.ToMinorUnits(order.TotalAmount),
		Currency:           domain.Currency,
		CustomerEmail:      order.CustomerEmail,
		Description:        "Order #" + order.Number(),
		SuccessURL:         withOrderID(s.successURL, orderID),
		CancelURL:          withOrderID(s.cancelURL, orderID),
		PaymentMethodTypes: payments.PayMongoMethodTypes(string(cmd.PaymentMethod)),
		Metadata: map[string]string{
			"order_id": orderID,
			"user_id":  strconv.FormatInt(order.UserID, 10),
		},
		IdempotencyKey: cmd.IdempotencyKey,
		Items:          items,
	}
}

func (s *checkoutService) HandlePaymentCallback(ctx context.Context, cmd PaymentCallbackCommand) (domain.Order, error) {
	if cmd.OrderID <= 0 {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}
	target := domain.OrderStatusCancelled
	switch cmd.Outcome {
	case PaymentOutcomeSucceeded:
		target = domain.OrderStatusConfirmed
	case PaymentOutcomeFailed:
	default:
		return domain.Order{}, fmt.Errorf("%w: unknown payment outcome %q", ErrInvalidInput, cmd.Outcome)
	}

	if !cmd.Verified && cmd.UserID <= 0 {
		return domain.Order{}, fmt.Errorf("%w: user is required", ErrInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, cmd.OrderID)
	if err != nil {
		return domain.Order{}, mapRepositoryError(err, ErrOrderNotFound)
	}
	// Another customer's order reads as missing so ids cannot be probed.
	if !cmd.Verified && order.UserID != cmd.UserID {
		s.logger(ctx, "checkout.callback.foreign_order", map[string]any{"orderID": order.ID, "userID": cmd.UserID})
		return domain.Order{}, fmt.Errorf("%w: id %d", ErrOrderNotFound, cmd.OrderID)
	}
	if !order.PaymentMethod.RequiresGateway() {
		return domain.Order{}, fmt.Errorf("%w: order %d is not paid through a gateway", ErrInvalidInput, order.ID)
	}
	if sid := strings.TrimSpace(cmd.SessionID); sid != "" && order.PaymentSessionID != "" && sid != order.PaymentSessionID {
		return domain.Order{}, fmt.Errorf("%w: session does not belong to order %d", ErrInvalidInput, order.ID)
	}
	if order.Status != domain.OrderStatusPending {
		s.logger(ctx, "checkout.callback.ignored", map[string]any{"orderID": order.ID, "status": string(order.Status)})
		return order, nil
	}

	return s.orderFlow.UpdateStatus(ctx, UpdateOrderStatusCommand{
		OrderID:   order.ID,
		Status:    target,
		OnlyFrom:  domain.OrderStatusPending,
		PaymentID: strings.TrimSpace(cmd.PaymentID),
	})
}

func (s *checkoutService) normaliseCommand(cmd CheckoutCommand) (CheckoutCommand, error) {
	if cmd.UserID <= 0 {
		return cmd, fmt.Errorf("%w: user is required", ErrInvalidInput)
	}
	cmd.PaymentMethod = domain.PaymentMethod(strings.ToLower(strings.TrimSpace(string(cmd.PaymentMethod))))
	if !cmd.PaymentMethod.Valid() {
		return cmd, fmt.Errorf("%w: unsupported payment method %q", ErrInvalidInput, cmd.PaymentMethod)
	}
	cmd.DeliveryMethod = domain.DeliveryMethod(strings.ToLower(strings.TrimSpace(string(cmd.DeliveryMethod))))
	if !cmd.DeliveryMethod.Valid() {
		return cmd, fmt.Errorf("%w: unsupported delivery method %q", ErrInvalidInput, cmd.DeliveryMethod)
	}
	cmd.DeliveryAddress = textutil.Truncate(textutil.PlainText(cmd.DeliveryAddress), maxDeliveryAddressLength)
	if cmd.DeliveryMethod == domain.DeliveryMethodDelivery && cmd.DeliveryAddress == "" {
		return cmd, fmt.Errorf("%w: delivery address is required for delivery orders", ErrInvalidInput)
	}
	cmd.Email = strings.TrimSpace(cmd.Email)
	cmd.IdempotencyKey = strings.TrimSpace(cmd.IdempotencyKey)
	return cmd, nil
}

func withOrderID(base, orderID string) string {
	parsed, err := url.Parse(base)
	if err != nil {
		return base + "?order_id=" + url.QueryEscape(orderID)
	}
	query := parsed.Query()
	query.Set("order_id", orderID)
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

func paymentErrorMessage(err error) string {
	var sessErr *payments.SessionError
	if errors.As(err, &sessErr) && sessErr.Message != "" {
		return sessErr.Message
	}
	return err.Error()
}

func checkoutOutcome(err error) string {
	switch {
	case errors.Is(err, ErrCartEmpty):
		return "cart_empty"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrPaymentSession):
		return "payment_session_failed"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "failed"
	}
}
