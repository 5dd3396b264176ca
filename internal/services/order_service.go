package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	domain "github.com/RLASH18/abg-prime-v2/internal/domain"
	"github.com/RLASH18/abg-prime-v2/internal/platform/pagination"
	"github.com/RLASH18/abg-prime-v2/internal/repositories"
)

const orderEventStatusChanged = "order.status.changed"

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        int64
	OrderNumber    string
	PreviousStatus domain.OrderStatus
	CurrentStatus  domain.OrderStatus
	ActorID        int64
	OccurredAt     time.Time
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders     repositories.OrderRepository
	Billing    BillingService
	Deliveries DeliveryService
	UnitOfWork repositories.UnitOfWork
	Notifier   Notifier
	Events     OrderEventPublisher
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	billing    BillingService
	deliveries DeliveryService
	unitOfWork repositories.UnitOfWork
	notifier   Notifier
	events     OrderEventPublisher
	clock      func() time.Time
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService constructs an OrderService validating required dependencies.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Billing == nil {
		return nil, errors.New("order service: billing service is required")
	}
	if deps.Deliveries == nil {
		return nil, errors.New("order service: delivery service is required")
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
	return &orderService{
		orders:     deps.Orders,
		billing:    deps.Billing,
		deliveries: deps.Deliveries,
		unitOfWork: unit,
		notifier:   deps.Notifier,
		events:     deps.Events,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return domain.CursorPage[domain.Order]{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *filter.Status)
	}
	if filter.Pagination.PageSize <= 0 {
		filter.Pagination.PageSize = pagination.DefaultPageSize
	}
	if filter.Pagination.PageSize > pagination.DefaultMaxPageSize {
		filter.Pagination.PageSize = pagination.DefaultMaxPageSize
	}
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, mapRepositoryError(err, nil)
	}
	return page, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID int64) (domain.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, mapRepositoryError(err, ErrOrderNotFound)
	}
	return order, nil
}

// UpdateStatus is the single entry point of the order state machine. The status write and every
// billing and delivery side effect share one transaction; the confirmation notice goes out after commit.
func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (updated domain.Order, err error) {
	status, ok := domain.ParseOrderStatus(string(cmd.Status))
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: unknown order status %q", ErrInvalidInput, cmd.Status)
	}

	ctx, span := tracer.Start(ctx, "orders.UpdateStatus")
	span.SetAttributes(attribute.Int64("order.id", cmd.OrderID), attribute.String("order.status", string(status)))
	defer func() { endSpan(span, err) }()

	var (
		previous domain.OrderStatus
		changed  bool
	)
	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		changed = false
		order, err := s.orders.FindForUpdate(txCtx, cmd.OrderID)
		if err != nil {
			return mapRepositoryError(err, ErrOrderNotFound)
		}
		updated = order
		previous = order.Status

		if cmd.OnlyFrom != "" && order.Status != cmd.OnlyFrom {
			return nil
		}
		if !domain.ShouldSync(order.Status, status) {
			return nil
		}
		if !order.Status.CanTransitionTo(status) {
			return &TransitionError{Entity: "order", From: string(order.Status), To: string(status)}
		}

		now := s.clock()
		if err := s.orders.UpdateStatus(txCtx, order.ID, status, now); err != nil {
			return mapRepositoryError(err, ErrOrderNotFound)
		}
		if paymentID := strings.TrimSpace(cmd.PaymentID); paymentID != "" {
			if err := s.orders.SetPaymentID(txCtx, order.ID, paymentID); err != nil {
				return mapRepositoryError(err, ErrOrderNotFound)
			}
			order.PaymentID = paymentID
		}
		order.Status = status
		order.UpdatedAt = now

		if err := s.fanOut(txCtx, order); err != nil {
			return err
		}
		updated = order
		changed = true
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	if !changed {
		s.logger(ctx, "order.status.unchanged", map[string]any{
			"orderID":   updated.ID,
			"status":    string(updated.Status),
			"requested": string(status),
		})
		return updated, nil
	}

	s.logger(ctx, "order.status.updated", map[string]any{
		"orderID": updated.ID,
		"from":    string(previous),
		"to":      string(updated.Status),
		"actorID": cmd.ActorID,
	})
	if updated.Status == domain.OrderStatusConfirmed {
		s.notifyConfirmation(ctx, updated)
	}
	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        updated.ID,
		OrderNumber:    updated.Number(),
		PreviousStatus: previous,
		CurrentStatus:  updated.Status,
		ActorID:        cmd.ActorID,
		OccurredAt:     updated.UpdatedAt,
	})
	return updated, nil
}

// fanOut applies the side effects keyed on the new status.
func (s *orderService) fanOut(ctx context.Context, order domain.Order) error {
	switch order.Status {
	case domain.OrderStatusConfirmed:
		if _, _, err := s.billing.EnsureBilling(ctx, order); err != nil {
			return err
		}
	case domain.OrderStatusPaid:
		if _, err := s.billing.MarkPaid(ctx, order.ID); err != nil {
			return err
		}
	case domain.OrderStatusCancelled:
		if err := s.billing.MarkCancelled(ctx, order.ID); err != nil {
			return err
		}
	case domain.OrderStatusAssembled:
		if _, _, err := s.deliveries.EnsureDelivery(ctx, order); err != nil {
			return err
		}
	}

	if _, ok := domain.DeliveryStatusFor(order.Status); ok {
		return s.deliveries.SyncFromOrder(ctx, order.ID, order.Status)
	}
	return nil
}

func (s *orderService) notifyConfirmation(ctx context.Context, order domain.Order) {
	if s.notifier == nil {
		s.logger(ctx, "order.notification.skipped", map[string]any{"orderID": order.ID})
		return
	}
	err := s.notifier.NotifyOrderConfirmation(ctx, OrderConfirmation{
		UserID:  order.UserID,
		Email:   order.CustomerEmail,
		Subject: "Order Confirmation - Order #" + order.Number(),
		Order:   order,
	})
	if err != nil {
		s.logger(ctx, "order.notification.failed", map[string]any{
			"orderID": order.ID,
			"error":   err.Error(),
		})
	}
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	publishOrderEvent(ctx, s.events, s.logger, event)
}

// publishOrderEvent is best effort: a failed publish is logged and the committed change stands.
func publishOrderEvent(ctx context.Context, events OrderEventPublisher, logger func(context.Context, string, map[string]any), event OrderEvent) {
	if events == nil {
		return
	}
	if err := events.PublishOrderEvent(ctx, event); err != nil {
		logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": string(event.CurrentStatus),
		})
	}
}
