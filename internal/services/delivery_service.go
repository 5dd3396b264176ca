package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	domain "github.com/RLASH18/abg-prime-v2/internal/domain"
	"github.com/RLASH18/abg-prime-v2/internal/platform/textutil"
	"github.com/RLASH18/abg-prime-v2/internal/repositories"
)

const (
	defaultScheduleOffset = 24 * time.Hour
	maxDriverNameLength   = 100
	maxRemarksLength      = 1000
)

// DeliveryServiceDeps wires delivery persistence and the order side of the status sync.
type DeliveryServiceDeps struct {
	Deliveries repositories.DeliveryRepository
	Orders     repositories.OrderRepository
	UnitOfWork repositories.UnitOfWork
	Proofs     ProofLinker
	// Events receives order.status.changed when a delivery moves its order.
	Events OrderEventPublisher
	// ScheduleOffset is added to the assembly date to get the initial scheduled date.
	ScheduleOffset time.Duration
	Clock          func() time.Time
	Logger         func(ctx context.Context, event string, fields map[string]any)
}

type deliveryService struct {
	deliveries     repositories.DeliveryRepository
	orders         repositories.OrderRepository
	unitOfWork     repositories.UnitOfWork
	proofs         ProofLinker
	events         OrderEventPublisher
	scheduleOffset time.Duration
	now            func() time.Time
	logger         func(context.Context, string, map[string]any)
}

// NewDeliveryService constructs a DeliveryService.
func NewDeliveryService(deps DeliveryServiceDeps) (DeliveryService, error) {
	if deps.Deliveries == nil {
		return nil, errors.New("delivery service: delivery repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("delivery service: order repository is required")
	}
	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	offset := deps.ScheduleOffset
	if offset <= 0 {
		offset = defaultScheduleOffset
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &deliveryService{
		deliveries:     deps.Deliveries,
		orders:         deps.Orders,
		unitOfWork:     unit,
		proofs:         deps.Proofs,
		events:         deps.Events,
		scheduleOffset: offset,
		now:            func() time.Time { return clock().UTC() },
		logger:         logger,
	}, nil
}

func (s *deliveryService) EnsureDelivery(ctx context.Context, order domain.Order) (domain.Delivery, bool, error) {
	if order.DeliveryMethod != domain.DeliveryMethodDelivery {
		return domain.Delivery{}, false, nil
	}
	existing, err := s.deliveries.FindByOrderID(ctx, order.ID)
	if err == nil {
		return existing, false, nil
	}
	if !isNotFound(err) {
		return domain.Delivery{}, false, mapRepositoryError(err, ErrDeliveryNotFound)
	}

	now := s.now()
	delivery, err := s.deliveries.Insert(ctx, domain.Delivery{
		OrderID:       order.ID,
		Status:        domain.DeliveryStatusScheduled,
		ScheduledDate: dateOf(now.Add(s.scheduleOffset)),
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		if isConflict(err) {
			if existing, findErr := s.deliveries.FindByOrderID(ctx, order.ID); findErr == nil {
				return existing, false, nil
			}
		}
		return domain.Delivery{}, false, mapRepositoryError(err, nil)
	}
	s.logger(ctx, "delivery.created", map[string]any{"orderID": order.ID, "deliveryID": delivery.ID})
	return delivery, true, nil
}

func (s *deliveryService) SyncFromOrder(ctx context.Context, orderID int64, status domain.OrderStatus) error {
	target, ok := domain.DeliveryStatusFor(status)
	if !ok {
		return nil
	}
	delivery, err := s.deliveries.FindByOrderID(ctx, orderID)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return mapRepositoryError(err, ErrDeliveryNotFound)
	}
	if !domain.ShouldSync(delivery.Status, target) {
		return nil
	}

	now := s.now()
	delivery.Status = target
	delivery.UpdatedAt = now
	stampDelivered(&delivery, now)
	if err := s.deliveries.Update(ctx, delivery); err != nil {
		return mapRepositoryError(err, ErrDeliveryNotFound)
	}
	s.logger(ctx, "delivery.synced", map[string]any{"orderID": orderID, "deliveryID": delivery.ID, "status": string(target)})
	return nil
}

// UpdateStatus changes a delivery and, unless told otherwise, moves its order to the mapped status
// in the same transaction.
func (s *deliveryService) UpdateStatus(ctx context.Context, cmd UpdateDeliveryCommand) (updated domain.Delivery, err error) {
	status, ok := domain.ParseDeliveryStatus(string(cmd.Status))
	if !ok {
		return domain.Delivery{}, fmt.Errorf("%w: unknown delivery status %q", ErrInvalidInput, cmd.Status)
	}
	driver := textutil.PlainText(cmd.DriverName)
	if len([]rune(driver)) > maxDriverNameLength {
		return domain.Delivery{}, fmt.Errorf("%w: driver name exceeds %d characters", ErrInvalidInput, maxDriverNameLength)
	}
	remarks := textutil.Truncate(textutil.PlainText(cmd.Remarks), maxRemarksLength)
	proof := strings.TrimSpace(cmd.ProofOfDelivery)

	ctx, span := tracer.Start(ctx, "deliveries.UpdateStatus")
	span.SetAttributes(attribute.Int64("delivery.id", cmd.DeliveryID), attribute.String("delivery.status", string(status)))
	defer func() { endSpan(span, err) }()

	var orderEvent *OrderEvent
	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		orderEvent = nil
		delivery, err := s.deliveries.FindByID(txCtx, cmd.DeliveryID)
		if err != nil {
			return mapRepositoryError(err, ErrDeliveryNotFound)
		}
		if delivery.Status != status && !delivery.Status.CanTransitionTo(status) {
			return &TransitionError{Entity: "delivery", From: string(delivery.Status), To: string(status)}
		}
		// The order row is locked before the delivery row is written, matching the order-driven path.
		var order domain.Order
		if !cmd.SkipOrderSync {
			order, err = s.orders.FindForUpdate(txCtx, delivery.OrderID)
			if err != nil {
				return mapRepositoryError(err, ErrOrderNotFound)
			}
		}

		now := s.now()
		delivery.Status = status
		delivery.UpdatedAt = now
		if driver != "" {
			delivery.DriverName = driver
		}
		if cmd.ScheduledDate != nil && !cmd.ScheduledDate.IsZero() {
			delivery.ScheduledDate = dateOf(cmd.ScheduledDate.UTC())
		}
		if remarks != "" {
			delivery.Remarks = remarks
		}
		if proof != "" {
			delivery.ProofOfDelivery = proof
		}
		stampDelivered(&delivery, now)

		if err := s.deliveries.Update(txCtx, delivery); err != nil {
			return mapRepositoryError(err, ErrDeliveryNotFound)
		}
		updated = delivery

		if cmd.SkipOrderSync {
			return nil
		}
		orderEvent, err = s.syncOrder(txCtx, order, delivery, cmd.ActorID)
		return err
	})
	if err != nil {
		return domain.Delivery{}, err
	}

	if orderEvent != nil {
		span.SetAttributes(
			attribute.Int64("order.id", orderEvent.OrderID),
			attribute.String("order.status", string(orderEvent.CurrentStatus)),
		)
		s.logger(ctx, "order.status.updated", map[string]any{
			"orderID":    orderEvent.OrderID,
			"deliveryID": updated.ID,
			"from":       string(orderEvent.PreviousStatus),
			"to":         string(orderEvent.CurrentStatus),
			"actorID":    orderEvent.ActorID,
		})
		publishOrderEvent(ctx, s.events, s.logger, *orderEvent)
	}
	return updated, nil
}

// syncOrder moves the order to the status mapped from delivery. It returns the event to publish
// once the transaction commits, or nil when the order stays put.
func (s *deliveryService) syncOrder(ctx context.Context, order domain.Order, delivery domain.Delivery, actorID int64) (*OrderEvent, error) {
	target, ok := domain.OrderStatusFor(delivery.Status)
	if !ok {
		return nil, nil
	}
	if !domain.ShouldSync(order.Status, target) {
		return nil, nil
	}
	if !order.Status.CanSyncTo(target) {
		s.logger(ctx, "delivery.order_sync.skipped", map[string]any{
			"orderID": order.ID,
			"from":    string(order.Status),
			"to":      string(target),
		})
		return nil, nil
	}
	now := s.now()
	if err := s.orders.UpdateStatus(ctx, order.ID, target, now); err != nil {
		return nil, mapRepositoryError(err, ErrOrderNotFound)
	}
	s.logger(ctx, "delivery.order_synced", map[string]any{
		"orderID":    order.ID,
		"deliveryID": delivery.ID,
		"from":       string(order.Status),
		"to":         string(target),
	})
	return &OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		OrderNumber:    order.Number(),
		PreviousStatus: order.Status,
		CurrentStatus:  target,
		ActorID:        actorID,
		OccurredAt:     now,
	}, nil
}

func (s *deliveryService) GetDelivery(ctx context.Context, deliveryID int64) (DeliveryView, error) {
	delivery, err := s.deliveries.FindByID(ctx, deliveryID)
	if err != nil {
		return DeliveryView{}, mapRepositoryError(err, ErrDeliveryNotFound)
	}
	view := DeliveryView{Delivery: delivery}
	if delivery.ProofOfDelivery == "" || s.proofs == nil {
		return view, nil
	}
	link, expires, err := s.proofs.ProofURL(ctx, delivery.ProofOfDelivery)
	if err != nil {
		s.logger(ctx, "delivery.proof_url.failed", map[string]any{"deliveryID": delivery.ID, "error": err.Error()})
		return view, nil
	}
	view.ProofURL = link
	view.ProofExpiresAt = expires
	return view, nil
}

func stampDelivered(delivery *domain.Delivery, now time.Time) {
	if delivery.Status == domain.DeliveryStatusDelivered && delivery.ActualDeliveryDate == nil {
		today := dateOf(now)
		delivery.ActualDeliveryDate = &today
	}
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
