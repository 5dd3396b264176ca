package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	domain "github.com/RLASH18/abg-prime-v2/internal/domain"
	"github.com/RLASH18/abg-prime-v2/internal/repositories"
)

const (
	billingNumberPrefix   = "BL-"
	billingNumberAttempts = 3
)

// BillingServiceDeps wires billing persistence.
type BillingServiceDeps struct {
	Billings repositories.BillingRepository
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type billingService struct {
	billings repositories.BillingRepository
	now      func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewBillingService constructs a BillingService.
func NewBillingService(deps BillingServiceDeps) (BillingService, error) {
	if deps.Billings == nil {
		return nil, errors.New("billing service: billing repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &billingService{
		billings: deps.Billings,
		now:      func() time.Time { return clock().UTC() },
		logger:   logger,
	}, nil
}

func (s *billingService) EnsureBilling(ctx context.Context, order domain.Order) (domain.Billing, bool, error) {
	existing, err := s.billings.FindByOrderID(ctx, order.ID)
	if err == nil {
		return existing, false, nil
	}
	if !isNotFound(err) {
		return domain.Billing{}, false, mapRepositoryError(err, ErrBillingNotFound)
	}

	var lastErr error
	for attempt := 0; attempt < billingNumberAttempts; attempt++ {
		now := s.now()
		number, err := s.nextNumber(ctx, now)
		if err != nil {
			return domain.Billing{}, false, err
		}
		billing, err := s.billings.Insert(ctx, domain.Billing{
			OrderID:   order.ID,
			Number:    number,
			Amount:    order.TotalAmount,
			Status:    domain.BillingStatusUnpaid,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err == nil {
			s.logger(ctx, "billing.created", map[string]any{"orderID": order.ID, "number": number})
			return billing, true, nil
		}
		if !isConflict(err) {
			return domain.Billing{}, false, mapRepositoryError(err, nil)
		}
		// Either the number was taken or another writer billed the order first.
		if existing, findErr := s.billings.FindByOrderID(ctx, order.ID); findErr == nil {
			return existing, false, nil
		}
		lastErr = err
	}
	return domain.Billing{}, false, mapRepositoryError(lastErr, nil)
}

func (s *billingService) MarkPaid(ctx context.Context, orderID int64) (domain.Billing, error) {
	billing, err := s.billings.FindByOrderID(ctx, orderID)
	if err != nil {
		return domain.Billing{}, mapRepositoryError(err, ErrBillingNotFound)
	}
	if billing.Status == domain.BillingStatusPaid {
		return billing, nil
	}
	now := s.now()
	billing.Status = domain.BillingStatusPaid
	billing.PaidAt = &now
	billing.UpdatedAt = now
	if err := s.billings.Update(ctx, billing); err != nil {
		return domain.Billing{}, mapRepositoryError(err, ErrBillingNotFound)
	}
	return billing, nil
}

// MarkCancelled voids the unpaid billing of an order. Orders cancelled before confirmation have none.
func (s *billingService) MarkCancelled(ctx context.Context, orderID int64) error {
	billing, err := s.billings.FindByOrderID(ctx, orderID)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return mapRepositoryError(err, ErrBillingNotFound)
	}
	if billing.Status != domain.BillingStatusUnpaid {
		return nil
	}
	billing.Status = domain.BillingStatusCancelled
	billing.UpdatedAt = s.now()
	return mapRepositoryError(s.billings.Update(ctx, billing), ErrBillingNotFound)
}

func (s *billingService) GetByOrder(ctx context.Context, orderID int64) (domain.Billing, error) {
	billing, err := s.billings.FindByOrderID(ctx, orderID)
	if err != nil {
		return domain.Billing{}, mapRepositoryError(err, ErrBillingNotFound)
	}
	return billing, nil
}

// nextNumber formats BL-YYYYMMDD-NNNN, continuing the day's highest sequence.
func (s *billingService) nextNumber(ctx context.Context, now time.Time) (string, error) {
	prefix := billingNumberPrefix + now.Format("20060102") + "-"
	latest, err := s.billings.LatestNumberOn(ctx, now)
	if err != nil {
		return "", mapRepositoryError(err, nil)
	}
	seq := 1
	if len(latest) >= 4 {
		if n, err := strconv.Atoi(latest[len(latest)-4:]); err == nil {
			seq = n + 1
		}
	}
	return fmt.Sprintf("%s%04d", prefix, seq), nil
}
