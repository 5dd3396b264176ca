package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/RLASH18/abg-prime-v2/internal/domain"
	"github.com/RLASH18/abg-prime-v2/internal/repositories"
)

type stubBillingRepo struct {
	repositories.BillingRepository
	findFn   func(context.Context, int64) (domain.Billing, error)
	insertFn func(context.Context, domain.Billing) (domain.Billing, error)
	latestFn func(context.Context, time.Time) (string, error)
}

func (s *stubBillingRepo) FindByOrderID(ctx context.Context, orderID int64) (domain.Billing, error) {
	if s.findFn != nil {
		return s.findFn(ctx, orderID)
	}
	return domain.Billing{}, errNotFound("billing")
}

func (s *stubBillingRepo) Insert(ctx context.Context, b domain.Billing) (domain.Billing, error) {
	if s.insertFn != nil {
		return s.insertFn(ctx, b)
	}
	b.ID = 1
	return b, nil
}

func (s *stubBillingRepo) LatestNumberOn(ctx context.Context, day time.Time) (string, error) {
	if s.latestFn != nil {
		return s.latestFn(ctx, day)
	}
	return "", nil
}

func TestBillingServiceNumbersContinueDailySequence(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, time.March, 3, 23, 59, 0, 0, time.UTC)
	repo := &stubBillingRepo{latestFn: func(context.Context, time.Time) (string, error) {
		return "BL-20250303-0041", nil
	}}
	svc, err := NewBillingService(BillingServiceDeps{Billings: repo, Clock: fixedClock(now)})
	require.NoError(t, err)

	billing, created, err := svc.EnsureBilling(context.Background(), domain.Order{ID: 5, TotalAmount: decimal.NewFromInt(10)})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "BL-20250303-0042", billing.Number)
	assert.Equal(t, domain.BillingStatusUnpaid, billing.Status)
}

func TestBillingServiceRetriesNumberCollisions(t *testing.T) {
	t.Parallel()

	attempts := 0
	latest := []string{"", "BL-20251214-0001", "BL-20251214-0002"}
	repo := &stubBillingRepo{
		latestFn: func(context.Context, time.Time) (string, error) {
			return latest[attempts], nil
		},
		insertFn: func(_ context.Context, b domain.Billing) (domain.Billing, error) {
			attempts++
			if attempts < 3 {
				return domain.Billing{}, errConflict("billing number")
			}
			b.ID = 10
			return b, nil
		},
	}
	svc, err := NewBillingService(BillingServiceDeps{Billings: repo, Clock: fixedClock(time.Date(2025, time.December, 14, 8, 0, 0, 0, time.UTC))})
	require.NoError(t, err)

	billing, created, err := svc.EnsureBilling(context.Background(), domain.Order{ID: 9})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, "BL-20251214-0003", billing.Number)
}

func TestBillingServiceGivesUpAfterThreeCollisions(t *testing.T) {
	t.Parallel()

	repo := &stubBillingRepo{insertFn: func(context.Context, domain.Billing) (domain.Billing, error) {
		return domain.Billing{}, errConflict("billing number")
	}}
	svc, err := NewBillingService(BillingServiceDeps{Billings: repo})
	require.NoError(t, err)

	_, _, err = svc.EnsureBilling(context.Background(), domain.Order{ID: 9})
	require.ErrorIs(t, err, ErrConflict)
}

func TestBillingServiceMarkPaidAndCancelled(t *testing.T) {
	t.Parallel()

	rig := newTestRig(t)
	ctx := context.Background()

	require.NoError(t, rig.billing.MarkCancelled(ctx, 77), "no billing yet is fine")
	_, err := rig.billing.MarkPaid(ctx, 77)
	require.ErrorIs(t, err, ErrBillingNotFound)

	_, created, err := rig.billing.EnsureBilling(ctx, domain.Order{ID: 77, TotalAmount: decimal.NewFromInt(300)})
	require.NoError(t, err)
	require.True(t, created)
	_, created, err = rig.billing.EnsureBilling(ctx, domain.Order{ID: 77, TotalAmount: decimal.NewFromInt(300)})
	require.NoError(t, err)
	assert.False(t, created)

	paid, err := rig.billing.MarkPaid(ctx, 77)
	require.NoError(t, err)
	assert.Equal(t, domain.BillingStatusPaid, paid.Status)
	assert.Equal(t, rig.now, *paid.PaidAt)

	require.NoError(t, rig.billing.MarkCancelled(ctx, 77))
	billing, err := rig.billing.GetByOrder(ctx, 77)
	require.NoError(t, err)
	assert.Equal(t, domain.BillingStatusPaid, billing.Status, "paid billings are never voided")
}
