package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/RLASH18/abg-prime-v2/internal/domain"
	"github.com/RLASH18/abg-prime-v2/internal/platform/textutil"
	"github.com/RLASH18/abg-prime-v2/internal/repositories"
)

// DamagedItemServiceDeps wires damaged stock persistence.
type DamagedItemServiceDeps struct {
	Items        repositories.ItemRepository
	DamagedItems repositories.DamagedItemRepository
	Stock        StockLedger
	UnitOfWork   repositories.UnitOfWork
	Clock        func() time.Time
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

type damagedItemService struct {
	items      repositories.ItemRepository
	damaged    repositories.DamagedItemRepository
	stock      StockLedger
	unitOfWork repositories.UnitOfWork
	now        func() time.Time
	logger     func(context.Context, string, map[string]any)
}

// NewDamagedItemService constructs a DamagedItemService.
func NewDamagedItemService(deps DamagedItemServiceDeps) (DamagedItemService, error) {
	if deps.Items == nil {
		return nil, errors.New("damaged item service: item repository is required")
	}
	if deps.DamagedItems == nil {
		return nil, errors.New("damaged item service: damaged item repository is required")
	}
	if deps.Stock == nil {
		return nil, errors.New("damaged item service: stock ledger is required")
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
	return &damagedItemService{
		items:      deps.Items,
		damaged:    deps.DamagedItems,
		stock:      deps.Stock,
		unitOfWork: unit,
		now:        func() time.Time { return clock().UTC() },
		logger:     logger,
	}, nil
}

// MarkAsDamaged moves qty units of an item into a new discounted pool.
func (s *damagedItemService) MarkAsDamaged(ctx context.Context, cmd MarkDamagedCommand) (domain.DamagedItem, error) {
	if cmd.Quantity <= 0 {
		return domain.DamagedItem{}, fmt.Errorf("%w: quantity must be at least 1", ErrInvalidInput)
	}
	if cmd.DiscountAmount.IsNegative() {
		return domain.DamagedItem{}, fmt.Errorf("%w: discount amount cannot be negative", ErrInvalidInput)
	}
	status := cmd.Status
	if status == "" {
		status = domain.DamagedItemStatusDamaged
	}
	if !status.Valid() {
		return domain.DamagedItem{}, fmt.Errorf("%w: unknown damaged item status %q", ErrInvalidInput, cmd.Status)
	}

	var created domain.DamagedItem
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		item, err := s.items.FindForUpdate(txCtx, cmd.ItemID)
		if err != nil {
			return mapRepositoryError(err, ErrItemNotFound)
		}
		price, percentage := discountFor(item.UnitPrice, cmd.DiscountAmount)

		if err := s.stock.Commit(txCtx, domain.ItemSource(item.ID), cmd.Quantity); err != nil {
			return err
		}
		now := s.now()
		created, err = s.damaged.Insert(txCtx, domain.DamagedItem{
			ItemID:             item.ID,
			Quantity:           cmd.Quantity,
			DiscountedPrice:    price,
			DiscountPercentage: percentage,
			Status:             status,
			Remarks:            textutil.Truncate(textutil.PlainText(cmd.Remarks), maxRemarksLength),
			CreatedAt:          now,
			UpdatedAt:          now,
		})
		return mapRepositoryError(err, ErrItemNotFound)
	})
	if err != nil {
		return domain.DamagedItem{}, err
	}
	s.logger(ctx, "damaged_item.created", map[string]any{"itemID": created.ItemID, "damagedItemID": created.ID, "quantity": created.Quantity})
	return created, nil
}

func (s *damagedItemService) UpdateDamagedItem(ctx context.Context, cmd UpdateDamagedItemCommand) (domain.DamagedItem, error) {
	if cmd.Status != nil && !cmd.Status.Valid() {
		return domain.DamagedItem{}, fmt.Errorf("%w: unknown damaged item status %q", ErrInvalidInput, *cmd.Status)
	}
	damaged, err := s.damaged.FindByID(ctx, cmd.DamagedItemID)
	if err != nil {
		return domain.DamagedItem{}, mapRepositoryError(err, ErrDamagedItemNotFound)
	}
	if cmd.Status != nil {
		damaged.Status = *cmd.Status
	}
	if cmd.Remarks != nil {
		damaged.Remarks = textutil.Truncate(textutil.PlainText(*cmd.Remarks), maxRemarksLength)
	}
	damaged.UpdatedAt = s.now()
	if err := s.damaged.Update(ctx, damaged); err != nil {
		return domain.DamagedItem{}, mapRepositoryError(err, ErrDamagedItemNotFound)
	}
	return damaged, nil
}

// DeleteDamagedItem removes the pool and returns its remaining units to the parent item.
func (s *damagedItemService) DeleteDamagedItem(ctx context.Context, damagedItemID int64) error {
	return s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		damaged, err := s.damaged.FindForUpdate(txCtx, damagedItemID)
		if err != nil {
			return mapRepositoryError(err, ErrDamagedItemNotFound)
		}
		if damaged.Quantity > 0 {
			if err := s.stock.Restore(txCtx, domain.ItemSource(damaged.ItemID), damaged.Quantity); err != nil {
				return err
			}
		}
		if err := s.damaged.Delete(txCtx, damaged.ID); err != nil {
			return mapRepositoryError(err, ErrDamagedItemNotFound)
		}
		s.logger(txCtx, "damaged_item.deleted", map[string]any{
			"damagedItemID": damaged.ID,
			"itemID":        damaged.ItemID,
			"restored":      damaged.Quantity,
		})
		return nil
	})
}

// discountFor returns max(0, price-discount) and the discount as a percentage of price rounded to
// two places.
func discountFor(unitPrice, discount decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	price := unitPrice.Sub(discount)
	if price.IsNegative() {
		price = decimal.Zero
	}
	if !unitPrice.IsPositive() {
		return price, decimal.Zero
	}
	percentage := discount.Div(unitPrice).Mul(decimal.NewFromInt(100)).Round(2)
	return price, percentage
}
