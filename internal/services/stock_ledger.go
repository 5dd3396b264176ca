package services

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/RLASH18/abg-prime-v2/internal/domain"
	"github.com/RLASH18/abg-prime-v2/internal/repositories"
)

// StockLedgerDeps wires the repositories backing both stock pools.
type StockLedgerDeps struct {
	Items        repositories.ItemRepository
	DamagedItems repositories.DamagedItemRepository
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

type stockLedger struct {
	items   repositories.ItemRepository
	damaged repositories.DamagedItemRepository
	logger  func(context.Context, string, map[string]any)
}

// NewStockLedger constructs a StockLedger.
func NewStockLedger(deps StockLedgerDeps) (StockLedger, error) {
	if deps.Items == nil {
		return nil, errors.New("stock ledger: item repository is required")
	}
	if deps.DamagedItems == nil {
		return nil, errors.New("stock ledger: damaged item repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &stockLedger{items: deps.Items, damaged: deps.DamagedItems, logger: logger}, nil
}

func (l *stockLedger) Level(ctx context.Context, source domain.StockSource) (domain.StockLevel, error) {
	return l.level(ctx, source, false)
}

func (l *stockLedger) Reserve(ctx context.Context, source domain.StockSource, qty int) (domain.StockLevel, error) {
	if qty <= 0 {
		return domain.StockLevel{}, fmt.Errorf("%w: quantity must be at least 1", ErrInvalidInput)
	}
	level, err := l.level(ctx, source, true)
	if err != nil {
		return domain.StockLevel{}, err
	}
	if !level.Covers(qty) {
		return level, &StockError{Source: source, Name: level.Name, Requested: qty, Available: level.Available}
	}
	return level, nil
}

func (l *stockLedger) Commit(ctx context.Context, source domain.StockSource, qty int) error {
	if !source.Valid() {
		return fmt.Errorf("%w: invalid stock source", ErrInvalidInput)
	}
	var err error
	switch source.Kind() {
	case domain.StockSourceDamagedItem:
		err = l.damaged.DecrementStock(ctx, source.DamagedItemID(), qty)
	default:
		err = l.items.DecrementStock(ctx, source.ItemID(), qty)
	}
	if err != nil {
		if repositories.IsInsufficientStock(err) {
			l.logger(ctx, "stock.commit.short", map[string]any{"source": source.String(), "quantity": qty})
			return &StockError{Source: source, Requested: qty}
		}
		return mapRepositoryError(err, notFoundFor(source))
	}
	return nil
}

func (l *stockLedger) Restore(ctx context.Context, source domain.StockSource, qty int) error {
	if !source.Valid() {
		return fmt.Errorf("%w: invalid stock source", ErrInvalidInput)
	}
	var err error
	switch source.Kind() {
	case domain.StockSourceDamagedItem:
		err = l.damaged.IncrementStock(ctx, source.DamagedItemID(), qty)
	default:
		err = l.items.IncrementStock(ctx, source.ItemID(), qty)
	}
	return mapRepositoryError(err, notFoundFor(source))
}

// level resolves the uniform price and availability of a pool. Damaged pools must be resellable and
// belong to the named item.
func (l *stockLedger) level(ctx context.Context, source domain.StockSource, lock bool) (domain.StockLevel, error) {
	if !source.Valid() {
		return domain.StockLevel{}, fmt.Errorf("%w: invalid stock source", ErrInvalidInput)
	}

	findItem := l.items.FindByID
	findDamaged := l.damaged.FindByID
	if lock {
		findItem = l.items.FindForUpdate
		findDamaged = l.damaged.FindForUpdate
	}

	if source.Kind() != domain.StockSourceDamagedItem {
		item, err := findItem(ctx, source.ItemID())
		if err != nil {
			return domain.StockLevel{}, mapRepositoryError(err, ErrItemNotFound)
		}
		return domain.StockLevel{Source: source, Name: item.Name, Price: item.UnitPrice, Available: item.Quantity}, nil
	}

	damaged, err := findDamaged(ctx, source.DamagedItemID())
	if err != nil {
		return domain.StockLevel{}, mapRepositoryError(err, ErrDamagedItemNotFound)
	}
	if !damaged.Purchasable() {
		return domain.StockLevel{}, fmt.Errorf("%w: damaged item %d is %s", ErrDamagedItemNotFound, damaged.ID, damaged.Status)
	}
	if damaged.ItemID != source.ItemID() {
		return domain.StockLevel{}, fmt.Errorf("%w: damaged item %d does not belong to item %d", ErrDamagedItemNotFound, damaged.ID, source.ItemID())
	}
	item, err := l.items.FindByID(ctx, damaged.ItemID)
	if err != nil {
		return domain.StockLevel{}, mapRepositoryError(err, ErrItemNotFound)
	}
	return domain.StockLevel{Source: source, Name: item.Name, Price: damaged.DiscountedPrice, Available: damaged.Quantity}, nil
}

func notFoundFor(source domain.StockSource) error {
	if source.IsDamaged() {
		return ErrDamagedItemNotFound
	}
	return ErrItemNotFound
}
