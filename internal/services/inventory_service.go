package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	domain "github.com/RLASH18/abg-prime-v2/internal/domain"
	"github.com/RLASH18/abg-prime-v2/internal/platform/textutil"
	"github.com/RLASH18/abg-prime-v2/internal/repositories"
)

const (
	defaultRestockThreshold = 10
	defaultLowStockLimit    = 50
	otherCategoryPrefix     = "OT"
)

var categoryPrefixes = map[string]string{
	"hand tools":             "HT",
	"power tools":            "PT",
	"construction materials": "CM",
	"locks and security":     "LS",
	"plumbing":               "PL",
	"electrical":             "EL",
	"paint and finishes":     "PF",
	"chemicals":              "CH",
}

// InventoryServiceDeps bundles the collaborators required to construct an inventory service.
type InventoryServiceDeps struct {
	Items      repositories.ItemRepository
	UnitOfWork repositories.UnitOfWork
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type inventoryService struct {
	items      repositories.ItemRepository
	unitOfWork repositories.UnitOfWork
	now        func() time.Time
	logger     func(context.Context, string, map[string]any)
}

// NewInventoryService wires dependencies into a concrete InventoryService implementation.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.Items == nil {
		return nil, errors.New("inventory service: item repository is required")
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
	return &inventoryService{
		items:      deps.Items,
		unitOfWork: unit,
		now:        func() time.Time { return clock().UTC() },
		logger:     logger,
	}, nil
}

// NextItemCode returns the category prefix followed by the next three-digit sequence, e.g. HT004.
func (s *inventoryService) NextItemCode(ctx context.Context, category string) (string, error) {
	category = strings.TrimSpace(category)
	prefix := CategoryPrefix(category)
	latest, err := s.items.LatestByCategory(ctx, category)
	if err != nil {
		if isNotFound(err) {
			return prefix + "001", nil
		}
		return "", mapRepositoryError(err, nil)
	}
	seq, _ := strconv.Atoi(strings.TrimPrefix(latest.Code, prefix))
	return fmt.Sprintf("%s%03d", prefix, seq+1), nil
}

func (s *inventoryService) CreateItem(ctx context.Context, cmd CreateItemCommand) (domain.Item, error) {
	name := textutil.PlainText(cmd.Name)
	category := strings.TrimSpace(cmd.Category)
	switch {
	case name == "":
		return domain.Item{}, fmt.Errorf("%w: item name is required", ErrInvalidInput)
	case category == "":
		return domain.Item{}, fmt.Errorf("%w: category is required", ErrInvalidInput)
	case cmd.UnitPrice.IsNegative():
		return domain.Item{}, fmt.Errorf("%w: unit price cannot be negative", ErrInvalidInput)
	case cmd.Quantity < 0:
		return domain.Item{}, fmt.Errorf("%w: quantity cannot be negative", ErrInvalidInput)
	}
	threshold := defaultRestockThreshold
	if cmd.RestockThreshold != nil {
		if *cmd.RestockThreshold < 0 {
			return domain.Item{}, fmt.Errorf("%w: restock threshold cannot be negative", ErrInvalidInput)
		}
		threshold = *cmd.RestockThreshold
	}

	var created domain.Item
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		code, err := s.NextItemCode(txCtx, category)
		if err != nil {
			return err
		}
		now := s.now()
		created, err = s.items.Insert(txCtx, domain.Item{
			Code:             code,
			Name:             name,
			Brand:            textutil.PlainText(cmd.Brand),
			Category:         category,
			Description:      strings.TrimSpace(cmd.Description),
			UnitPrice:        cmd.UnitPrice,
			Quantity:         cmd.Quantity,
			RestockThreshold: threshold,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
		return mapRepositoryError(err, nil)
	})
	if err != nil {
		return domain.Item{}, err
	}
	s.logger(ctx, "inventory.item.created", map[string]any{"itemID": created.ID, "code": created.Code})
	return created, nil
}

func (s *inventoryService) ListLowStock(ctx context.Context, limit int) ([]domain.Item, error) {
	if limit <= 0 {
		limit = defaultLowStockLimit
	}
	items, err := s.items.ListLowStock(ctx, limit)
	if err != nil {
		return nil, mapRepositoryError(err, nil)
	}
	return items, nil
}

// CategoryPrefix maps a category name to its two-letter item code prefix.
func CategoryPrefix(category string) string {
	if prefix, ok := categoryPrefixes[strings.ToLower(strings.TrimSpace(category))]; ok {
		return prefix
	}
	return otherCategoryPrefix
}
