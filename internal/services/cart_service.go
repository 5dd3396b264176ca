package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/RLASH18/abg-prime-v2/internal/domain"
	"github.com/RLASH18/abg-prime-v2/internal/repositories"
)

// CartServiceDeps wires the cart service collaborators.
type CartServiceDeps struct {
	Carts      repositories.CartRepository
	Stock      StockLedger
	UnitOfWork repositories.UnitOfWork
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type cartService struct {
	carts      repositories.CartRepository
	stock      StockLedger
	unitOfWork repositories.UnitOfWork
	now        func() time.Time
	logger     func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService validating required dependencies.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Stock == nil {
		return nil, errors.New("cart service: stock ledger is required")
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
	return &cartService{
		carts:      deps.Carts,
		stock:      deps.Stock,
		unitOfWork: unit,
		now:        func() time.Time { return clock().UTC() },
		logger:     logger,
	}, nil
}

func (s *cartService) AddToCart(ctx context.Context, cmd AddToCartCommand) (domain.CartLine, error) {
	if cmd.UserID <= 0 || cmd.ItemID <= 0 {
		return domain.CartLine{}, fmt.Errorf("%w: user and item are required", ErrInvalidInput)
	}
	if cmd.Quantity <= 0 {
		return domain.CartLine{}, fmt.Errorf("%w: quantity must be at least 1", ErrInvalidInput)
	}

	source := domain.ItemSource(cmd.ItemID)
	if cmd.DamagedItemID != nil {
		source = domain.DamagedItemSource(cmd.ItemID, *cmd.DamagedItemID)
	}

	var line domain.CartLine
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		level, err := s.stock.Level(txCtx, source)
		if err != nil {
			return err
		}

		existing, err := s.carts.FindMatching(txCtx, cmd.UserID, cmd.ItemID, source.DamagedItemIDPtr())
		found := err == nil
		if err != nil && !isNotFound(err) {
			return mapRepositoryError(err, ErrCartItemNotFound)
		}

		requested := cmd.Quantity
		if found {
			requested += existing.Quantity
		}
		if !level.Covers(requested) {
			return &StockError{Source: source, Name: level.Name, Requested: requested, Available: level.Available}
		}

		now := s.now()
		if found {
			existing.Quantity = requested
			existing.Price = level.Price
			existing.UpdatedAt = now
			if err := s.carts.Update(txCtx, existing); err != nil {
				return mapRepositoryError(err, ErrCartItemNotFound)
			}
			line = existing
			return nil
		}

		inserted, err := s.carts.Insert(txCtx, domain.CartLine{
			UserID:        cmd.UserID,
			ItemID:        cmd.ItemID,
			DamagedItemID: source.DamagedItemIDPtr(),
			ItemName:      level.Name,
			Quantity:      requested,
			Price:         level.Price,
			Selected:      true,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
		if err != nil {
			return mapRepositoryError(err, ErrItemNotFound)
		}
		line = inserted
		line.ItemName = level.Name
		return nil
	})
	if err != nil {
		return domain.CartLine{}, err
	}

	s.logger(ctx, "cart.item.added", map[string]any{
		"userID":   cmd.UserID,
		"source":   source.String(),
		"quantity": line.Quantity,
	})
	return line, nil
}

func (s *cartService) UpdateQuantity(ctx context.Context, cmd UpdateCartQuantityCommand) (domain.CartLine, error) {
	if cmd.Quantity <= 0 {
		return domain.CartLine{}, fmt.Errorf("%w: quantity must be at least 1", ErrInvalidInput)
	}

	line, err := s.carts.FindByID(ctx, cmd.UserID, cmd.LineID)
	if err != nil {
		return domain.CartLine{}, mapRepositoryError(err, ErrCartItemNotFound)
	}

	level, err := s.stock.Level(ctx, line.Source())
	if err != nil {
		return domain.CartLine{}, err
	}
	if !level.Covers(cmd.Quantity) {
		return domain.CartLine{}, &StockError{Source: line.Source(), Name: level.Name, Requested: cmd.Quantity, Available: level.Available}
	}

	line.Quantity = cmd.Quantity
	line.UpdatedAt = s.now()
	if err := s.carts.Update(ctx, line); err != nil {
		return domain.CartLine{}, mapRepositoryError(err, ErrCartItemNotFound)
	}
	return line, nil
}

func (s *cartService) RemoveFromCart(ctx context.Context, userID, lineID int64) error {
	return mapRepositoryError(s.carts.Delete(ctx, userID, lineID), ErrCartItemNotFound)
}

func (s *cartService) ClearCart(ctx context.Context, userID int64) error {
	return mapRepositoryError(s.carts.DeleteByUser(ctx, userID), nil)
}

func (s *cartService) ToggleSelection(ctx context.Context, userID, lineID int64) (domain.CartLine, error) {
	line, err := s.carts.FindByID(ctx, userID, lineID)
	if err != nil {
		return domain.CartLine{}, mapRepositoryError(err, ErrCartItemNotFound)
	}
	line.Selected = !line.Selected
	line.UpdatedAt = s.now()
	if err := s.carts.Update(ctx, line); err != nil {
		return domain.CartLine{}, mapRepositoryError(err, ErrCartItemNotFound)
	}
	return line, nil
}

func (s *cartService) ToggleAllSelection(ctx context.Context, userID int64, selected bool) error {
	return mapRepositoryError(s.carts.SetSelectedAll(ctx, userID, selected), nil)
}

func (s *cartService) GetCart(ctx context.Context, userID int64) (CartView, error) {
	lines, err := s.carts.ListByUser(ctx, userID)
	if err != nil {
		return CartView{}, mapRepositoryError(err, nil)
	}

	view := CartView{Lines: lines, Total: domain.SumLines(lines), SelectedTotal: decimal.Zero}
	for _, line := range lines {
		view.Count += line.Quantity
		if line.Selected {
			view.SelectedTotal = view.SelectedTotal.Add(line.Subtotal())
		}
	}
	return view, nil
}

func (s *cartService) Total(ctx context.Context, userID int64) (decimal.Decimal, error) {
	lines, err := s.carts.ListByUser(ctx, userID)
	if err != nil {
		return decimal.Zero, mapRepositoryError(err, nil)
	}
	return domain.SumLines(lines), nil
}

func (s *cartService) SelectedTotal(ctx context.Context, userID int64) (decimal.Decimal, error) {
	lines, err := s.SelectedLines(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return domain.SumLines(lines), nil
}

func (s *cartService) SelectedLines(ctx context.Context, userID int64) ([]domain.CartLine, error) {
	lines, err := s.carts.ListSelected(ctx, userID)
	if err != nil {
		return nil, mapRepositoryError(err, nil)
	}
	return lines, nil
}
