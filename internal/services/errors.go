package services

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/RLASH18/abg-prime-v2/internal/domain"
	"github.com/RLASH18/abg-prime-v2/internal/repositories"
)

var (
	// ErrNotFound is the parent of every entity-specific not-found error.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput signals the caller provided invalid data.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict indicates a concurrent modification or duplicate write.
	ErrConflict = errors.New("conflict")
	// ErrPersistence wraps storage failures that are not otherwise classified.
	ErrPersistence = errors.New("persistence failure")

	// ErrInsufficientStock indicates a stock pool cannot cover the requested quantity.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrCartEmpty indicates checkout was attempted with no selected cart lines.
	ErrCartEmpty = errors.New("cart: no items selected")
	// ErrPaymentSession indicates the payment gateway could not create a checkout session.
	ErrPaymentSession = errors.New("checkout: payment session failed")
	// ErrCheckoutFailed hides internal failures that rolled back a checkout.
	ErrCheckoutFailed = errors.New("checkout: failed")
	// ErrInvalidTransition indicates a status change not present in the transition table.
	ErrInvalidTransition = errors.New("invalid status transition")

	ErrItemNotFound        = fmt.Errorf("item: %w", ErrNotFound)
	ErrDamagedItemNotFound = fmt.Errorf("damaged item: %w", ErrNotFound)
	ErrCartItemNotFound    = fmt.Errorf("cart item: %w", ErrNotFound)
	ErrOrderNotFound       = fmt.Errorf("order: %w", ErrNotFound)
	ErrBillingNotFound     = fmt.Errorf("billing: %w", ErrNotFound)
	ErrDeliveryNotFound    = fmt.Errorf("delivery: %w", ErrNotFound)
)

// StockError reports which stock pool fell short.
type StockError struct {
	Source    domain.StockSource
	Name      string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	name := e.Name
	if name == "" {
		name = e.Source.String()
	}
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", name, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error {
	return ErrInsufficientStock
}

// TransitionError names the rejected edge.
type TransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot move from %s to %s", e.Entity, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// mapRepositoryError lifts repository failures into service sentinels. notFound selects the
// entity-specific error for missing rows. The original error stays in the chain so transaction
// retries can still see driver codes.
func mapRepositoryError(err error, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorInsufficient:
			return fmt.Errorf("%w: %w", ErrInsufficientStock, err)
		case repositories.StockErrorInvalidQuantity:
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			if notFound == nil {
				notFound = ErrNotFound
			}
			return fmt.Errorf("%w: %w", notFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %w", ErrConflict, err)
		}
	}
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// isServiceError reports whether err already carries a caller-facing sentinel.
func isServiceError(err error) bool {
	for _, target := range []error{
		ErrNotFound, ErrInvalidInput, ErrInsufficientStock, ErrCartEmpty,
		ErrPaymentSession, ErrInvalidTransition, ErrCheckoutFailed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func noopLogger(context.Context, string, map[string]any) {}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func isConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}
