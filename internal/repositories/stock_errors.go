package repositories

import (
	"errors"
	"fmt"
)

// StockErrorCode enumerates repository error causes for stock movements.
type StockErrorCode string

const (
	// StockErrorUnknown represents an unspecified failure.
	StockErrorUnknown StockErrorCode = "stock_unknown"
	// StockErrorInsufficient indicates the conditional decrement matched no row.
	StockErrorInsufficient StockErrorCode = "stock_insufficient"
	// StockErrorInvalidQuantity indicates a non-positive quantity was supplied.
	StockErrorInvalidQuantity StockErrorCode = "stock_invalid_quantity"
)

// StockError wraps stock movement failures with machine readable codes.
type StockError struct {
	Op      string
	Code    StockErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *StockError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *StockError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewStockError constructs a typed stock error.
func NewStockError(op string, code StockErrorCode, message string) *StockError {
	if message == "" {
		message = string(code)
	}
	return &StockError{Op: op, Code: code, Message: message}
}

// IsInsufficientStock reports whether err carries StockErrorInsufficient.
func IsInsufficientStock(err error) bool {
	var stockErr *StockError
	return errors.As(err, &stockErr) && stockErr.Code == StockErrorInsufficient
}
