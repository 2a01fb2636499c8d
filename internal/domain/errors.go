package domain

import "errors"

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrUserNotFound         = errors.New("user_not_found")
	ErrOrderNotFound        = errors.New("order_not_found")
	ErrOrderNotCancellable  = errors.New("order_not_cancellable")
	ErrInsufficientBalance  = errors.New("insufficient_balance")
	ErrInsufficientHoldings = errors.New("insufficient_holdings")
	ErrUnknownSymbol        = errors.New("unknown_symbol")
	ErrForbidden            = errors.New("forbidden")
)

// ValidationError represents a request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
