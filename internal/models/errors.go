package models

import "errors"

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrInsufficientFunds    = errors.New("insufficient_funds")
	ErrInsufficientHoldings = errors.New("insufficient_holdings")
	ErrPriceUnavailable     = errors.New("price_unavailable")
	ErrOrderNotFound        = errors.New("order_not_found")
	ErrOrderNotCancellable  = errors.New("order_not_cancellable")
	ErrInvalidCredentials   = errors.New("invalid_credentials")
	ErrTraderNotFound       = errors.New("trader_not_found")
	ErrAlreadyFollowing     = errors.New("already_following")
	ErrNotFollowing         = errors.New("not_following")
)

// ValidationError represents an order or request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
