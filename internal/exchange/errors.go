package exchange

import (
	"errors"
	"fmt"
)

// Call errors, raised synchronously to the caller that triggered them
var (
	ErrMarketNotFound        = errors.New("market not found")
	ErrArgumentsRequired     = errors.New("arguments required")
	ErrConnectionUnavailable = errors.New("connection unavailable")
	ErrConnectionClosed      = errors.New("connection closed")
	ErrBadResponse           = errors.New("bad response")
)

// Error classes an exchange error frame is classified into
var (
	ErrExchange             = errors.New("exchange error")
	ErrAuthentication       = errors.New("authentication error")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrAccountSuspended     = errors.New("account suspended")
	ErrBadRequest           = errors.New("bad request")
	ErrBadSymbol            = errors.New("bad symbol")
	ErrRateLimitExceeded    = errors.New("rate limit exceeded")
	ErrExchangeNotAvailable = errors.New("exchange not available")
	ErrInvalidOrder         = errors.New("invalid order")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrOrderNotFound        = errors.New("order not found")
)

// FrameError is an error frame received from the exchange, classified into
// one of the error classes above.
type FrameError struct {
	Class    error
	Code     string
	Message  string
	Feedback string
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("%v: %s", e.Class, e.Feedback)
}

func (e *FrameError) Unwrap() error {
	return e.Class
}
