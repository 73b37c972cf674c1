package bitmart

import (
	"strings"

	"marketsync/internal/exchange"
)

// exactErrors maps the errorCode of an error frame to its class
var exactErrors = map[string]error{
	"30000": exchange.ErrExchange,
	"30001": exchange.ErrAuthentication, // X-BM-KEY is empty
	"30002": exchange.ErrAuthentication, // X-BM-KEY not found
	"30003": exchange.ErrAccountSuspended,
	"30004": exchange.ErrAuthentication, // X-BM-SIGN is empty
	"30005": exchange.ErrAuthentication, // X-BM-SIGN is wrong
	"30006": exchange.ErrAuthentication, // X-BM-TIMESTAMP is empty
	"30007": exchange.ErrAuthentication, // X-BM-TIMESTAMP out of range
	"30008": exchange.ErrAuthentication, // X-BM-TIMESTAMP invalid format
	"30010": exchange.ErrPermissionDenied,
	"30011": exchange.ErrAuthentication, // X-BM-KEY expired
	"30012": exchange.ErrAuthentication, // X-BM-KEY forbidden
	"30013": exchange.ErrAuthentication, // Invalid sign
	"30014": exchange.ErrExchangeNotAvailable,
	"30016": exchange.ErrExchangeNotAvailable,
	"30017": exchange.ErrRateLimitExceeded,
	"30018": exchange.ErrBadRequest,
	"30019": exchange.ErrPermissionDenied,
	"30039": exchange.ErrBadRequest, // Unrecognized request
	"50000": exchange.ErrBadRequest,
	"50004": exchange.ErrBadSymbol,
	"50005": exchange.ErrOrderNotFound,
	"50008": exchange.ErrInvalidOrder,
	"50020": exchange.ErrInsufficientFunds,
	"60005": exchange.ErrAccountSuspended,
}

// broadErrors maps a substring of the error message to its class
var broadErrors = []struct {
	substring string
	class     error
}{
	{"Invalid sign", exchange.ErrAuthentication},
	{"Unauthorized", exchange.ErrAuthentication},
	{"Unrecognized request", exchange.ErrBadRequest},
	{"Symbol not found", exchange.ErrBadSymbol},
	{"Too many requests", exchange.ErrRateLimitExceeded},
	{"Service unavailable", exchange.ErrExchangeNotAvailable},
	{"Balance not enough", exchange.ErrInsufficientFunds},
}

// classify turns an error frame into a FrameError. The exact code table
// wins over the message table; a code neither table knows is a generic
// exchange error.
func classify(code, message string, raw []byte) *exchange.FrameError {
	class, ok := exactErrors[code]
	if !ok {
		class = exchange.ErrExchange
		for _, b := range broadErrors {
			if strings.Contains(message, b.substring) {
				class = b.class
				break
			}
		}
	}
	return &exchange.FrameError{
		Class:    class,
		Code:     code,
		Message:  message,
		Feedback: string(exchange.Bitmart) + " " + string(raw),
	}
}
