package domain

import "errors"

// Business outcomes. These are returned to the caller and never retried.
var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrForbidden     = errors.New("forbidden")
	ErrNotFound      = errors.New("auction not found")
	ErrAuctionClosed = errors.New("auction closed")
	ErrBidTooLow     = errors.New("bid too low")
)

// Infrastructure outcomes.
var (
	// ErrConcurrencyConflict is returned by a store when the expected version
	// no longer matches. The engine retries it a bounded number of times.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrTimeout             = errors.New("store timeout")
	ErrInternal            = errors.New("internal error")
)

// IsBusinessError reports whether err is a deterministic rejection.
func IsBusinessError(err error) bool {
	for _, target := range []error{ErrInvalidInput, ErrInvalidAmount, ErrForbidden, ErrNotFound, ErrAuctionClosed, ErrBidTooLow} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// RejectionReason is the short machine-readable reason used in events and
// websocket messages.
func RejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAuctionClosed):
		return "auction_closed"
	case errors.Is(err, ErrBidTooLow):
		return "bid_too_low"
	case errors.Is(err, ErrConcurrencyConflict):
		return "concurrency_conflict"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	default:
		return "internal"
	}
}
