package handlers

import (
	"errors"
	"net/http"

	"bidding-engine/internal/domain"
)

// StatusFor maps the engine's error taxonomy onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrBidTooLow),
		errors.Is(err, domain.ErrAuctionClosed):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrTimeout),
		errors.Is(err, domain.ErrConcurrencyConflict):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// errorBody hides internal details behind a generic message.
func errorBody(err error) ErrorResponse {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		return ErrorResponse{Error: "internal error", Reason: "internal"}
	}
	return ErrorResponse{Error: err.Error(), Reason: domain.RejectionReason(err)}
}
