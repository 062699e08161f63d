package comms_errors

import (
	"context"
	"errors"
	"net/http"
)

// Common errors
var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrInvalidInput   = errors.New("invalid input")
	ErrRateLimited    = errors.New("rate limited")
	ErrQueueFull      = errors.New("queue full")
	ErrBackendTimeout = errors.New("backend timeout")
	ErrRoomFull       = errors.New("room full")
	ErrCallEnded      = errors.New("call ended")
	ErrInternal       = errors.New("internal error")
)

// Kind maps an error to its wire-level error{kind} token.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthenticated"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_frame"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrBackendTimeout), errors.Is(err, context.DeadlineExceeded):
		return "backend_timeout"
	case errors.Is(err, ErrConflict), errors.Is(err, ErrRoomFull), errors.Is(err, ErrCallEnded):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}

// Internal reports whether err is a server fault rather than an operational
// condition the client can act on. Errors with no dedicated kind are grouped
// with ErrInternal.
func Internal(err error) bool {
	return Kind(err) == Kind(ErrInternal)
}

// HTTPStatus maps an error to a REST status code.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict), errors.Is(err, ErrRoomFull), errors.Is(err, ErrCallEnded):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrBackendTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
