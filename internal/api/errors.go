package api

import (
	"errors"
	"net/http"

	"github.com/bsdavidson/oink/internal/device"
)

// ContextError is a request error that carries its HTTP status
type ContextError struct {
	Message string
	Code    int
}

// NewContextError creates a ContextError; a zero code means 500
func NewContextError(message string, code int) *ContextError {
	if code == 0 {
		code = http.StatusInternalServerError
	}
	return &ContextError{Message: message, Code: code}
}

// Error implements the error interface
func (e *ContextError) Error() string {
	return e.Message
}

// statusFor maps an error to the status code and message written to the client
func statusFor(err error) (int, string) {
	var ce *ContextError
	switch {
	case errors.As(err, &ce):
		return ce.Code, ce.Message
	case errors.Is(err, device.ErrNotConnected):
		return http.StatusInternalServerError, device.ErrNotConnected.Error()
	case errors.Is(err, device.ErrCommandTimedOut):
		return http.StatusGatewayTimeout, device.ErrCommandTimedOut.Error()
	case errors.Is(err, device.ErrClosed):
		return http.StatusInternalServerError, device.ErrClosed.Error()
	default:
		return http.StatusInternalServerError, "Unexpected error"
	}
}
