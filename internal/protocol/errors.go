package protocol

import (
	"errors"
	"fmt"
)

// ErrMalformedFrame matches every decode validation failure
var ErrMalformedFrame = errors.New("malformed eISCP frame")

// FrameError describes why a buffer could not be decoded.
// Field names the header field or segment that failed validation.
type FrameError struct {
	Field   string
	Message string
}

// Error implements the error interface
func (e *FrameError) Error() string {
	return e.Message
}

// Is makes errors.Is(err, ErrMalformedFrame) true for every FrameError
func (e *FrameError) Is(target error) bool {
	return target == ErrMalformedFrame
}

func badValue(field string, expected, got interface{}) *FrameError {
	return &FrameError{
		Field:   field,
		Message: fmt.Sprintf("bad %s value (expected %v, got %v)", field, expected, got),
	}
}
