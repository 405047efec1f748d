package device

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by Send when no connection is open
	ErrNotConnected = errors.New("device not connected")

	// ErrConnectTimedOut is returned when the TCP connect does not finish in time
	ErrConnectTimedOut = errors.New("connection timed out")

	// ErrCommandTimedOut is returned when no response with the sent command arrives in time
	ErrCommandTimedOut = errors.New("command timed out")

	// ErrConnectFailed matches every *ConnectError
	ErrConnectFailed = errors.New("connection failed")

	// ErrClosed is returned to pending sends when the connection goes away
	ErrClosed = errors.New("device connection closed")
)

// ConnectError wraps the transport error of a failed connect
type ConnectError struct {
	Address string
	Err     error
}

// Error implements the error interface
func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect to %s: %v", e.Address, e.Err)
}

// Unwrap returns the underlying transport error
func (e *ConnectError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrConnectFailed) true
func (e *ConnectError) Is(target error) bool {
	return target == ErrConnectFailed
}
