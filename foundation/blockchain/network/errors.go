package network

import (
	"errors"
	"fmt"
)

// Error reports a framing, size-cap or I/O failure on the wire.
type Error struct {
	Detail string
}

// NewError constructs a network Error.
func NewError(format string, args ...any) error {
	return &Error{Detail: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("network error: %s", e.Detail)
}

// IsNetworkError reports whether err is a network Error.
func IsNetworkError(err error) bool {
	var ne *Error
	return errors.As(err, &ne)
}
