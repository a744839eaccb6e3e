package transaction

import (
	"errors"
	"fmt"
)

// InvalidTransactionError reports a signature, field or state precondition
// failure with the detail of what went wrong.
type InvalidTransactionError struct {
	Detail string
}

// NewInvalidTransaction constructs an InvalidTransactionError.
func NewInvalidTransaction(detail string) error {
	return &InvalidTransactionError{Detail: detail}
}

// Error implements the error interface.
func (e *InvalidTransactionError) Error() string {
	return fmt.Sprintf("invalid transaction: %s", e.Detail)
}

// IsInvalidTransaction reports whether err is an InvalidTransactionError.
func IsInvalidTransaction(err error) bool {
	var ite *InvalidTransactionError
	return errors.As(err, &ite)
}
