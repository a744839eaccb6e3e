package utxo

import (
	"errors"
	"fmt"

	"github.com/trinitychain/trinitychain/foundation/blockchain/transaction"
)

// TriangleNotFoundError reports a UTXO lookup failure during a state apply.
type TriangleNotFoundError struct {
	ID transaction.Hash
}

// NewTriangleNotFound constructs a TriangleNotFoundError.
func NewTriangleNotFound(id transaction.Hash) error {
	return &TriangleNotFoundError{ID: id}
}

// Error implements the error interface.
func (e *TriangleNotFoundError) Error() string {
	return fmt.Sprintf("triangle %s not found in UTXO set", e.ID)
}

// IsTriangleNotFound reports whether err is a TriangleNotFoundError.
func IsTriangleNotFound(err error) bool {
	var tnf *TriangleNotFoundError
	return errors.As(err, &tnf)
}
