package staging

import (
	"errors"
	"fmt"
)

var (
	ErrInvoiceNotFound = errors.New("invoice not found")
	ErrNilInvoice      = errors.New("invoice is nil")
)

// RepositoryError wraps a failure inside a rolled back multi-statement operation.
type RepositoryError struct {
	Op  string // e.g. "save invoice"
	Err error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}

// IsRepositoryError reports whether err carries a RepositoryError.
func IsRepositoryError(err error) bool {
	var re *RepositoryError
	return errors.As(err, &re)
}
