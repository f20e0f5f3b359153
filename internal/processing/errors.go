// Package processing drives invoices from uploaded file to finalized
// record: extraction, duplicate screening, human validation and the
// finalize transaction.
package processing

import (
	"errors"
	"fmt"
)

var (
	// ErrPendingNotFound is returned when a pending invoice ID does not exist.
	ErrPendingNotFound = errors.New("pending invoice not found")

	// ErrNotValidated is returned when finalization is attempted on a
	// record a human has not approved yet.
	ErrNotValidated = errors.New("pending invoice has not been validated")

	// ErrAlreadyFinalized is returned when a record was finalized before.
	ErrAlreadyFinalized = errors.New("pending invoice is already finalized")
)

// DuplicateError reports that an invoice number collides with an already
// finalized invoice.
type DuplicateError struct {
	InvoiceNumber string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("invoice number %q already exists", e.InvoiceNumber)
}

// IsDuplicate reports whether err wraps a DuplicateError.
func IsDuplicate(err error) bool {
	var dup *DuplicateError
	return errors.As(err, &dup)
}
