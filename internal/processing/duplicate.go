package processing

import (
	"context"

	"github.com/mlindner/invoicescan/internal/invoice"
	"github.com/mlindner/invoicescan/internal/repository"
	"go.uber.org/zap"
)

// InvoiceLookup is the slice of the invoice repository the detector needs.
type InvoiceLookup interface {
	ExistsVariant(ctx context.Context, invoiceNumber string) (bool, error)
	ExistsVariantTx(ctx context.Context, q repository.Querier, invoiceNumber string) (bool, error)
}

// DuplicateDetector screens extracted invoice numbers against the
// finalized table before a pending record is created, and again inside
// the finalize transaction.
type DuplicateDetector struct {
	invoices InvoiceLookup
	logger   *zap.Logger
}

func NewDuplicateDetector(invoices InvoiceLookup, logger *zap.Logger) *DuplicateDetector {
	return &DuplicateDetector{invoices: invoices, logger: logger}
}

// IsDuplicate reports whether invoiceNumber matches a finalized invoice.
// Sentinel numbers never count as duplicates; an unextracted number must
// not block the review queue.
func (d *DuplicateDetector) IsDuplicate(ctx context.Context, invoiceNumber string) (bool, error) {
	if invoice.IsSentinel(invoiceNumber) {
		return false, nil
	}
	dup, err := d.invoices.ExistsVariant(ctx, invoiceNumber)
	if err != nil {
		return false, err
	}
	if dup {
		d.logger.Info("duplicate invoice number detected",
			zap.String("invoice_number", invoiceNumber))
	}
	return dup, nil
}

// IsDuplicateTx runs the same check on a caller-owned transaction.
func (d *DuplicateDetector) IsDuplicateTx(ctx context.Context, q repository.Querier, invoiceNumber string) (bool, error) {
	if invoice.IsSentinel(invoiceNumber) {
		return false, nil
	}
	return d.invoices.ExistsVariantTx(ctx, q, invoiceNumber)
}
