// Package export renders finalized invoices into spreadsheet reports.
package export

import (
	"context"
	"fmt"
	"io"

	"github.com/mlindner/invoicescan/internal/domain/entity"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// InvoiceSource is the slice of the invoice repository the exporter needs.
type InvoiceSource interface {
	List(ctx context.Context) ([]*entity.InvoiceListItem, error)
}

// ExcelExporter writes finalized invoices into an xlsx workbook.
type ExcelExporter struct {
	invoices InvoiceSource
	logger   *zap.Logger
}

func NewExcelExporter(invoices InvoiceSource, logger *zap.Logger) *ExcelExporter {
	return &ExcelExporter{invoices: invoices, logger: logger}
}

var columns = []string{
	"Invoice Number", "Invoice Date", "Supplier", "Company",
	"Amount", "Amount (Original)", "VAT", "VAT (Original)",
	"Description", "Processed At",
}

// Write streams the full invoice report to w.
func (e *ExcelExporter) Write(ctx context.Context, w io.Writer) error {
	items, err := e.invoices.List(ctx)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Invoices"
	f.SetSheetName(f.GetSheetName(0), sheet)

	for i, name := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, name); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}

	for row, item := range items {
		values := []any{
			item.InvoiceNumber,
			item.NormalizedDate,
			item.SupplierName,
			item.CompanyName,
			item.Amount,
			item.AmountOriginal,
			item.VATAmount,
			item.VATOriginal,
			item.Description,
			item.ProcessedAt.Format("2006-01-02 15:04:05"),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("failed to write row %d: %w", row+2, err)
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	e.logger.Info("exported invoices to spreadsheet", zap.Int("rows", len(items)))
	return nil
}
