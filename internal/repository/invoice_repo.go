package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mlindner/invoicescan/internal/domain/entity"
	"github.com/mlindner/invoicescan/pkg/database"
	"go.uber.org/zap"
)

// InvoiceRepository persists finalized invoices.
type InvoiceRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewInvoiceRepository creates a finalized-invoice repository.
func NewInvoiceRepository(db *database.DB, logger *zap.Logger) *InvoiceRepository {
	return &InvoiceRepository{db: db, logger: logger}
}

// ExistsVariant reports whether any finalized invoice number equals the
// given number, starts with it, or ends with it. The three-way OR match is
// deliberately loose to catch extraction variants (leading zeros, suffix
// checksums); it can also false-positive on very short numbers.
func (r *InvoiceRepository) ExistsVariant(ctx context.Context, invoiceNumber string) (bool, error) {
	return r.ExistsVariantTx(ctx, r.db.DB, invoiceNumber)
}

// ExistsVariantTx is ExistsVariant running on a caller-owned transaction;
// the finalize path uses it for the re-check inside the insert transaction.
func (r *InvoiceRepository) ExistsVariantTx(ctx context.Context, q Querier, invoiceNumber string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM invoices
		WHERE invoice_number = ? OR invoice_number LIKE ? OR invoice_number LIKE ?
	`, invoiceNumber, invoiceNumber+"%", "%"+invoiceNumber).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check invoice number: %w", err)
	}
	return count > 0, nil
}

// CreateTx inserts a finalized invoice inside the caller's transaction and
// fills in the generated ID.
func (r *InvoiceRepository) CreateTx(ctx context.Context, q Querier, inv *entity.Invoice) error {
	result, err := q.ExecContext(ctx, `
		INSERT INTO invoices (
			file_path, original_path, invoice_number, invoice_date, normalized_date,
			amount, amount_original, vat_amount, vat_amount_original,
			description, supplier_id, company_id, source_info, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		inv.FilePath,
		inv.OriginalPath,
		inv.InvoiceNumber,
		inv.InvoiceDate,
		inv.NormalizedDate,
		inv.Amount,
		inv.AmountOriginal,
		inv.VATAmount,
		inv.VATOriginal,
		inv.Description,
		inv.SupplierID,
		inv.CompanyID,
		inv.SourceInfo,
		inv.ProcessedAt.Format(time.RFC3339),
	)
	if err != nil {
		r.logger.Error("failed to create invoice", zap.Error(err))
		return fmt.Errorf("failed to create invoice: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	inv.ID = id
	return nil
}

// UpdateFilePath points a finalized invoice at its relocated archive path.
func (r *InvoiceRepository) UpdateFilePath(ctx context.Context, id int64, filePath string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE invoices SET file_path = ? WHERE id = ?", filePath, id)
	if err != nil {
		return fmt.Errorf("failed to update invoice file path: %w", err)
	}
	return nil
}

// GetByID retrieves a finalized invoice, nil if absent.
func (r *InvoiceRepository) GetByID(ctx context.Context, id int64) (*entity.Invoice, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, file_path, original_path, invoice_number, invoice_date,
			normalized_date, amount, amount_original, vat_amount, vat_amount_original,
			description, supplier_id, company_id, source_info, processed_at
		FROM invoices WHERE id = ?
	`, id)

	inv, err := scanInvoice(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("failed to get invoice", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return inv, nil
}

// List returns all finalized invoices with their dimension names resolved,
// newest first.
func (r *InvoiceRepository) List(ctx context.Context) ([]*entity.InvoiceListItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT i.id, i.file_path, i.original_path, i.invoice_number, i.invoice_date,
			i.normalized_date, i.amount, i.amount_original, i.vat_amount, i.vat_amount_original,
			i.description, i.supplier_id, i.company_id, i.source_info, i.processed_at,
			COALESCE(s.name, ''), COALESCE(c.name, '')
		FROM invoices i
		LEFT JOIN suppliers s ON s.id = i.supplier_id
		LEFT JOIN companies c ON c.id = i.company_id
		ORDER BY i.processed_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	var items []*entity.InvoiceListItem
	for rows.Next() {
		var item entity.InvoiceListItem
		var supplierID, companyID sql.NullInt64
		var processedAt string
		err := rows.Scan(
			&item.ID, &item.FilePath, &item.OriginalPath, &item.InvoiceNumber,
			&item.InvoiceDate, &item.NormalizedDate, &item.Amount, &item.AmountOriginal,
			&item.VATAmount, &item.VATOriginal, &item.Description,
			&supplierID, &companyID, &item.SourceInfo, &processedAt,
			&item.SupplierName, &item.CompanyName,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice row: %w", err)
		}
		if supplierID.Valid {
			item.SupplierID = &supplierID.Int64
		}
		if companyID.Valid {
			item.CompanyID = &companyID.Int64
		}
		item.ProcessedAt = parseTimestamp(processedAt)
		items = append(items, &item)
	}
	return items, rows.Err()
}

// Stats aggregates counts for the dashboard endpoint.
func (r *InvoiceRepository) Stats(ctx context.Context) (finalized int, totalAmount float64, err error) {
	err = r.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(amount), 0) FROM invoices").Scan(&finalized, &totalAmount)
	if err != nil {
		err = fmt.Errorf("failed to compute invoice stats: %w", err)
	}
	return
}

func scanInvoice(row *sql.Row) (*entity.Invoice, error) {
	var inv entity.Invoice
	var supplierID, companyID sql.NullInt64
	var processedAt string
	err := row.Scan(
		&inv.ID, &inv.FilePath, &inv.OriginalPath, &inv.InvoiceNumber,
		&inv.InvoiceDate, &inv.NormalizedDate, &inv.Amount, &inv.AmountOriginal,
		&inv.VATAmount, &inv.VATOriginal, &inv.Description,
		&supplierID, &companyID, &inv.SourceInfo, &processedAt,
	)
	if err != nil {
		return nil, err
	}
	if supplierID.Valid {
		inv.SupplierID = &supplierID.Int64
	}
	if companyID.Valid {
		inv.CompanyID = &companyID.Int64
	}
	inv.ProcessedAt = parseTimestamp(processedAt)
	return &inv, nil
}

// parseTimestamp accepts both RFC3339 values written by this code and the
// "YYYY-MM-DD HH:MM:SS" form SQLite's CURRENT_TIMESTAMP produces.
func parseTimestamp(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	return time.Time{}
}
