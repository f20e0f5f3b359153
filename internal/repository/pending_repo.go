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

// PendingRepository persists invoices awaiting human validation.
type PendingRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewPendingRepository creates a pending-invoice repository.
func NewPendingRepository(db *database.DB, logger *zap.Logger) *PendingRepository {
	return &PendingRepository{db: db, logger: logger}
}

// Create inserts a pending invoice and fills in the generated ID.
func (r *PendingRepository) Create(ctx context.Context, p *entity.PendingInvoice) error {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO pending_invoices (
			batch_id, file_path, original_path, preview_path,
			supplier_name, company_name, invoice_number, invoice_date,
			amount_original, vat_amount_original, description,
			needs_manual_input, validation_status, validation_notes,
			source, source_info, raw_text, ocr_text, extracted_data
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.BatchID, p.FilePath, p.OriginalPath, p.PreviewPath,
		p.SupplierName, p.CompanyName, p.InvoiceNumber, p.InvoiceDate,
		p.AmountOriginal, p.VATOriginal, p.Description,
		p.NeedsManualInput, p.ValidationStatus, p.ValidationNotes,
		p.Source, p.SourceInfo, p.RawText, p.OCRText, p.ExtractedData,
	)
	if err != nil {
		r.logger.Error("failed to create pending invoice", zap.Error(err))
		return fmt.Errorf("failed to create pending invoice: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	p.ID = id
	return nil
}

const pendingColumns = `
	id, batch_id, file_path, original_path, preview_path,
	supplier_name, company_name, invoice_number, invoice_date,
	amount_original, vat_amount_original, description,
	needs_manual_input, validation_status, validation_notes,
	is_validated, is_finalized, source, source_info,
	raw_text, ocr_text, extracted_data,
	validated_at, finalized_at, created_at, updated_at`

// GetByID retrieves a pending invoice, nil if absent.
func (r *PendingRepository) GetByID(ctx context.Context, id int64) (*entity.PendingInvoice, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT"+pendingColumns+" FROM pending_invoices WHERE id = ?", id)
	p, err := scanPending(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("failed to get pending invoice", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get pending invoice: %w", err)
	}
	return p, nil
}

// List returns unfinalized pending invoices, optionally restricted to a
// batch, oldest first so the review queue keeps upload order.
func (r *PendingRepository) List(ctx context.Context, batchID string) ([]*entity.PendingInvoice, error) {
	query := "SELECT" + pendingColumns + " FROM pending_invoices WHERE is_finalized = 0"
	args := []any{}
	if batchID != "" {
		query += " AND batch_id = ?"
		args = append(args, batchID)
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending invoices: %w", err)
	}
	defer rows.Close()

	var pending []*entity.PendingInvoice
	for rows.Next() {
		p, err := scanPending(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending invoice: %w", err)
		}
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

// ApplyEdits overwrites the seven canonical fields with human-corrected
// values and marks the record human validated.
func (r *PendingRepository) ApplyEdits(ctx context.Context, id int64, edits *entity.ValidationEdits) error {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx, `
		UPDATE pending_invoices SET
			supplier_name = ?, company_name = ?, invoice_number = ?,
			invoice_date = ?, amount_original = ?, vat_amount_original = ?,
			description = ?, needs_manual_input = 0,
			is_validated = 1, validation_status = ?,
			validated_at = ?, updated_at = ?
		WHERE id = ? AND is_finalized = 0
	`,
		edits.SupplierName, edits.CompanyName, edits.InvoiceNumber,
		edits.InvoiceDate, edits.Amount, edits.VATAmount,
		edits.Description, "human_validated",
		now, now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to apply validation edits: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkFinalizedTx flips the pending record to finalized inside the
// caller's transaction.
func (r *PendingRepository) MarkFinalizedTx(ctx context.Context, q Querier, id int64) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := q.ExecContext(ctx, `
		UPDATE pending_invoices SET
			is_finalized = 1, validation_status = 'finalized',
			finalized_at = ?, updated_at = ?
		WHERE id = ?
	`, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to mark pending invoice finalized: %w", err)
	}
	return nil
}

// Delete removes a pending invoice that was rejected during review.
func (r *PendingRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM pending_invoices WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete pending invoice: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountUnvalidated returns the size of the open review queue.
func (r *PendingRepository) CountUnvalidated(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM pending_invoices WHERE is_finalized = 0").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending invoices: %w", err)
	}
	return count, nil
}

// CountNeedsManualInput counts open records whose extraction failed and
// which still wait for a human to fill in the fields.
func (r *PendingRepository) CountNeedsManualInput(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM pending_invoices
		WHERE is_finalized = 0 AND needs_manual_input = 1 AND is_validated = 0
	`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending invoices: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPending(row rowScanner) (*entity.PendingInvoice, error) {
	var p entity.PendingInvoice
	var validatedAt, finalizedAt sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(
		&p.ID, &p.BatchID, &p.FilePath, &p.OriginalPath, &p.PreviewPath,
		&p.SupplierName, &p.CompanyName, &p.InvoiceNumber, &p.InvoiceDate,
		&p.AmountOriginal, &p.VATOriginal, &p.Description,
		&p.NeedsManualInput, &p.ValidationStatus, &p.ValidationNotes,
		&p.IsValidated, &p.IsFinalized, &p.Source, &p.SourceInfo,
		&p.RawText, &p.OCRText, &p.ExtractedData,
		&validatedAt, &finalizedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if validatedAt.Valid {
		t := parseTimestamp(validatedAt.String)
		p.ValidatedAt = &t
	}
	if finalizedAt.Valid {
		t := parseTimestamp(finalizedAt.String)
		p.FinalizedAt = &t
	}
	p.CreatedAt = parseTimestamp(createdAt)
	p.UpdatedAt = parseTimestamp(updatedAt)
	return &p, nil
}
