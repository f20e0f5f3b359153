package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mlindner/invoicescan/internal/domain/entity"
	"github.com/mlindner/invoicescan/internal/invoice"
	"github.com/mlindner/invoicescan/pkg/database"
	"go.uber.org/zap"
)

// LookupRepository manages the supplier and company dimension tables.
type LookupRepository struct {
	db     *database.DB
	logger *zap.Logger
}

func NewLookupRepository(db *database.DB, logger *zap.Logger) *LookupRepository {
	return &LookupRepository{db: db, logger: logger}
}

// GetOrCreateSupplierTx resolves a supplier name to its row ID, creating
// the row if needed. Sentinel names resolve to nil so a finalized invoice
// never links to a placeholder supplier.
func (r *LookupRepository) GetOrCreateSupplierTx(ctx context.Context, q Querier, name string) (*int64, error) {
	if invoice.IsSentinel(name) {
		return nil, nil
	}
	return getOrCreateNamed(ctx, q, "suppliers", name)
}

// GetOrCreateCompanyTx resolves a recipient company name to its row ID.
// Unlike suppliers, a blank company falls back to "Unknown" so every
// finalized invoice lands in an archive folder.
func (r *LookupRepository) GetOrCreateCompanyTx(ctx context.Context, q Querier, name string) (*int64, error) {
	if invoice.IsSentinel(name) {
		name = "Unknown"
	}
	return getOrCreateNamed(ctx, q, "companies", name)
}

func getOrCreateNamed(ctx context.Context, q Querier, table, name string) (*int64, error) {
	var id int64
	err := q.QueryRowContext(ctx,
		fmt.Sprintf("SELECT id FROM %s WHERE name = ?", table), name).Scan(&id)
	if err == nil {
		return &id, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to look up %s: %w", table, err)
	}

	result, err := q.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (name) VALUES (?)", table), name)
	if err != nil {
		return nil, fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	id, err = result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}
	return &id, nil
}

// ListSuppliers returns all known suppliers ordered by name.
func (r *LookupRepository) ListSuppliers(ctx context.Context) ([]*entity.Supplier, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, created_at FROM suppliers ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list suppliers: %w", err)
	}
	defer rows.Close()

	var suppliers []*entity.Supplier
	for rows.Next() {
		var s entity.Supplier
		var createdAt string
		if err := rows.Scan(&s.ID, &s.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan supplier: %w", err)
		}
		s.CreatedAt = parseTimestamp(createdAt)
		suppliers = append(suppliers, &s)
	}
	return suppliers, rows.Err()
}

// ListCompanies returns all known recipient companies ordered by name.
func (r *LookupRepository) ListCompanies(ctx context.Context) ([]*entity.Company, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, created_at FROM companies ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	defer rows.Close()

	var companies []*entity.Company
	for rows.Next() {
		var c entity.Company
		var createdAt string
		if err := rows.Scan(&c.ID, &c.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan company: %w", err)
		}
		c.CreatedAt = parseTimestamp(createdAt)
		companies = append(companies, &c)
	}
	return companies, rows.Err()
}
