package entity

import "time"

// Invoice is a finalized, human-validated invoice. Amount and VATAmount are
// the normalized numeric values; the *Original fields preserve the locale
// string exactly as extracted. InvoiceNumber uniqueness is enforced at
// finalize time (check-then-insert), not as a database constraint.
type Invoice struct {
	ID             int64     `json:"id"`
	FilePath       string    `json:"file_path"`
	OriginalPath   string    `json:"original_path"`
	InvoiceNumber  string    `json:"invoice_number"`
	InvoiceDate    string    `json:"invoice_date"`
	NormalizedDate string    `json:"normalized_date"`
	Amount         float64   `json:"amount"`
	AmountOriginal string    `json:"amount_original"`
	VATAmount      float64   `json:"vat_amount"`
	VATOriginal    string    `json:"vat_amount_original"`
	Description    string    `json:"description"`
	SupplierID     *int64    `json:"supplier_id"`
	CompanyID      *int64    `json:"company_id"`
	SourceInfo     string    `json:"source_info"`
	ProcessedAt    time.Time `json:"processed_at"`
}

// InvoiceListItem is an Invoice with its dimension names resolved, as
// returned by list and export queries.
type InvoiceListItem struct {
	Invoice
	SupplierName string `json:"supplier_name"`
	CompanyName  string `json:"company_name"`
}

// Supplier and Company are name-keyed dedup tables with get-or-create
// semantics.
type Supplier struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Company struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
