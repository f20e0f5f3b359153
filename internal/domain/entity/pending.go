package entity

import "time"

// PendingInvoice is an extracted but not yet human-approved invoice record.
// It exclusively owns the lifecycle of FilePath/PreviewPath/OriginalPath
// until it is finalized or discarded.
type PendingInvoice struct {
	ID               int64      `json:"id"`
	BatchID          string     `json:"batch_id"`
	FilePath         string     `json:"file_path"`
	OriginalPath     string     `json:"original_path"`
	PreviewPath      string     `json:"preview_path"`
	SupplierName     string     `json:"supplier_name"`
	CompanyName      string     `json:"company_name"`
	InvoiceNumber    string     `json:"invoice_number"`
	InvoiceDate      string     `json:"invoice_date"`
	AmountOriginal   string     `json:"amount_original"`
	VATOriginal      string     `json:"vat_amount_original"`
	Description      string     `json:"description"`
	NeedsManualInput bool       `json:"needs_manual_input"`
	ValidationStatus string     `json:"validation_status"`
	ValidationNotes  string     `json:"validation_notes"`
	IsValidated      bool       `json:"is_validated"`
	IsFinalized      bool       `json:"is_finalized"`
	Source           string     `json:"source"`
	SourceInfo       string     `json:"source_info"`
	RawText          string     `json:"raw_text"`
	OCRText          string     `json:"ocr_text"`
	ExtractedData    string     `json:"extracted_data"`
	ValidatedAt      *time.Time `json:"validated_at"`
	FinalizedAt      *time.Time `json:"finalized_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// ValidationEdits carries the human-edited canonical fields applied to a
// pending invoice before finalization. Submitted values replace the stored
// ones wholesale.
type ValidationEdits struct {
	SupplierName  string `json:"supplier_name"`
	CompanyName   string `json:"company_name"`
	InvoiceNumber string `json:"invoice_number"`
	InvoiceDate   string `json:"invoice_date"`
	Amount        string `json:"amount"`
	VATAmount     string `json:"vat_amount"`
	Description   string `json:"description"`
}

// SourceInfo is the freeform provenance blob stored alongside a pending
// invoice. Source is one of upload, batch_upload or email_import.
type SourceInfo struct {
	Source      string `json:"source"`
	BatchID     string `json:"batch_id,omitempty"`
	Filename    string `json:"filename"`
	ProcessedAt string `json:"processed_at"`
	Model       string `json:"model_used,omitempty"`
	Success     bool   `json:"success"`
	Mailbox     string `json:"mailbox,omitempty"`
	MessageID   string `json:"message_id,omitempty"`
}
