package processing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/mlindner/invoicescan/internal/domain/entity"
	"github.com/mlindner/invoicescan/internal/invoice"
	"github.com/mlindner/invoicescan/internal/repository"
	"github.com/mlindner/invoicescan/internal/storage"
	"go.uber.org/zap"
)

// rawTextLimit caps the stored text layer per pending record.
const rawTextLimit = 10000

// FieldExtractor runs model extraction against a document on disk.
type FieldExtractor interface {
	ExtractFromFile(ctx context.Context, path string) invoice.Result
}

// ProcessResult is the outcome of one uploaded file. Exactly one of
// Pending or Duplicate is meaningful; a duplicate never creates a
// pending record.
type ProcessResult struct {
	Filename      string                 `json:"filename"`
	Pending       *entity.PendingInvoice `json:"pending,omitempty"`
	Duplicate     bool                   `json:"is_duplicate"`
	InvoiceNumber string                 `json:"invoice_number,omitempty"`
	Skipped       bool                   `json:"skipped,omitempty"`
	Error         string                 `json:"error,omitempty"`
}

// Processor turns an uploaded document into a pending invoice awaiting
// human validation.
type Processor struct {
	store     *storage.Store
	extractor FieldExtractor
	detector  *DuplicateDetector
	pending   *repository.PendingRepository
	batches   *repository.BatchRepository
	model     string
	logger    *zap.Logger
}

func NewProcessor(
	store *storage.Store,
	extractor FieldExtractor,
	detector *DuplicateDetector,
	pending *repository.PendingRepository,
	batches *repository.BatchRepository,
	model string,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		store:     store,
		extractor: extractor,
		detector:  detector,
		pending:   pending,
		batches:   batches,
		model:     model,
		logger:    logger,
	}
}

// ProcessUpload handles a single direct upload end to end.
func (p *Processor) ProcessUpload(ctx context.Context, filename string, r io.Reader) (*ProcessResult, error) {
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return nil, fmt.Errorf("unsupported file type %q, only PDF is accepted", filepath.Ext(filename))
	}
	path, err := p.store.SaveUpload(filename, r)
	if err != nil {
		return nil, err
	}
	return p.ProcessFile(ctx, path, "upload", "", 0)
}

// StageBatch saves every file of an upload batch and registers the batch
// queue entries. Processing happens asynchronously; callers poll the
// batch progress endpoint. Returns the batch ID and queued entry count.
func (p *Processor) StageBatch(ctx context.Context, files map[string]io.Reader, order []string) (string, int, error) {
	batchID := uuid.NewString()

	queued := 0
	for i, filename := range order {
		if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
			p.logger.Warn("skipping non-pdf batch file", zap.String("filename", filename))
			continue
		}
		path, err := p.store.SaveUpload(filename, files[filename])
		if err != nil {
			return "", 0, err
		}
		entry := &entity.BatchEntry{
			BatchID:  batchID,
			FilePath: path,
			Filename: filename,
			Status:   entity.BatchStatusPending,
			Position: i,
		}
		if err := p.batches.CreateEntry(ctx, entry); err != nil {
			return "", 0, err
		}
		queued++
	}
	return batchID, queued, nil
}

// ProcessEmailAttachment stages a PDF attachment fetched from a mailbox
// and runs the standard pipeline with email provenance attached.
func (p *Processor) ProcessEmailAttachment(ctx context.Context, filename string, data []byte, mailbox, messageID string) (*ProcessResult, error) {
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return nil, fmt.Errorf("unsupported attachment type %q, only PDF is accepted", filepath.Ext(filename))
	}
	path, err := p.store.SaveUpload(filename, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return p.processStaged(ctx, path, "email_import", "", 0, mailbox, messageID)
}

// ProcessFile runs extraction and duplicate screening on an already
// staged file and creates the pending record. batchEntryID is zero for
// direct uploads.
func (p *Processor) ProcessFile(ctx context.Context, path, source, batchID string, batchEntryID int64) (*ProcessResult, error) {
	return p.processStaged(ctx, path, source, batchID, batchEntryID, "", "")
}

func (p *Processor) processStaged(ctx context.Context, path, source, batchID string, batchEntryID int64, mailbox, messageID string) (*ProcessResult, error) {
	filename := filepath.Base(path)
	if batchID == "" {
		batchID = uuid.NewString()
	}

	res := p.extractor.ExtractFromFile(ctx, path)
	record := invoice.Reconcile(res.Fields)

	// Duplicate screening happens before any pending row exists so the
	// reviewer queue never fills with known invoices.
	dup, err := p.detector.IsDuplicate(ctx, record.InvoiceNumber)
	if err != nil {
		return nil, err
	}
	if dup {
		p.store.Remove(path)
		return &ProcessResult{
			Filename:      filename,
			Duplicate:     true,
			InvoiceNumber: record.InvoiceNumber,
		}, nil
	}

	previewPath, err := p.store.CreatePreview(path)
	if err != nil {
		p.logger.Warn("failed to create preview", zap.String("path", path), zap.Error(err))
	}

	info := entity.SourceInfo{
		Source:      source,
		BatchID:     batchID,
		Filename:    filename,
		ProcessedAt: time.Now().UTC().Format(time.RFC3339),
		Model:       p.model,
		Success:     res.Success,
		Mailbox:     mailbox,
		MessageID:   messageID,
	}
	infoJSON, _ := json.Marshal(info)
	extractedJSON, _ := json.Marshal(res)

	pending := &entity.PendingInvoice{
		BatchID:          batchID,
		FilePath:         path,
		OriginalPath:     path,
		PreviewPath:      previewPath,
		SupplierName:     record.SupplierName,
		CompanyName:      record.CompanyName,
		InvoiceNumber:    record.InvoiceNumber,
		InvoiceDate:      record.InvoiceDate,
		AmountOriginal:   record.Amount,
		VATOriginal:      record.VATAmount,
		Description:      record.Description,
		NeedsManualInput: !res.Success,
		ValidationStatus: "pending",
		Source:           source,
		SourceInfo:       string(infoJSON),
		RawText:          truncate(res.RawText, rawTextLimit),
		OCRText:          truncate(res.OCRText, rawTextLimit),
		ExtractedData:    string(extractedJSON),
	}
	if err := p.pending.Create(ctx, pending); err != nil {
		return nil, err
	}

	if batchEntryID != 0 {
		if err := p.batches.SetPendingID(ctx, batchEntryID, pending.ID, entity.BatchStatusPendingValidation); err != nil {
			p.logger.Warn("failed to advance batch entry",
				zap.Int64("batch_entry_id", batchEntryID), zap.Error(err))
		}
	}

	p.logger.Info("created pending invoice",
		zap.Int64("pending_id", pending.ID),
		zap.String("source", source),
		zap.String("invoice_number", record.InvoiceNumber),
		zap.Bool("extraction_success", res.Success))

	return &ProcessResult{
		Filename:      filename,
		Pending:       pending,
		InvoiceNumber: record.InvoiceNumber,
		Skipped:       res.Skipped,
		Error:         res.Error,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Back off to a rune boundary so a multi-byte character is never split.
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
