package processing

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/mlindner/invoicescan/internal/domain/entity"
	"github.com/mlindner/invoicescan/internal/invoice"
	"github.com/mlindner/invoicescan/internal/repository"
	"github.com/mlindner/invoicescan/internal/storage"
	"github.com/mlindner/invoicescan/internal/workflow"
	"github.com/mlindner/invoicescan/pkg/database"
	"go.uber.org/zap"
)

// Finalizer promotes human-validated pending invoices into the finalized
// table. Finalizations for the same invoice number are serialized so the
// in-transaction duplicate re-check cannot race with itself.
type Finalizer struct {
	db       *database.DB
	pending  *repository.PendingRepository
	invoices *repository.InvoiceRepository
	lookups  *repository.LookupRepository
	batches  *repository.BatchRepository
	detector *DuplicateDetector
	archiver *storage.Archiver
	logger   *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewFinalizer(
	db *database.DB,
	pending *repository.PendingRepository,
	invoices *repository.InvoiceRepository,
	lookups *repository.LookupRepository,
	batches *repository.BatchRepository,
	detector *DuplicateDetector,
	archiver *storage.Archiver,
	logger *zap.Logger,
) *Finalizer {
	return &Finalizer{
		db:       db,
		pending:  pending,
		invoices: invoices,
		lookups:  lookups,
		batches:  batches,
		detector: detector,
		archiver: archiver,
		logger:   logger,
		locks:    make(map[string]*sync.Mutex),
	}
}

// Validate applies human edits to a pending invoice and marks it
// human validated. It may be called repeatedly before finalization.
func (f *Finalizer) Validate(ctx context.Context, id int64, edits *entity.ValidationEdits) (*entity.PendingInvoice, error) {
	p, err := f.pending.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPendingNotFound
	}

	machine, err := workflow.NewMachine(workflow.ParseState(p.ValidationStatus))
	if err != nil {
		return nil, err
	}
	if err := machine.Fire(workflow.TriggerValidate); err != nil {
		return nil, err
	}

	if err := f.pending.ApplyEdits(ctx, id, edits); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAlreadyFinalized
		}
		return nil, err
	}
	return f.pending.GetByID(ctx, id)
}

// Finalize moves one validated pending invoice into the finalized table.
// The duplicate check runs again inside the insert transaction; edits made
// during review can introduce collisions the upload-time screen never saw.
func (f *Finalizer) Finalize(ctx context.Context, id int64) (*entity.Invoice, error) {
	p, err := f.pending.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPendingNotFound
	}
	if p.IsFinalized {
		return nil, ErrAlreadyFinalized
	}

	machine, err := workflow.NewMachine(workflow.ParseState(p.ValidationStatus))
	if err != nil {
		return nil, err
	}
	if !machine.CanFire(workflow.TriggerFinalize) {
		return nil, ErrNotValidated
	}

	lock := f.numberLock(p.InvoiceNumber)
	lock.Lock()
	defer lock.Unlock()

	inv := f.buildInvoice(p)
	err = f.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		dup, err := f.detector.IsDuplicateTx(ctx, tx, p.InvoiceNumber)
		if err != nil {
			return err
		}
		if dup {
			return &DuplicateError{InvoiceNumber: p.InvoiceNumber}
		}

		inv.SupplierID, err = f.lookups.GetOrCreateSupplierTx(ctx, tx, p.SupplierName)
		if err != nil {
			return err
		}
		inv.CompanyID, err = f.lookups.GetOrCreateCompanyTx(ctx, tx, p.CompanyName)
		if err != nil {
			return err
		}
		if err := f.invoices.CreateTx(ctx, tx, inv); err != nil {
			return err
		}
		return f.pending.MarkFinalizedTx(ctx, tx, p.ID)
	})
	if err != nil {
		return nil, err
	}

	f.afterFinalize(ctx, p, inv)

	f.logger.Info("finalized invoice",
		zap.Int64("invoice_id", inv.ID),
		zap.Int64("pending_id", p.ID),
		zap.String("invoice_number", inv.InvoiceNumber))
	return inv, nil
}

// BatchResult aggregates a multi-record finalization run.
type BatchResult struct {
	Finalized []int64           `json:"finalized"`
	Failed    []int64           `json:"failed"`
	Errors    map[int64]string  `json:"errors,omitempty"`
	Invoices  []*entity.Invoice `json:"-"`
}

// FinalizeBatch finalizes each pending ID independently; one failure
// never aborts the rest.
func (f *Finalizer) FinalizeBatch(ctx context.Context, ids []int64) *BatchResult {
	result := &BatchResult{Errors: make(map[int64]string)}
	for _, id := range ids {
		inv, err := f.Finalize(ctx, id)
		if err != nil {
			result.Failed = append(result.Failed, id)
			result.Errors[id] = err.Error()
			continue
		}
		result.Finalized = append(result.Finalized, id)
		result.Invoices = append(result.Invoices, inv)
	}
	return result
}

// buildInvoice normalizes the validated fields into the finalized shape.
// The original amount strings are kept alongside the parsed values.
func (f *Finalizer) buildInvoice(p *entity.PendingInvoice) *entity.Invoice {
	return &entity.Invoice{
		FilePath:       p.FilePath,
		OriginalPath:   p.OriginalPath,
		InvoiceNumber:  p.InvoiceNumber,
		InvoiceDate:    p.InvoiceDate,
		NormalizedDate: invoice.NormalizeDate(p.InvoiceDate),
		Amount:         invoice.NormalizeAmount(p.AmountOriginal),
		AmountOriginal: p.AmountOriginal,
		VATAmount:      invoice.NormalizeAmount(p.VATOriginal),
		VATOriginal:    p.VATOriginal,
		Description:    p.Description,
		SourceInfo:     p.SourceInfo,
		ProcessedAt:    time.Now().UTC(),
	}
}

// afterFinalize runs the best-effort post-commit steps: batch bookkeeping,
// archival and the file path update. Failures are logged, never surfaced;
// the finalized record already exists.
func (f *Finalizer) afterFinalize(ctx context.Context, p *entity.PendingInvoice, inv *entity.Invoice) {
	if err := f.batches.MarkProcessedByPending(ctx, p.ID); err != nil {
		f.logger.Warn("failed to update batch queue after finalize",
			zap.Int64("pending_id", p.ID), zap.Error(err))
	}

	if f.archiver == nil {
		return
	}
	archived, err := f.archiver.Organize(p.FilePath, p.CompanyName, p.SupplierName,
		p.InvoiceNumber, inv.NormalizedDate)
	if err != nil {
		f.logger.Warn("failed to archive invoice file",
			zap.Int64("invoice_id", inv.ID), zap.Error(err))
		return
	}
	if err := f.invoices.UpdateFilePath(ctx, inv.ID, archived); err != nil {
		f.logger.Warn("failed to record archived path",
			zap.Int64("invoice_id", inv.ID), zap.Error(err))
		return
	}
	inv.FilePath = archived
}

// numberLock returns the mutex serializing finalizations of one invoice
// number. Blank numbers share a single lock.
func (f *Finalizer) numberLock(invoiceNumber string) *sync.Mutex {
	f.mu.Lock()
	defer f.mu.Unlock()
	lock, ok := f.locks[invoiceNumber]
	if !ok {
		lock = &sync.Mutex{}
		f.locks[invoiceNumber] = lock
	}
	return lock
}
