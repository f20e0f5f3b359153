package processing

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mlindner/invoicescan/internal/domain/entity"
	"github.com/mlindner/invoicescan/internal/repository"
	"github.com/mlindner/invoicescan/internal/storage"
	"github.com/mlindner/invoicescan/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{
		Path:         filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.NewMigrator(db, zap.NewNop()).Run())
	return db
}

type finalizerFixture struct {
	db        *database.DB
	pending   *repository.PendingRepository
	invoices  *repository.InvoiceRepository
	lookups   *repository.LookupRepository
	batches   *repository.BatchRepository
	finalizer *Finalizer
}

func newFinalizerFixture(t *testing.T, archiver *storage.Archiver) *finalizerFixture {
	t.Helper()
	logger := zap.NewNop()
	db := newTestDB(t)
	f := &finalizerFixture{
		db:       db,
		pending:  repository.NewPendingRepository(db, logger),
		invoices: repository.NewInvoiceRepository(db, logger),
		lookups:  repository.NewLookupRepository(db, logger),
		batches:  repository.NewBatchRepository(db, logger),
	}
	detector := NewDuplicateDetector(f.invoices, logger)
	f.finalizer = NewFinalizer(db, f.pending, f.invoices, f.lookups, f.batches,
		detector, archiver, logger)
	return f
}

func (f *finalizerFixture) createPending(t *testing.T, number string) *entity.PendingInvoice {
	t.Helper()
	p := &entity.PendingInvoice{
		BatchID:          "batch-1",
		SupplierName:     "Acme GmbH",
		CompanyName:      "Kunde AG",
		InvoiceNumber:    number,
		InvoiceDate:      "31.12.2023",
		AmountOriginal:   "100,00 EUR",
		VATOriginal:      "15,97 EUR",
		Description:      "Beratung",
		ValidationStatus: "pending",
		Source:           "upload",
	}
	require.NoError(t, f.pending.Create(context.Background(), p))
	return p
}

func edits(p *entity.PendingInvoice) *entity.ValidationEdits {
	return &entity.ValidationEdits{
		SupplierName:  p.SupplierName,
		CompanyName:   p.CompanyName,
		InvoiceNumber: p.InvoiceNumber,
		InvoiceDate:   p.InvoiceDate,
		Amount:        p.AmountOriginal,
		VATAmount:     p.VATOriginal,
		Description:   p.Description,
	}
}

func TestValidateThenFinalize(t *testing.T) {
	ctx := context.Background()
	f := newFinalizerFixture(t, nil)
	p := f.createPending(t, "INV-1")

	validated, err := f.finalizer.Validate(ctx, p.ID, edits(p))
	require.NoError(t, err)
	assert.True(t, validated.IsValidated)
	assert.Equal(t, "human_validated", validated.ValidationStatus)
	assert.NotNil(t, validated.ValidatedAt)

	inv, err := f.finalizer.Finalize(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "INV-1", inv.InvoiceNumber)
	assert.InDelta(t, 100.00, inv.Amount, 0.001)
	assert.Equal(t, "100,00 EUR", inv.AmountOriginal)
	assert.InDelta(t, 15.97, inv.VATAmount, 0.001)
	assert.Equal(t, "2023-12-31", inv.NormalizedDate)
	require.NotNil(t, inv.SupplierID)
	require.NotNil(t, inv.CompanyID)

	stored, err := f.pending.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsFinalized)
	assert.Equal(t, "finalized", stored.ValidationStatus)
}

func TestFinalizeRequiresValidation(t *testing.T) {
	ctx := context.Background()
	f := newFinalizerFixture(t, nil)
	p := f.createPending(t, "INV-2")

	_, err := f.finalizer.Finalize(ctx, p.ID)
	assert.ErrorIs(t, err, ErrNotValidated)
}

func TestFinalizeUnknownPending(t *testing.T) {
	f := newFinalizerFixture(t, nil)
	_, err := f.finalizer.Finalize(context.Background(), 9999)
	assert.ErrorIs(t, err, ErrPendingNotFound)
}

func TestFinalizeTwiceFails(t *testing.T) {
	ctx := context.Background()
	f := newFinalizerFixture(t, nil)
	p := f.createPending(t, "INV-3")

	_, err := f.finalizer.Validate(ctx, p.ID, edits(p))
	require.NoError(t, err)
	_, err = f.finalizer.Finalize(ctx, p.ID)
	require.NoError(t, err)

	_, err = f.finalizer.Finalize(ctx, p.ID)
	assert.ErrorIs(t, err, ErrAlreadyFinalized)
}

func TestFinalizeDetectsDuplicateNumber(t *testing.T) {
	ctx := context.Background()
	f := newFinalizerFixture(t, nil)

	first := f.createPending(t, "INV-4")
	_, err := f.finalizer.Validate(ctx, first.ID, edits(first))
	require.NoError(t, err)
	_, err = f.finalizer.Finalize(ctx, first.ID)
	require.NoError(t, err)

	// A second record edited to the same number must be rejected inside
	// the finalize transaction and stay unfinalized.
	second := f.createPending(t, "OTHER-1")
	e := edits(second)
	e.InvoiceNumber = "INV-4"
	_, err = f.finalizer.Validate(ctx, second.ID, e)
	require.NoError(t, err)

	_, err = f.finalizer.Finalize(ctx, second.ID)
	require.Error(t, err)
	assert.True(t, IsDuplicate(err))

	stored, err := f.pending.GetByID(ctx, second.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsFinalized)
}

func TestFinalizeSentinelSupplierStaysUnlinked(t *testing.T) {
	ctx := context.Background()
	f := newFinalizerFixture(t, nil)

	p := f.createPending(t, "INV-5")
	e := edits(p)
	e.SupplierName = "Unknown"
	e.CompanyName = ""
	_, err := f.finalizer.Validate(ctx, p.ID, e)
	require.NoError(t, err)

	inv, err := f.finalizer.Finalize(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, inv.SupplierID, "sentinel supplier must not create a row")
	require.NotNil(t, inv.CompanyID, "blank company falls back to Unknown")

	companies, err := f.lookups.ListCompanies(ctx)
	require.NoError(t, err)
	require.Len(t, companies, 1)
	assert.Equal(t, "Unknown", companies[0].Name)
}

func TestFinalizeArchivesFile(t *testing.T) {
	ctx := context.Background()
	archiveDir := t.TempDir()
	f := newFinalizerFixture(t, storage.NewArchiver(archiveDir, zap.NewNop()))

	staged := filepath.Join(t.TempDir(), "upload.pdf")
	require.NoError(t, os.WriteFile(staged, []byte("%PDF-1.4"), 0644))

	p2 := &entity.PendingInvoice{
		SupplierName:     "Acme GmbH",
		CompanyName:      "Kunde AG",
		InvoiceNumber:    "INV-6",
		InvoiceDate:      "31.12.2023",
		AmountOriginal:   "10,00",
		ValidationStatus: "pending",
		FilePath:         staged,
	}
	require.NoError(t, f.pending.Create(ctx, p2))

	_, err := f.finalizer.Validate(ctx, p2.ID, edits(p2))
	require.NoError(t, err)
	inv, err := f.finalizer.Finalize(ctx, p2.ID)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(inv.FilePath, archiveDir),
		"file path %q must point into the archive", inv.FilePath)
	assert.FileExists(t, inv.FilePath)
	assert.NoFileExists(t, staged, "staged file is removed after archiving")
	assert.Contains(t, inv.FilePath, "by_company")
	assert.Contains(t, inv.FilePath, "2023")
}

func TestFinalizeBatchContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	f := newFinalizerFixture(t, nil)

	a := f.createPending(t, "INV-7")
	b := f.createPending(t, "INV-7") // same number, will collide
	c := f.createPending(t, "INV-8")

	for _, p := range []*entity.PendingInvoice{a, b, c} {
		_, err := f.finalizer.Validate(ctx, p.ID, edits(p))
		require.NoError(t, err)
	}

	result := f.finalizer.FinalizeBatch(ctx, []int64{a.ID, b.ID, c.ID})
	assert.ElementsMatch(t, []int64{a.ID, c.ID}, result.Finalized)
	assert.ElementsMatch(t, []int64{b.ID}, result.Failed)
	assert.Contains(t, result.Errors[b.ID], "already exists")
}
