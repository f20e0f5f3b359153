package processing

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/mlindner/invoicescan/internal/domain/entity"
	"github.com/mlindner/invoicescan/internal/invoice"
	"github.com/mlindner/invoicescan/internal/repository"
	"github.com/mlindner/invoicescan/internal/storage"
	"github.com/mlindner/invoicescan/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubExtractor returns a fixed result for every document.
type stubExtractor struct {
	result invoice.Result
}

func (s *stubExtractor) ExtractFromFile(ctx context.Context, path string) invoice.Result {
	return s.result
}

type processorFixture struct {
	db        *database.DB
	pending   *repository.PendingRepository
	invoices  *repository.InvoiceRepository
	batches   *repository.BatchRepository
	processor *Processor
}

func newProcessorFixture(t *testing.T, res invoice.Result) *processorFixture {
	t.Helper()
	logger := zap.NewNop()
	db := newTestDB(t)

	store, err := storage.NewStore(t.TempDir(), logger)
	require.NoError(t, err)

	f := &processorFixture{
		db:       db,
		pending:  repository.NewPendingRepository(db, logger),
		invoices: repository.NewInvoiceRepository(db, logger),
		batches:  repository.NewBatchRepository(db, logger),
	}
	detector := NewDuplicateDetector(f.invoices, logger)
	f.processor = NewProcessor(store, &stubExtractor{result: res}, detector,
		f.pending, f.batches, "test-model", logger)
	return f
}

func successResult(number string) invoice.Result {
	return invoice.Result{
		Fields: invoice.RawExtraction{
			"Lieferantename":  "Acme GmbH",
			"Empfängerfirma":  "Kunde AG",
			"Rechnungsnummer": number,
			"Rechnungsdatum":  "31.12.2023",
			"Gesamtbetrag":    "100,00 EUR",
		},
		Success: true,
		RawText: "Rechnung " + number,
	}
}

func TestProcessUploadCreatesPending(t *testing.T) {
	ctx := context.Background()
	f := newProcessorFixture(t, successResult("RE-100"))

	res, err := f.processor.ProcessUpload(ctx, "rechnung.pdf", strings.NewReader("%PDF-1.4"))
	require.NoError(t, err)
	require.NotNil(t, res.Pending)
	assert.False(t, res.Duplicate)

	p := res.Pending
	assert.Equal(t, "Acme GmbH", p.SupplierName)
	assert.Equal(t, "RE-100", p.InvoiceNumber)
	assert.Equal(t, "100,00 EUR", p.AmountOriginal)
	assert.False(t, p.NeedsManualInput)
	assert.Equal(t, "upload", p.Source)
	assert.NotEmpty(t, p.PreviewPath)
	assert.Equal(t, "Rechnung RE-100", p.RawText)

	var info entity.SourceInfo
	require.NoError(t, json.Unmarshal([]byte(p.SourceInfo), &info))
	assert.Equal(t, "upload", info.Source)
	assert.Equal(t, "test-model", info.Model)
	assert.True(t, info.Success)
}

func TestProcessUploadRejectsNonPDF(t *testing.T) {
	f := newProcessorFixture(t, successResult("RE-101"))
	_, err := f.processor.ProcessUpload(context.Background(), "notes.txt", strings.NewReader("hi"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")
}

func TestProcessUploadFlagsFailedExtraction(t *testing.T) {
	res := invoice.Result{
		Fields: invoice.RawExtraction{
			"Lieferantename":        "Not available - AI timeout",
			"Leistungsbeschreibung": "AI processing timed out. Please input data manually.",
			"Gesamtbetrag":          "0",
		},
		Success: false,
		Error:   "model processing timed out after 2m0s",
	}
	f := newProcessorFixture(t, res)

	out, err := f.processor.ProcessUpload(context.Background(), "slow.pdf", strings.NewReader("%PDF"))
	require.NoError(t, err)
	require.NotNil(t, out.Pending)
	assert.True(t, out.Pending.NeedsManualInput,
		"failed extraction must be flagged for manual input")
	assert.Equal(t, "Not available - AI timeout", out.Pending.SupplierName)
}

func TestProcessUploadScreensDuplicates(t *testing.T) {
	ctx := context.Background()
	f := newProcessorFixture(t, successResult("RE-200"))

	// Seed a finalized invoice with the same number.
	err := f.invoices.CreateTx(ctx, f.db, &entity.Invoice{InvoiceNumber: "RE-200"})
	require.NoError(t, err)

	res, err := f.processor.ProcessUpload(ctx, "dup.pdf", strings.NewReader("%PDF"))
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Nil(t, res.Pending, "duplicates never create a pending record")
	assert.Equal(t, "RE-200", res.InvoiceNumber)

	pending, err := f.pending.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestStageBatchQueuesEntries(t *testing.T) {
	ctx := context.Background()
	f := newProcessorFixture(t, successResult("RE-300"))

	files := map[string]io.Reader{
		"a.pdf":     strings.NewReader("%PDF a"),
		"b.pdf":     strings.NewReader("%PDF b"),
		"notes.txt": strings.NewReader("skip me"),
	}
	batchID, queued, err := f.processor.StageBatch(ctx, files, []string{"a.pdf", "b.pdf", "notes.txt"})
	require.NoError(t, err)
	assert.Equal(t, 2, queued)

	entries, err := f.batches.ListByBatch(ctx, batchID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a.pdf", entries[0].Filename)
	assert.Equal(t, entity.BatchStatusPending, entries[0].Status)
	assert.Equal(t, "b.pdf", entries[1].Filename)
}

func TestProcessFileAdvancesBatchEntry(t *testing.T) {
	ctx := context.Background()
	f := newProcessorFixture(t, successResult("RE-400"))

	files := map[string]io.Reader{"a.pdf": strings.NewReader("%PDF")}
	batchID, _, err := f.processor.StageBatch(ctx, files, []string{"a.pdf"})
	require.NoError(t, err)
	entries, err := f.batches.ListByBatch(ctx, batchID)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	res, err := f.processor.ProcessFile(ctx, entries[0].FilePath, "batch_upload", batchID, entries[0].ID)
	require.NoError(t, err)
	require.NotNil(t, res.Pending)

	entries, err = f.batches.ListByBatch(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, entity.BatchStatusPendingValidation, entries[0].Status)
	require.NotNil(t, entries[0].PendingID)
	assert.Equal(t, res.Pending.ID, *entries[0].PendingID)
}

func TestTruncateKeepsRunesIntact(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		limit int
		want  string
	}{
		{"ascii within limit", "short", 10, "short"},
		{"ascii cut", "abcdef", 3, "abc"},
		{"cut inside euro sign", "ab€cd", 4, "ab"},
		{"cut at rune boundary", "ab€cd", 5, "ab€"},
		{"umlauts", "äöü", 3, "ä"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.limit)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
			assert.LessOrEqual(t, len(got), tt.limit)
		})
	}
}
