package http

import (
	"database/sql"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mlindner/invoicescan/internal/domain/entity"
	"github.com/mlindner/invoicescan/internal/email"
	"github.com/mlindner/invoicescan/internal/export"
	"github.com/mlindner/invoicescan/internal/processing"
	"github.com/mlindner/invoicescan/internal/repository"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	processor *processing.Processor
	finalizer *processing.Finalizer
	detector  *processing.DuplicateDetector
	importer  *email.Importer
	exporter  *export.ExcelExporter
	pending   *repository.PendingRepository
	invoices  *repository.InvoiceRepository
	lookups   *repository.LookupRepository
	batches   *repository.BatchRepository
	accounts  *repository.EmailAccountRepository
	logger    *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	processor *processing.Processor,
	finalizer *processing.Finalizer,
	detector *processing.DuplicateDetector,
	importer *email.Importer,
	exporter *export.ExcelExporter,
	pending *repository.PendingRepository,
	invoices *repository.InvoiceRepository,
	lookups *repository.LookupRepository,
	batches *repository.BatchRepository,
	accounts *repository.EmailAccountRepository,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		processor: processor,
		finalizer: finalizer,
		detector:  detector,
		importer:  importer,
		exporter:  exporter,
		pending:   pending,
		invoices:  invoices,
		lookups:   lookups,
		batches:   batches,
		accounts:  accounts,
		logger:    logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, Response{Success: false, Error: msg})
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	ok(c, gin.H{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// Upload handles POST /api/upload with a single PDF in the "file" field.
func (h *Handlers) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		fail(c, http.StatusBadRequest, "missing file upload")
		return
	}
	src, err := file.Open()
	if err != nil {
		fail(c, http.StatusBadRequest, "failed to read upload")
		return
	}
	defer src.Close()

	result, err := h.processor.ProcessUpload(c.Request.Context(), file.Filename, src)
	if err != nil {
		h.logger.Error("upload processing failed",
			zap.String("filename", file.Filename), zap.Error(err))
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if result.Duplicate {
		c.JSON(http.StatusConflict, Response{Success: false, Data: result,
			Error: "invoice already exists"})
		return
	}
	ok(c, result)
}

// UploadBatch handles POST /api/upload-batch with multiple PDFs in the
// "files" field. Files are queued for asynchronous processing; clients
// poll GET /api/batch/:batch_id for progress.
func (h *Handlers) UploadBatch(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid multipart form")
		return
	}
	fileHeaders := form.File["files"]
	if len(fileHeaders) == 0 {
		fail(c, http.StatusBadRequest, "no files uploaded")
		return
	}

	files := make(map[string]io.Reader, len(fileHeaders))
	var order []string
	var opened []multipart.File
	defer func() {
		for _, f := range opened {
			f.Close()
		}
	}()
	for _, fh := range fileHeaders {
		f, err := fh.Open()
		if err != nil {
			fail(c, http.StatusBadRequest, "failed to read upload "+fh.Filename)
			return
		}
		opened = append(opened, f)
		files[fh.Filename] = f
		order = append(order, fh.Filename)
	}

	batchID, queued, err := h.processor.StageBatch(c.Request.Context(), files, order)
	if err != nil {
		h.logger.Error("batch staging failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusAccepted, Response{Success: true,
		Data: gin.H{"batch_id": batchID, "queued": queued}})
}

// BatchStatus handles GET /api/batch/:batch_id.
func (h *Handlers) BatchStatus(c *gin.Context) {
	batchID := c.Param("batch_id")
	progress, err := h.batches.Progress(c.Request.Context(), batchID)
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	entries, err := h.batches.ListByBatch(c.Request.Context(), batchID)
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	ok(c, gin.H{"progress": progress, "entries": entries})
}

// ListPending handles GET /api/pending, optionally filtered by batch_id.
func (h *Handlers) ListPending(c *gin.Context) {
	pending, err := h.pending.List(c.Request.Context(), c.Query("batch_id"))
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	ok(c, pending)
}

// GetPending handles GET /api/pending/:id.
func (h *Handlers) GetPending(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid id")
		return
	}
	p, err := h.pending.GetByID(c.Request.Context(), id)
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	if p == nil {
		fail(c, http.StatusNotFound, "pending invoice not found")
		return
	}
	ok(c, p)
}

// DeletePending handles DELETE /api/pending/:id for rejected documents.
func (h *Handlers) DeletePending(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.pending.Delete(c.Request.Context(), id); err != nil {
		if err == sql.ErrNoRows {
			fail(c, http.StatusNotFound, "pending invoice not found")
			return
		}
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	ok(c, gin.H{"deleted": id})
}

// UpdatePending handles PUT /api/pending/:id: apply human edits without
// finalizing, so reviewers can save progress on a document.
func (h *Handlers) UpdatePending(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid id")
		return
	}
	var edits entity.ValidationEdits
	if err := c.ShouldBindJSON(&edits); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := h.finalizer.Validate(c.Request.Context(), id, &edits)
	if err != nil {
		h.writeFinalizeError(c, err)
		return
	}
	ok(c, p)
}

// Validate handles POST /api/validate/:id: apply the human edits, then
// finalize. A duplicate introduced by the edits returns 409.
func (h *Handlers) Validate(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid id")
		return
	}
	var edits entity.ValidationEdits
	if err := c.ShouldBindJSON(&edits); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := h.finalizer.Validate(c.Request.Context(), id, &edits); err != nil {
		h.writeFinalizeError(c, err)
		return
	}
	inv, err := h.finalizer.Finalize(c.Request.Context(), id)
	if err != nil {
		h.writeFinalizeError(c, err)
		return
	}
	ok(c, inv)
}

// ValidateBatchRequest is the body of POST /api/validate-batch.
type ValidateBatchRequest struct {
	Items []struct {
		ID    int64                  `json:"id"`
		Edits entity.ValidationEdits `json:"edits"`
	} `json:"items"`
}

// ValidateBatch handles POST /api/validate-batch. Each item is validated
// and finalized independently.
func (h *Handlers) ValidateBatch(c *gin.Context) {
	var req ValidateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Items) == 0 {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	var ids []int64
	for _, item := range req.Items {
		if _, err := h.finalizer.Validate(c.Request.Context(), item.ID, &item.Edits); err != nil {
			h.logger.Warn("batch validation failed for item",
				zap.Int64("pending_id", item.ID), zap.Error(err))
			continue
		}
		ids = append(ids, item.ID)
	}
	result := h.finalizer.FinalizeBatch(c.Request.Context(), ids)
	ok(c, result)
}

// CheckDuplicateRequest is the body of POST /api/check-duplicate.
type CheckDuplicateRequest struct {
	InvoiceNumber string `json:"invoice_number"`
}

// CheckDuplicate handles POST /api/check-duplicate so the review UI can
// warn before finalization.
func (h *Handlers) CheckDuplicate(c *gin.Context) {
	var req CheckDuplicateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	dup, err := h.detector.IsDuplicate(c.Request.Context(), req.InvoiceNumber)
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	ok(c, gin.H{"invoice_number": req.InvoiceNumber, "is_duplicate": dup})
}

// ListInvoices handles GET /api/invoices.
func (h *Handlers) ListInvoices(c *gin.Context) {
	items, err := h.invoices.List(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	ok(c, items)
}

// ExportInvoices handles GET /api/invoices/export, streaming an xlsx
// workbook.
func (h *Handlers) ExportInvoices(c *gin.Context) {
	c.Header("Content-Disposition", `attachment; filename="invoices.xlsx"`)
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := h.exporter.Write(c.Request.Context(), c.Writer); err != nil {
		h.logger.Error("invoice export failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, err.Error())
	}
}

// ListSuppliers handles GET /api/suppliers.
func (h *Handlers) ListSuppliers(c *gin.Context) {
	suppliers, err := h.lookups.ListSuppliers(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	ok(c, suppliers)
}

// ListCompanies handles GET /api/companies.
func (h *Handlers) ListCompanies(c *gin.Context) {
	companies, err := h.lookups.ListCompanies(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	ok(c, companies)
}

// Stats handles GET /api/stats.
func (h *Handlers) Stats(c *gin.Context) {
	finalized, total, err := h.invoices.Stats(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	open, err := h.pending.CountUnvalidated(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	manual, err := h.pending.CountNeedsManualInput(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	ok(c, gin.H{
		"finalized_invoices": finalized,
		"total_amount":       total,
		"pending_review":     open,
		"needs_manual_input": manual,
	})
}

// EmailConnectRequest is the body of POST /api/email/connect.
type EmailConnectRequest struct {
	Email      string `json:"email" binding:"required"`
	Password   string `json:"password" binding:"required"`
	IMAPServer string `json:"imap_server" binding:"required"`
	Port       int    `json:"port"`
	UseSSL     *bool  `json:"use_ssl"`
}

// EmailConnect handles POST /api/email/connect.
func (h *Handlers) EmailConnect(c *gin.Context) {
	var req EmailConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	account := &entity.EmailAccount{
		Email:      req.Email,
		Password:   req.Password,
		IMAPServer: req.IMAPServer,
		Port:       req.Port,
		UseSSL:     true,
	}
	if account.Port == 0 {
		account.Port = 993
	}
	if req.UseSSL != nil {
		account.UseSSL = *req.UseSSL
	}

	sessionID, err := h.importer.Connect(c.Request.Context(), account)
	if err != nil {
		fail(c, http.StatusUnauthorized, err.Error())
		return
	}
	ok(c, gin.H{"session_id": sessionID})
}

// EmailAccounts handles GET /api/email/accounts.
func (h *Handlers) EmailAccounts(c *gin.Context) {
	accounts, err := h.accounts.List(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	ok(c, accounts)
}

// DeleteEmailAccount handles DELETE /api/email/accounts/:email.
func (h *Handlers) DeleteEmailAccount(c *gin.Context) {
	if err := h.accounts.Delete(c.Request.Context(), c.Param("email")); err != nil {
		if err == sql.ErrNoRows {
			fail(c, http.StatusNotFound, "email account not found")
			return
		}
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	ok(c, gin.H{"deleted": c.Param("email")})
}

// EmailMailboxes handles GET /api/email/:session/mailboxes.
func (h *Handlers) EmailMailboxes(c *gin.Context) {
	mailboxes, err := h.importer.Mailboxes(c.Param("session"))
	if err != nil {
		h.writeEmailError(c, err)
		return
	}
	ok(c, mailboxes)
}

// EmailImportRequest is the body of POST /api/email/:session/import.
type EmailImportRequest struct {
	Mailbox string `json:"mailbox" binding:"required"`
	Since   string `json:"since"`
}

// EmailImport handles POST /api/email/:session/import.
func (h *Handlers) EmailImport(c *gin.Context) {
	var req EmailImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	var since time.Time
	if req.Since != "" {
		var err error
		since, err = time.Parse("2006-01-02", req.Since)
		if err != nil {
			fail(c, http.StatusBadRequest, "since must be YYYY-MM-DD")
			return
		}
	}

	result, err := h.importer.Import(c.Request.Context(), c.Param("session"), req.Mailbox, since)
	if err != nil {
		h.writeEmailError(c, err)
		return
	}
	ok(c, result)
}

// EmailDisconnect handles DELETE /api/email/:session.
func (h *Handlers) EmailDisconnect(c *gin.Context) {
	h.importer.Disconnect(c.Param("session"))
	ok(c, gin.H{"disconnected": true})
}

func (h *Handlers) writeFinalizeError(c *gin.Context, err error) {
	var dup *processing.DuplicateError
	switch {
	case errors.As(err, &dup):
		c.JSON(http.StatusConflict, Response{Success: false,
			Data:  gin.H{"is_duplicate": true, "invoice_number": dup.InvoiceNumber},
			Error: err.Error()})
	case errors.Is(err, processing.ErrPendingNotFound):
		fail(c, http.StatusNotFound, err.Error())
	case errors.Is(err, processing.ErrNotValidated),
		errors.Is(err, processing.ErrAlreadyFinalized):
		fail(c, http.StatusConflict, err.Error())
	default:
		h.logger.Error("finalization failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handlers) writeEmailError(c *gin.Context, err error) {
	if errors.Is(err, email.ErrSessionNotFound) {
		fail(c, http.StatusNotFound, err.Error())
		return
	}
	h.logger.Error("email operation failed", zap.Error(err))
	fail(c, http.StatusInternalServerError, err.Error())
}
