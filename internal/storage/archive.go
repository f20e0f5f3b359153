package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Archiver moves finalized invoices into the long-term folder layout
//
//	by_company/<company>/by_date/<year>/<month>/<supplier>/<invoice_number>.pdf
//
// Archival is best effort: a finalized record keeps its staging path if
// the move fails.
type Archiver struct {
	baseDir string
	logger  *zap.Logger
}

func NewArchiver(baseDir string, logger *zap.Logger) *Archiver {
	return &Archiver{baseDir: baseDir, logger: logger}
}

// Organize copies the staged file into the archive tree and returns the
// new path. The source file is removed afterwards on a best-effort basis.
func (a *Archiver) Organize(srcPath, company, supplier, invoiceNumber, normalizedDate string) (string, error) {
	year, month := archiveDate(normalizedDate)

	dir := filepath.Join(a.baseDir,
		"by_company", SanitizeFolder(orUnknown(company)),
		"by_date", year, month,
		SanitizeFolder(orUnknown(supplier)),
	)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	name := SanitizeName(invoiceNumber)
	if name == "" || name == "unnamed" {
		name = SanitizeName(filepath.Base(srcPath))
	}
	if filepath.Ext(name) != ".pdf" {
		name += ".pdf"
	}

	dst := filepath.Join(dir, name)
	for i := 1; fileExists(dst); i++ {
		dst = filepath.Join(dir, fmt.Sprintf("%s_%d.pdf", name[:len(name)-len(".pdf")], i))
	}

	if err := copyFile(srcPath, dst); err != nil {
		return "", fmt.Errorf("failed to archive file: %w", err)
	}
	if err := os.Remove(srcPath); err != nil && !os.IsNotExist(err) {
		a.logger.Warn("failed to remove staged file after archiving",
			zap.String("path", srcPath), zap.Error(err))
	}

	a.logger.Info("archived invoice file",
		zap.String("src", srcPath), zap.String("dst", dst))
	return dst, nil
}

// archiveDate splits an ISO date into year and month folder names,
// falling back to the current month when the date was never extracted.
func archiveDate(normalizedDate string) (year, month string) {
	if t, err := time.Parse("2006-01-02", normalizedDate); err == nil {
		return t.Format("2006"), t.Format("01")
	}
	now := time.Now()
	return now.Format("2006"), now.Format("01")
}

func orUnknown(name string) string {
	if name == "" {
		return "Unknown"
	}
	return name
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
