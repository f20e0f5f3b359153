package invoice

import (
	"fmt"
	"os"
	"strings"

	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"
)

// PDFReader extracts the text layer from PDF documents using mupdf.
// It implements TextReader. No OCR backend is wired, so the OCR text is
// empty; documents without a text layer come back as NO_TEXT and are
// flagged for manual input downstream.
type PDFReader struct {
	logger *zap.Logger
}

// NewPDFReader creates a PDF text reader.
func NewPDFReader(logger *zap.Logger) *PDFReader {
	return &PDFReader{logger: logger}
}

// ExtractText reads every page's text layer and concatenates it.
func (r *PDFReader) ExtractText(path string) (string, string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", "", fmt.Errorf("document not found: %w", err)
	}

	doc, err := fitz.New(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to open document: %w", err)
	}
	defer doc.Close()

	var sb strings.Builder
	for page := 0; page < doc.NumPage(); page++ {
		text, err := doc.Text(page)
		if err != nil {
			r.logger.Warn("failed to extract page text",
				zap.String("path", path), zap.Int("page", page), zap.Error(err))
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	r.logger.Debug("extracted document text",
		zap.String("path", path),
		zap.Int("pages", doc.NumPage()),
		zap.Int("chars", sb.Len()))

	return sb.String(), "", nil
}
