package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain filename", "rechnung.pdf", "rechnung.pdf"},
		{"keeps spaces and hyphens", "Rechnung 2023-01.pdf", "Rechnung 2023-01.pdf"},
		{"strips path traversal", "../../etc/passwd", "etcpasswd"},
		{"strips separators", "a/b\\c.pdf", "abc.pdf"},
		{"strips unsafe characters", "inv#42?<>.pdf", "inv42.pdf"},
		{"umlauts dropped", "Müller.pdf", "Mller.pdf"},
		{"empty becomes unnamed", "", "unnamed"},
		{"only unsafe becomes unnamed", "###", "unnamed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeName(tt.input))
		})
	}
}

func TestSanitizeFolder(t *testing.T) {
	assert.Equal(t, "Acme_GmbH", SanitizeFolder("Acme GmbH"))
	assert.Equal(t, "Acme_Co_KG", SanitizeFolder("Acme & Co. KG"))
	assert.Equal(t, "unnamed", SanitizeFolder("..."))
}

func TestSaveUploadUniquePaths(t *testing.T) {
	store, err := NewStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	first, err := store.SaveUpload("invoice.pdf", strings.NewReader("one"))
	require.NoError(t, err)
	second, err := store.SaveUpload("invoice.pdf", strings.NewReader("two"))
	require.NoError(t, err)

	assert.Equal(t, "invoice.pdf", filepath.Base(first))
	assert.Equal(t, "invoice_1.pdf", filepath.Base(second))

	data, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))
	data, err = os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
}

func TestCreatePreview(t *testing.T) {
	store, err := NewStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	upload, err := store.SaveUpload("scan.pdf", strings.NewReader("content"))
	require.NoError(t, err)

	preview, err := store.CreatePreview(upload)
	require.NoError(t, err)
	assert.Equal(t, "preview_scan.pdf", filepath.Base(preview))

	data, err := os.ReadFile(preview)
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))

	// The original stays in place for archiving.
	_, err = os.Stat(upload)
	assert.NoError(t, err)
}

func TestRemoveMissingFileIsNoop(t *testing.T) {
	store, err := NewStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	assert.NoError(t, store.Remove(""))
	assert.NoError(t, store.Remove(filepath.Join(t.TempDir(), "gone.pdf")))
}
