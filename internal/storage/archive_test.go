package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func stageFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "staged.pdf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestOrganizeLayout(t *testing.T) {
	base := t.TempDir()
	a := NewArchiver(base, zap.NewNop())
	src := stageFile(t, "pdf bytes")

	dst, err := a.Organize(src, "Kunde AG", "Acme GmbH", "RE-2023-042", "2023-12-31")
	require.NoError(t, err)

	expected := filepath.Join(base,
		"by_company", "Kunde_AG",
		"by_date", "2023", "12",
		"Acme_GmbH", "RE-2023-042.pdf")
	assert.Equal(t, expected, dst)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "pdf bytes", string(data))

	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err), "staged file is removed after archiving")
}

func TestOrganizeCollisionSuffix(t *testing.T) {
	base := t.TempDir()
	a := NewArchiver(base, zap.NewNop())

	first, err := a.Organize(stageFile(t, "one"), "Kunde AG", "Acme", "RE-1", "2023-06-15")
	require.NoError(t, err)
	second, err := a.Organize(stageFile(t, "two"), "Kunde AG", "Acme", "RE-1", "2023-06-15")
	require.NoError(t, err)

	assert.Equal(t, "RE-1.pdf", filepath.Base(first))
	assert.Equal(t, "RE-1_1.pdf", filepath.Base(second))
}

func TestOrganizeUnknownFallbacks(t *testing.T) {
	base := t.TempDir()
	a := NewArchiver(base, zap.NewNop())

	dst, err := a.Organize(stageFile(t, "x"), "", "", "RE-9", "not a date")
	require.NoError(t, err)

	assert.Contains(t, dst, filepath.Join("by_company", "Unknown", "by_date"))
	assert.Contains(t, dst, filepath.Join("Unknown", "RE-9.pdf"))
}
