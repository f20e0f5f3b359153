// Package storage owns the on-disk layout of uploaded, preview and
// archived invoice files.
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

var (
	unsafeChars    = regexp.MustCompile(`[^a-zA-Z0-9\-_. ]`)
	underscoreRuns = regexp.MustCompile(`_{2,}`)
)

// SanitizeName strips path separators, parent references and characters
// unsafe for filesystems while keeping dots, spaces and hyphens so
// original filenames stay recognizable.
func SanitizeName(name string) string {
	name = strings.ReplaceAll(name, "..", "")
	name = strings.ReplaceAll(name, "/", "")
	name = strings.ReplaceAll(name, "\\", "")
	name = unsafeChars.ReplaceAllString(name, "")
	name = strings.TrimSpace(name)
	if name == "" {
		name = "unnamed"
	}
	return name
}

// SanitizeFolder is SanitizeName restricted further for directory names:
// spaces become underscores, dots are dropped, and underscore runs left by
// removed characters collapse to one.
func SanitizeFolder(name string) string {
	name = SanitizeName(name)
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, ".", "")
	name = underscoreRuns.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")
	if name == "" {
		name = "unnamed"
	}
	return name
}

// Store saves uploads and their review previews under a base directory.
type Store struct {
	uploadDir  string
	previewDir string
	logger     *zap.Logger
}

// NewStore creates the upload and preview directories under baseDir.
func NewStore(baseDir string, logger *zap.Logger) (*Store, error) {
	s := &Store{
		uploadDir:  filepath.Join(baseDir, "uploads"),
		previewDir: filepath.Join(baseDir, "previews"),
		logger:     logger,
	}
	for _, dir := range []string{s.uploadDir, s.previewDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}
	return s, nil
}

// UploadDir returns the directory uploaded originals are saved into.
func (s *Store) UploadDir() string { return s.uploadDir }

// SaveUpload writes an uploaded file under a collision-free sanitized
// name and returns its path.
func (s *Store) SaveUpload(filename string, r io.Reader) (string, error) {
	name := SanitizeName(filename)
	path := s.uniquePath(s.uploadDir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write upload file: %w", err)
	}

	s.logger.Debug("saved upload", zap.String("path", path))
	return path, nil
}

// CreatePreview copies an uploaded file into the preview directory so the
// review UI can serve it independently of later archival moves.
func (s *Store) CreatePreview(uploadPath string) (string, error) {
	name := "preview_" + filepath.Base(uploadPath)
	path := s.uniquePath(s.previewDir, name)
	if err := copyFile(uploadPath, path); err != nil {
		return "", fmt.Errorf("failed to create preview: %w", err)
	}
	return path, nil
}

// Remove deletes a stored file, treating a missing file as success.
func (s *Store) Remove(path string) error {
	if path == "" {
		return nil
	}
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove file: %w", err)
	}
	return nil
}

// uniquePath appends _1, _2, ... before the extension until the name is
// free in dir.
func (s *Store) uniquePath(dir, name string) string {
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		path = filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, i, ext))
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path
		}
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		os.Remove(dst)
		return err
	}
	return out.Sync()
}
