package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// MaxUploadSize is the largest invoice file accepted, in bytes.
const MaxUploadSize = 10 * 1024 * 1024

// allowedExtensions lists the invoice formats the pipeline can process.
var allowedExtensions = map[string]bool{
	".pdf":  true,
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// FileStorage persists uploaded invoice files.
type FileStorage interface {
	// SaveUpload validates and stores an uploaded invoice under the
	// user's folder, returning the path of the stored file.
	SaveUpload(userID, fileName string, content []byte) (string, error)

	// Read returns the content of a previously stored file.
	Read(path string) ([]byte, error)

	// Delete removes a stored file. Missing files are not an error.
	Delete(path string) error
}

// LocalFileStorage implements FileStorage on the local filesystem.
type LocalFileStorage struct {
	folders *FolderManager
	logger  *zap.Logger
	now     func() time.Time
}

// NewLocalFileStorage creates a new LocalFileStorage rooted at baseDir.
func NewLocalFileStorage(baseDir string, logger *zap.Logger) *LocalFileStorage {
	return &LocalFileStorage{
		folders: NewFolderManager(baseDir, logger),
		logger:  logger,
		now:     time.Now,
	}
}

// ValidateUpload checks file name and size before anything touches disk.
func ValidateUpload(fileName string, size int64) error {
	if size <= 0 {
		return fmt.Errorf("empty file: %s", fileName)
	}
	if size > MaxUploadSize {
		return fmt.Errorf("file exceeds %dMB limit: %s", MaxUploadSize/(1024*1024), fileName)
	}
	ext := strings.ToLower(filepath.Ext(fileName))
	if !allowedExtensions[ext] {
		return fmt.Errorf("unsupported file type %q: only PDF, JPG and PNG are accepted", ext)
	}
	return nil
}

// SaveUpload validates and stores an uploaded invoice file.
func (s *LocalFileStorage) SaveUpload(userID, fileName string, content []byte) (string, error) {
	if err := ValidateUpload(fileName, int64(len(content))); err != nil {
		return "", err
	}

	folderPath, err := s.folders.CreateUserFolder(userID)
	if err != nil {
		return "", err
	}

	fullPath := filepath.Join(folderPath, s.storedName(fileName))
	if err := s.folders.ValidatePath(fullPath); err != nil {
		return "", err
	}

	if err := os.WriteFile(fullPath, content, 0644); err != nil {
		s.logger.Error("Failed to write file",
			zap.String("path", fullPath),
			zap.Error(err))
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	s.logger.Debug("File saved",
		zap.String("path", fullPath),
		zap.Int("size", len(content)))
	return fullPath, nil
}

// Read returns the content of a stored file after validating the path.
func (s *LocalFileStorage) Read(path string) ([]byte, error) {
	if err := s.folders.ValidatePath(path); err != nil {
		return nil, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return content, nil
}

// Delete removes a stored file. Deleting a missing file is a no-op.
func (s *LocalFileStorage) Delete(path string) error {
	if err := s.folders.ValidatePath(path); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._\-]`)

// storedName prefixes a sanitized file name with a millisecond timestamp
// so repeated uploads of the same invoice never collide.
func (s *LocalFileStorage) storedName(fileName string) string {
	base := filepath.Base(fileName)
	base = strings.ReplaceAll(base, "..", "")
	base = unsafeNameChars.ReplaceAllString(base, "_")
	return fmt.Sprintf("%d_%s", s.now().UnixMilli(), base)
}
