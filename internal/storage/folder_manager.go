package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// FolderManager organizes uploaded files into per-user folders under a
// base directory and guards against path traversal.
type FolderManager struct {
	baseDir string
	logger  *zap.Logger
}

// NewFolderManager creates a new FolderManager
func NewFolderManager(baseDir string, logger *zap.Logger) *FolderManager {
	return &FolderManager{
		baseDir: baseDir,
		logger:  logger,
	}
}

// CreateUserFolder creates uploads/{userID}/ and returns its path.
func (m *FolderManager) CreateUserFolder(userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("cannot create folder: empty user ID")
	}

	safeName := m.SanitizeFolderName(userID)
	if safeName == "" {
		return "", fmt.Errorf("cannot create folder: user ID %q has no safe characters", userID)
	}
	folderPath := filepath.Join(m.baseDir, safeName)

	if err := os.MkdirAll(folderPath, 0755); err != nil {
		m.logger.Error("Failed to create user folder",
			zap.String("user_id", userID),
			zap.String("folder_path", folderPath),
			zap.Error(err))
		return "", fmt.Errorf("failed to create folder: %w", err)
	}

	return folderPath, nil
}

// UserFolderPath returns the folder path for a user without creating it.
func (m *FolderManager) UserFolderPath(userID string) string {
	return filepath.Join(m.baseDir, m.SanitizeFolderName(userID))
}

// FolderExists reports whether the user's folder exists.
func (m *FolderManager) FolderExists(userID string) bool {
	info, err := os.Stat(m.UserFolderPath(userID))
	if err != nil {
		return false
	}
	return info.IsDir()
}

// DeleteUserFolder removes a user's folder and everything in it.
// Deleting a missing folder is a no-op.
func (m *FolderManager) DeleteUserFolder(userID string) error {
	folderPath := m.UserFolderPath(userID)

	if _, err := os.Stat(folderPath); os.IsNotExist(err) {
		return nil
	}

	if err := os.RemoveAll(folderPath); err != nil {
		m.logger.Error("Failed to delete user folder",
			zap.String("user_id", userID),
			zap.String("folder_path", folderPath),
			zap.Error(err))
		return fmt.Errorf("failed to delete folder: %w", err)
	}
	return nil
}

// ValidatePath checks that the path resolves inside the base directory.
func (m *FolderManager) ValidatePath(fullPath string) error {
	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	absBase, err := filepath.Abs(m.baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base path: %w", err)
	}

	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) && absPath != absBase {
		return fmt.Errorf("path escapes base directory: %s", fullPath)
	}
	return nil
}

var unsafeFolderChars = regexp.MustCompile(`[^a-zA-Z0-9\-_]`)

// SanitizeFolderName strips path separators and anything outside
// [a-zA-Z0-9-_] so a user ID can never steer writes outside its folder.
func (m *FolderManager) SanitizeFolderName(name string) string {
	name = strings.ReplaceAll(name, "..", "")
	name = strings.ReplaceAll(name, "/", "")
	name = strings.ReplaceAll(name, "\\", "")
	return unsafeFolderChars.ReplaceAllString(name, "")
}
