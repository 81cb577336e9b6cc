package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// FileStorage stores objects as files on the local filesystem.
// Names are paths, resolved against root when they are relative.
type FileStorage struct {
	root string
}

// Ensure FileStorage implements StorageInterface
var _ StorageInterface = (*FileStorage)(nil)

// NewFileStorage creates a file storage rooted at dir. An empty dir means the working directory.
func NewFileStorage(dir string) *FileStorage {
	return &FileStorage{root: dir}
}

func (s *FileStorage) path(filename string) string {
	if filepath.IsAbs(filename) || s.root == "" {
		return filename
	}
	return filepath.Join(s.root, filename)
}

// Store replaces the file atomically: data is written to a temp file in the same
// directory, synced, then renamed over the target.
func (s *FileStorage) Store(filename string, data []byte) error {
	target := s.path(filename)
	dir := filepath.Dir(target)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", filename, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync %s: %w", filename, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", filename, err)
	}

	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", filename, err)
	}

	logrus.Debugf("Stored %s (%d bytes)", target, len(data))
	return nil
}

// Retrieve reads the whole file
func (s *FileStorage) Retrieve(filename string) ([]byte, error) {
	data, err := os.ReadFile(s.path(filename))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", filename, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}
	return data, nil
}

// List returns the names of regular files whose path starts with prefix
func (s *FileStorage) List(prefix string) ([]string, error) {
	full := s.path(prefix)
	dir := filepath.Dir(full)
	if strings.HasSuffix(prefix, "/") {
		dir = full
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := filepath.Join(dir, entry.Name())
		if strings.HasPrefix(name, filepath.Clean(full)) || strings.HasSuffix(prefix, "/") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes the file. Deleting a missing file is not an error.
func (s *FileStorage) Delete(filename string) error {
	if err := os.Remove(s.path(filename)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", filename, err)
	}
	return nil
}
