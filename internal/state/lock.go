package state

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// InstanceLock prevents two engines from sharing the same state files
type InstanceLock struct {
	lockFile *flock.Flock
	lockPath string
}

// NewInstanceLock creates a lock next to the target-post file
func NewInstanceLock(targetFilePath string) (*InstanceLock, error) {
	abs, err := filepath.Abs(targetFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", targetFilePath, err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	lockPath := abs + ".lock"
	return &InstanceLock{
		lockFile: flock.New(lockPath),
		lockPath: lockPath,
	}, nil
}

// TryLock acquires the lock or reports that another instance holds it
func (l *InstanceLock) TryLock() error {
	locked, err := l.lockFile.TryLock()
	if err != nil {
		return fmt.Errorf("failed to try lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another instance is already using %s", l.lockPath)
	}
	return nil
}

// Unlock releases the lock and removes the lock file
func (l *InstanceLock) Unlock() error {
	if err := l.lockFile.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock: %w", err)
	}
	if err := os.Remove(l.lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

// Path returns the lock file location
func (l *InstanceLock) Path() string {
	return l.lockPath
}
