package state

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/bzz-bot/bzz/internal/storage"
	"github.com/samber/mo"
	"github.com/sirupsen/logrus"
)

// Checkpoint persists the identifier of the last reply handed to the matcher
type Checkpoint struct {
	store storage.StorageInterface
	path  string
}

// NewCheckpoint creates a checkpoint backed by the named file
func NewCheckpoint(store storage.StorageInterface, path string) *Checkpoint {
	return &Checkpoint{store: store, path: path}
}

// Load returns the saved reply id. A missing, empty or unreadable file means no checkpoint.
func (c *Checkpoint) Load() (mo.Option[string], error) {
	id, err := readID(c.store, c.path)
	if err != nil {
		return mo.None[string](), err
	}
	if id == "" {
		return mo.None[string](), nil
	}
	if !IsNumericID(id) {
		logrus.Warnf("Ignoring corrupt checkpoint %q in %s", id, c.path)
		return mo.None[string](), nil
	}
	return mo.Some(id), nil
}

// Save durably replaces the checkpoint
func (c *Checkpoint) Save(id string) error {
	if err := c.store.Store(c.path, []byte(id)); err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %w", id, err)
	}
	return nil
}

// Clear removes the checkpoint so the next session processes the entire thread
func (c *Checkpoint) Clear() error {
	return c.store.Delete(c.path)
}

// Target persists the id of the monitored post
type Target struct {
	store storage.StorageInterface
	path  string
}

// NewTarget creates a target store backed by the named file
func NewTarget(store storage.StorageInterface, path string) *Target {
	return &Target{store: store, path: path}
}

// Load returns the saved post id, or None when no usable id is stored
func (t *Target) Load() (mo.Option[string], error) {
	id, err := readID(t.store, t.path)
	if err != nil {
		return mo.None[string](), err
	}
	if id == "" {
		return mo.None[string](), nil
	}
	if !IsNumericID(id) {
		logrus.Warnf("Couldn't read post ID from %s (%q)", t.path, id)
		return mo.None[string](), nil
	}
	return mo.Some(id), nil
}

// Save durably replaces the target post id
func (t *Target) Save(id string) error {
	if err := t.store.Store(t.path, []byte(id)); err != nil {
		return fmt.Errorf("failed to save target post %s: %w", id, err)
	}
	return nil
}

// Clear forgets the target post
func (t *Target) Clear() error {
	return t.store.Delete(t.path)
}

// KnownUsers is the set of author handles ever observed, one per line
type KnownUsers struct {
	store storage.StorageInterface
	path  string
}

// NewKnownUsers creates a known-users store backed by the named file
func NewKnownUsers(store storage.StorageInterface, path string) *KnownUsers {
	return &KnownUsers{store: store, path: path}
}

// Load reads the set. A missing file is an empty set.
func (k *KnownUsers) Load() (map[string]struct{}, error) {
	users := make(map[string]struct{})

	data, err := k.store.Retrieve(k.path)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return users, nil
		}
		return nil, err
	}

	for _, line := range strings.Split(string(data), "\n") {
		if name := strings.TrimSpace(line); name != "" {
			users[name] = struct{}{}
		}
	}
	return users, nil
}

// Save rewrites the file with the sorted set
func (k *KnownUsers) Save(users map[string]struct{}) error {
	names := make([]string, 0, len(users))
	for name := range users {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteByte('\n')
	}
	return k.store.Store(k.path, []byte(b.String()))
}

// IsNumericID reports whether id is a non-empty decimal number
func IsNumericID(id string) bool {
	_, err := strconv.ParseUint(id, 10, 64)
	return err == nil
}

func readID(store storage.StorageInterface, path string) (string, error) {
	data, err := store.Retrieve(path)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", nil
		}
		return "", err
	}

	// Only the first line is meaningful
	line, _, _ := strings.Cut(string(data), "\n")
	return strings.TrimSpace(line), nil
}
