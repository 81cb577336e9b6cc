package triggerlog

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Entry is one successful, user-attributable actuation
type Entry struct {
	PostID      string
	TriggeredAt time.Time
	ActedAt     time.Time
	Intensity   int
	Author      string
}

// Line renders the entry in the log's comma-separated format, without the newline
func (e Entry) Line() string {
	return strings.Join([]string{
		e.PostID,
		e.TriggeredAt.Format(time.RFC3339Nano),
		e.ActedAt.Format(time.RFC3339Nano),
		strconv.Itoa(e.Intensity),
		e.Author,
	}, ",")
}

// ParseLine is the inverse of Entry.Line
func ParseLine(line string) (Entry, error) {
	fields := strings.Split(strings.TrimRight(line, "\r\n"), ",")
	if len(fields) != 5 {
		return Entry{}, fmt.Errorf("expected 5 fields, got %d", len(fields))
	}

	triggeredAt, err := time.Parse(time.RFC3339Nano, fields[1])
	if err != nil {
		return Entry{}, fmt.Errorf("invalid trigger timestamp: %w", err)
	}
	actedAt, err := time.Parse(time.RFC3339Nano, fields[2])
	if err != nil {
		return Entry{}, fmt.Errorf("invalid action timestamp: %w", err)
	}
	intensity, err := strconv.Atoi(fields[3])
	if err != nil {
		return Entry{}, fmt.Errorf("invalid intensity: %w", err)
	}

	return Entry{
		PostID:      fields[0],
		TriggeredAt: triggeredAt,
		ActedAt:     actedAt,
		Intensity:   intensity,
		Author:      strings.TrimSpace(fields[4]),
	}, nil
}

// Log is an append-only trigger log file
type Log struct {
	path string
	mu   sync.Mutex
}

// New creates a log writing to path
func New(path string) *Log {
	return &Log{path: path}
}

// Path returns the log file location
func (l *Log) Path() string {
	return l.path
}

// Append writes one entry and syncs it to disk before returning
func (l *Log) Append(entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if dir := filepath.Dir(l.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open trigger log: %w", err)
	}
	defer f.Close()

	line := entry.Line() + "\n"
	torn, err := endsMidLine(f)
	if err != nil {
		return err
	}
	if torn {
		// Terminate the partial line so this entry stays on its own line
		line = "\n" + line
	}

	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("failed to append to trigger log: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync trigger log: %w", err)
	}
	return nil
}

// endsMidLine reports whether the file is non-empty and lacks a trailing newline
func endsMidLine(f *os.File) (bool, error) {
	info, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("failed to stat trigger log: %w", err)
	}
	if info.Size() == 0 {
		return false, nil
	}

	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return false, fmt.Errorf("failed to read trigger log tail: %w", err)
	}
	return last[0] != '\n', nil
}

// ReadForPost returns the entries logged for postID, in file order.
// Lines that fail to parse are skipped; a crash can leave a partial last line.
func (l *Log) ReadForPost(postID string) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open trigger log: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, postID+",") {
			continue
		}
		entry, err := ParseLine(line)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read trigger log: %w", err)
	}
	return entries, nil
}
