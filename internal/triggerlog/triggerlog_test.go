package triggerlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntry_LineFormat(t *testing.T) {
	entry := Entry{
		PostID:      "42",
		TriggeredAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		ActedAt:     time.Date(2024, 3, 1, 12, 0, 5, 0, time.UTC),
		Intensity:   30,
		Author:      "amy@example.social",
	}

	assert.Equal(t, "42,2024-03-01T12:00:00Z,2024-03-01T12:00:05Z,30,amy@example.social", entry.Line())

	parsed, err := ParseLine(entry.Line() + "\n")
	require.NoError(t, err)
	assert.Equal(t, entry, parsed)
}

func TestParseLine_Invalid(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{name: "Too few fields", line: "42,2024-03-01T12:00:00Z,30"},
		{name: "Bad timestamp", line: "42,yesterday,2024-03-01T12:00:05Z,30,amy"},
		{name: "Bad intensity", line: "42,2024-03-01T12:00:00Z,2024-03-01T12:00:05Z,lots,amy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLine(tt.line)
			assert.Error(t, err)
		})
	}
}

func TestLog_AppendAndReadForPost(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	log := New(path)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, log.Append(Entry{PostID: "42", TriggeredAt: now, ActedAt: now, Intensity: 30, Author: "amy"}))
	require.NoError(t, log.Append(Entry{PostID: "7", TriggeredAt: now, ActedAt: now, Intensity: 90, Author: "bob"}))
	require.NoError(t, log.Append(Entry{PostID: "42", TriggeredAt: now, ActedAt: now, Intensity: 50, Author: "cat"}))

	entries, err := log.ReadForPost("42")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "amy", entries[0].Author)
	assert.Equal(t, "cat", entries[1].Author)

	// "4" must not match "42"
	entries, err = log.ReadForPost("4")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLog_SkipsTornLastLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	log := New(path)
	now := time.Now().UTC()

	require.NoError(t, log.Append(Entry{PostID: "42", TriggeredAt: now, ActedAt: now, Intensity: 10, Author: "amy"}))

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("42,2024-03-01T12:")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	entries, err := log.ReadForPost("42")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLog_AppendAfterTornLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	require.NoError(t, os.WriteFile(path, []byte("42,2024-03-01T12:"), 0o644))

	log := New(path)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, log.Append(Entry{PostID: "42", TriggeredAt: now, ActedAt: now, Intensity: 30, Author: "bob"}))
	require.NoError(t, log.Append(Entry{PostID: "42", TriggeredAt: now, ActedAt: now, Intensity: 40, Author: "cat"}))

	entries, err := log.ReadForPost("42")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "bob", entries[0].Author)
	assert.Equal(t, 30, entries[0].Intensity)
	assert.Equal(t, "cat", entries[1].Author)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(data), "\n"))
}

func TestLog_ReadMissingFile(t *testing.T) {
	log := New(filepath.Join(t.TempDir(), "missing.txt"))

	entries, err := log.ReadForPost("42")
	require.NoError(t, err)
	assert.Empty(t, entries)
}
