package stats

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bzz-bot/bzz/internal/actuator"
	"github.com/bzz-bot/bzz/internal/state"
	"github.com/bzz-bot/bzz/internal/storage"
	"github.com/bzz-bot/bzz/internal/triggerlog"
)

// Generator produces the text appended to a post when it is closed.
// Generate has no side effects; Commit records whatever the stats depend on
// once the closed post has been published.
type Generator interface {
	Generate(postID string) (string, error)
	Commit(postID string) error
}

// FormatUserList joins names as "a, b and c", prefixing each with prefix
func FormatUserList(names []string, prefix string) string {
	if len(names) == 0 {
		return ""
	}
	withPrefix := make([]string, len(names))
	for i, n := range names {
		withPrefix[i] = prefix + n
	}
	if len(withPrefix) == 1 {
		return withPrefix[0]
	}
	return strings.Join(withPrefix[:len(withPrefix)-1], ", ") + " and " + withPrefix[len(withPrefix)-1]
}

// LogStats summarizes the trigger log for a post and tracks first-time visitors
type LogStats struct {
	log   *triggerlog.Log
	known *state.KnownUsers
}

// Ensure LogStats implements Generator
var _ Generator = (*LogStats)(nil)

// NewLogStats creates a generator over the trigger log and known-users file
func NewLogStats(log *triggerlog.Log, known *state.KnownUsers) *LogStats {
	return &LogStats{log: log, known: known}
}

// Generate reports the max intensity and who sent it, the average, and how many
// users triggered for the first time
func (s *LogStats) Generate(postID string) (string, error) {
	entries, err := s.log.ReadForPost(postID)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "\n\nNo triggers received! :(", nil
	}

	known, err := s.known.Load()
	if err != nil {
		return "", fmt.Errorf("failed to load known users: %w", err)
	}

	maxIntensity := -1
	biggest := make(map[string]struct{})
	newUsers := make(map[string]struct{})
	total := 0

	for _, e := range entries {
		if _, seen := known[e.Author]; !seen {
			newUsers[e.Author] = struct{}{}
		}
		switch {
		case e.Intensity > maxIntensity:
			maxIntensity = e.Intensity
			biggest = map[string]struct{}{e.Author: {}}
		case e.Intensity == maxIntensity:
			biggest[e.Author] = struct{}{}
		}
		total += e.Intensity
	}

	average := strconv.FormatFloat(float64(total)/float64(len(entries)), 'f', -1, 64)
	return fmt.Sprintf("\n\nMax was %d (from %s)\nAverage was %s across %d triggers\n%d new users",
		maxIntensity, FormatUserList(sortedKeys(biggest), "@"), average, len(entries), len(newUsers)), nil
}

// Commit adds the post's authors to the known-users file
func (s *LogStats) Commit(postID string) error {
	entries, err := s.log.ReadForPost(postID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	known, err := s.known.Load()
	if err != nil {
		return fmt.Errorf("failed to load known users: %w", err)
	}
	for _, e := range entries {
		known[e.Author] = struct{}{}
	}
	if err := s.known.Save(known); err != nil {
		return fmt.Errorf("failed to save known users: %w", err)
	}
	return nil
}

// RampStats reports the records kept by the ramp strategy
type RampStats struct {
	store storage.StorageInterface
	path  string
	now   func() time.Time
}

// Ensure RampStats implements Generator
var _ Generator = (*RampStats)(nil)

// NewRampStats creates a generator reading the ramp stats file
func NewRampStats(store storage.StorageInterface, path string, now func() time.Time) *RampStats {
	if now == nil {
		now = time.Now
	}
	return &RampStats{store: store, path: path, now: now}
}

func (s *RampStats) Generate(postID string) (string, error) {
	snap, err := actuator.LoadRampSnapshot(s.store, s.path)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n\nClosed at %s\n\n", s.now().Format("15:04, Jan 02"))
	fmt.Fprintf(&b, "- Max intensity was %d (from %s)\n", snap.MaxIntensity, FormatUserList(snap.MaxIntensityParticipants, "@"))
	fmt.Fprintf(&b, "- Longest run was %d seconds, well done %s!\n", snap.MaxRun, FormatUserList(snap.MaxRunParticipants, "@"))
	return b.String(), nil
}

// Commit is a no-op; the ramp strategy persists its records as it runs
func (s *RampStats) Commit(postID string) error {
	return nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
