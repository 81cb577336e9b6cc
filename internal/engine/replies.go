package engine

import (
	"sort"
	"strings"

	"github.com/bzz-bot/bzz/internal/models"
	"github.com/bzz-bot/bzz/internal/state"
	"github.com/samber/mo"
	"github.com/sirupsen/logrus"
)

// SortReplies orders replies by creation time, then by numeric id on ties
func SortReplies(replies []models.Reply) {
	sort.SliceStable(replies, func(i, j int) bool {
		a, b := replies[i], replies[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return compareNumericIDs(a.ID, b.ID) < 0
	})
}

// DirectReplies keeps only replies whose parent is the target post
func DirectReplies(replies []models.Reply, targetID string) []models.Reply {
	var direct []models.Reply
	for _, r := range replies {
		if r.InReplyToID == targetID {
			direct = append(direct, r)
		}
	}
	return direct
}

// NewReplies returns the part of a sorted reply list that comes strictly after the
// checkpointed reply, or everything when there is no checkpoint.
//
// If the checkpointed reply is gone from the thread (deleted), replies with a
// numerically greater id are treated as new; ids are time-ordered snowflakes on
// Mastodon-compatible servers.
func NewReplies(sorted []models.Reply, checkpoint mo.Option[string]) []models.Reply {
	last, ok := checkpoint.Get()
	if !ok {
		return sorted
	}

	for i, r := range sorted {
		if r.ID == last {
			return sorted[i+1:]
		}
	}

	if !state.IsNumericID(last) {
		logrus.Warnf("Checkpoint %s not found in thread; skipping batch", last)
		return nil
	}

	logrus.Warnf("Checkpoint %s not found in thread; resuming by id order", last)
	var newer []models.Reply
	for _, r := range sorted {
		if state.IsNumericID(r.ID) && compareNumericIDs(r.ID, last) > 0 {
			newer = append(newer, r)
		}
	}
	return newer
}

// compareNumericIDs compares two decimal strings of arbitrary length
func compareNumericIDs(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}
