package engine

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/bzz-bot/bzz/internal/models"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(replies []models.Reply) []string {
	out := make([]string, len(replies))
	for i, r := range replies {
		out[i] = r.ID
	}
	return out
}

func TestSortReplies_ByCreationTime(t *testing.T) {
	replies := []models.Reply{
		reply("9", 3*time.Second, ""),
		reply("10", 1*time.Second, ""),
		reply("8", 2*time.Second, ""),
	}
	SortReplies(replies)
	assert.Equal(t, []string{"10", "8", "9"}, ids(replies))
}

func TestSortReplies_SameTimeOrdersByID(t *testing.T) {
	replies := []models.Reply{
		reply("100", 2*time.Second, ""),
		reply("99", 2*time.Second, ""),
		reply("7", 1*time.Second, ""),
		reply("1000", 2*time.Second, ""),
	}
	SortReplies(replies)
	assert.Equal(t, []string{"7", "99", "100", "1000"}, ids(replies))
}

func TestNewReplies(t *testing.T) {
	sorted := []models.Reply{
		reply("101", 1*time.Second, ""),
		reply("102", 2*time.Second, ""),
		reply("103", 3*time.Second, ""),
	}

	tests := []struct {
		name       string
		checkpoint mo.Option[string]
		expected   []string
	}{
		{name: "No checkpoint", checkpoint: mo.None[string](), expected: []string{"101", "102", "103"}},
		{name: "Middle", checkpoint: mo.Some("101"), expected: []string{"102", "103"}},
		{name: "Last", checkpoint: mo.Some("103"), expected: []string{}},
		{name: "Deleted checkpoint newer than all replies", checkpoint: mo.Some("1015"), expected: []string{}},
		{name: "Deleted checkpoint with leading zeros", checkpoint: mo.Some("0102"), expected: []string{"103"}},
		{name: "Non-numeric missing checkpoint skips batch", checkpoint: mo.Some("abc"), expected: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ids(NewReplies(sorted, tt.checkpoint)))
		})
	}
}

func TestNewReplies_DeletedCheckpointKeepsLaterReplies(t *testing.T) {
	sorted := []models.Reply{
		reply("101", 1*time.Second, ""),
		reply("104", 4*time.Second, ""),
		reply("105", 5*time.Second, ""),
	}
	assert.Equal(t, []string{"104", "105"}, ids(NewReplies(sorted, mo.Some("102"))))
}

func TestDirectReplies(t *testing.T) {
	nested := reply("102", 2*time.Second, "")
	nested.InReplyToID = "101"
	replies := []models.Reply{reply("101", time.Second, ""), nested}

	assert.Equal(t, []string{"101"}, ids(DirectReplies(replies, "42")))
	assert.Empty(t, DirectReplies(replies, "7"))
}

func TestCompareNumericIDs(t *testing.T) {
	assert.Equal(t, -1, compareNumericIDs("99", "100"))
	assert.Equal(t, 1, compareNumericIDs("111111111111111112", "111111111111111111"))
	assert.Equal(t, 0, compareNumericIDs("007", "7"))
}

func TestLinePrompter_ReadsAnswer(t *testing.T) {
	var out bytes.Buffer
	p := NewLinePrompter(strings.NewReader("  12345 \n"), &out)

	id, err := p.AskPostID(postPreview("Reply with bzz", "game", "unlisted", true))
	require.NoError(t, err)
	assert.Equal(t, "12345", id)
	assert.Contains(t, out.String(), "Will post new UNLISTED status in STRICT mode")
	assert.Contains(t, out.String(), " CW: game")
}

func TestLinePrompter_BlankAndEOF(t *testing.T) {
	id, err := NewLinePrompter(strings.NewReader("\n"), &bytes.Buffer{}).AskPostID("")
	require.NoError(t, err)
	assert.Equal(t, "", id)

	_, err = NewLinePrompter(strings.NewReader(""), &bytes.Buffer{}).AskPostID("")
	assert.Error(t, err)
}

func TestPostPreview_WrapsLongBodies(t *testing.T) {
	preview := postPreview(strings.Repeat("x", 150), "", "public", false)
	assert.Contains(t, preview, "NON-STRICT")
	assert.Contains(t, preview, strings.Repeat("x", 70)+"\n"+strings.Repeat("x", 70)+"\n"+strings.Repeat("x", 10))
}
