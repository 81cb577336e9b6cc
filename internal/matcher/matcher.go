package matcher

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/bzz-bot/bzz/internal/config"
	"github.com/bzz-bot/bzz/internal/models"
	"github.com/samber/mo"
	"github.com/sirupsen/logrus"
)

// Matcher inspects one reply and either yields a trigger or rejects it
type Matcher interface {
	Parse(reply models.Reply) mo.Option[models.Trigger]
}

// PatternMatcher looks for a prefix character followed by a run of marker characters,
// e.g. "bzzz". Intensity is the run length times a per-unit value.
type PatternMatcher struct {
	pattern   *regexp.Regexp
	maxRepeat int
	unit      int
	denyList  map[string]struct{}
	allowList map[string]struct{}
}

// Ensure PatternMatcher implements Matcher
var _ Matcher = (*PatternMatcher)(nil)

// NewPatternMatcher builds a matcher from the matcher settings and allow/deny lists.
// A nil list is inactive; an empty allow list rejects everyone.
func NewPatternMatcher(cfg config.MatcherConfig, denyList, allowList []string) *PatternMatcher {
	prefix := regexp.QuoteMeta(cfg.Prefix)
	marker := regexp.QuoteMeta(cfg.Marker)

	return &PatternMatcher{
		// Runs are captured whole so an over-long run can be rejected rather than truncated
		pattern:   regexp.MustCompile(fmt.Sprintf(`(?i)%s(%s+)`, prefix, marker)),
		maxRepeat: cfg.MaxRepeat,
		unit:      cfg.Unit,
		denyList:  toSet(denyList),
		allowList: toSet(allowList),
	}
}

// Parse returns a trigger for the first marker run of acceptable length
func (m *PatternMatcher) Parse(reply models.Reply) mo.Option[models.Trigger] {
	count, ok := m.markerCount(reply.Content)
	if !ok {
		return mo.None[models.Trigger]()
	}

	intensity := count * m.unit
	author := strings.ToLower(reply.Author)
	sent := reply.CreatedAt.Format("2006-01-02T15:04:05.000000-07:00")

	if m.denyList != nil {
		if _, denied := m.denyList[author]; denied {
			logrus.Infof("Skipping %d from %s, sent %s [denylist]", intensity, reply.Author, sent)
			return mo.None[models.Trigger]()
		}
	}
	if m.allowList != nil {
		if _, allowed := m.allowList[author]; !allowed {
			logrus.Infof("Skipping %d from %s, sent %s [allowlist]", intensity, reply.Author, sent)
			return mo.None[models.Trigger]()
		}
	}

	logrus.Infof("Pushing %d from %s, sent %s", intensity, reply.Author, sent)
	return mo.Some(models.NewUserTrigger(intensity, reply.Author, reply.CreatedAt))
}

func (m *PatternMatcher) markerCount(content string) (int, bool) {
	for _, match := range m.pattern.FindAllStringSubmatch(content, -1) {
		count := utf8.RuneCountInString(match[1])
		if count <= m.maxRepeat {
			return count, true
		}
	}
	return 0, false
}

func toSet(values []string) map[string]struct{} {
	if values == nil {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[strings.ToLower(v)] = struct{}{}
	}
	return set
}
