package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bzz-bot/bzz/internal/actuator"
	"github.com/bzz-bot/bzz/internal/config"
	"github.com/bzz-bot/bzz/internal/matcher"
	"github.com/bzz-bot/bzz/internal/models"
	"github.com/bzz-bot/bzz/internal/notifications"
	"github.com/bzz-bot/bzz/internal/platform"
	"github.com/bzz-bot/bzz/internal/queue"
	"github.com/bzz-bot/bzz/internal/state"
	"github.com/bzz-bot/bzz/internal/stats"
	"github.com/bzz-bot/bzz/internal/storage"
	"github.com/bzz-bot/bzz/internal/triggerlog"
	"github.com/samber/mo"
	"github.com/sirupsen/logrus"
)

// ErrNoTarget is returned when closing without a stored target post
var ErrNoTarget = errors.New("no target post to close")

// State is the engine lifecycle state
type State int

const (
	StateInitializing State = iota
	StateAttached
	StateRunning
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateAttached:
		return "attached"
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Mode is the command-line mode
type Mode string

const (
	ModeRun       Mode = ""
	ModeNewPost   Mode = "newpost"
	ModeClosePost Mode = "closepost"
)

// ParseMode validates the single positional argument
func ParseMode(arg string) (Mode, error) {
	switch Mode(arg) {
	case ModeRun, ModeNewPost, ModeClosePost:
		return Mode(arg), nil
	default:
		return ModeRun, fmt.Errorf("unknown mode %q (expected newpost or closepost)", arg)
	}
}

// Dependencies are the collaborators composed into the engine.
// Idle, Stats, Archive and Notifier are optional.
type Dependencies struct {
	Platform   platform.Client
	Matcher    matcher.Matcher
	Actuator   actuator.Actuator
	Idle       actuator.IdleHandler
	Stats      stats.Generator
	Archive    storage.StorageInterface
	Notifier   notifications.NotificationInterface
	Checkpoint *state.Checkpoint
	Target     *state.Target
	Log        *triggerlog.Log
	Prompter   Prompter
	Now        func() time.Time
}

// Metrics holds engine counters
type Metrics struct {
	State            string    `json:"state"`
	TargetPostID     string    `json:"target_post_id"`
	LastSeenReplyID  string    `json:"last_seen_reply_id"`
	QueueLength      int       `json:"queue_length"`
	RepliesProcessed int       `json:"replies_processed"`
	TriggersQueued   int       `json:"triggers_queued"`
	TriggersActuated int       `json:"triggers_actuated"`
	Deferrals        int       `json:"deferrals"`
	IdleInjections   int       `json:"idle_injections"`
	FetchErrors      int       `json:"fetch_errors"`
	ActErrors        int       `json:"act_errors"`
	LastRead         time.Time `json:"last_read"`
	LastAct          time.Time `json:"last_act"`
}

// Service polls the target post for replies, turns matches into triggers and
// feeds them to the actuator
type Service struct {
	config *config.Config
	deps   Dependencies
	queue  *queue.Queue

	mu       sync.RWMutex
	state    State
	targetID string
	lastSeen mo.Option[string]
	metrics  Metrics
}

// NewService creates an engine in the initializing state
func NewService(cfg *config.Config, deps Dependencies) *Service {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{
		config:   cfg,
		deps:     deps,
		queue:    queue.New(),
		state:    StateInitializing,
		lastSeen: mo.None[string](),
	}
}

// Queue exposes the trigger queue
func (s *Service) Queue() *queue.Queue {
	return s.queue
}

// State returns the current lifecycle state
func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// TargetID returns the monitored post id, empty before Attach
func (s *Service) TargetID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.targetID
}

// Attach resolves the target post, creating one if needed, and loads the checkpoint
func (s *Service) Attach(ctx context.Context, mode Mode) error {
	if current := s.State(); current != StateInitializing {
		return fmt.Errorf("cannot attach in state %s", current)
	}

	if mode == ModeNewPost {
		if err := s.deps.Target.Clear(); err != nil {
			return err
		}
	}

	stored, err := s.deps.Target.Load()
	if err != nil {
		return err
	}

	targetID, ok := stored.Get()
	if ok {
		logrus.Infof("Listening to existing post %s", targetID)
	} else {
		targetID, err = s.resolveTarget(ctx, mode)
		if err != nil {
			return err
		}
		// Replies of a previous target mean nothing here. Clear before
		// saving so a failed clear never pairs the new target with them.
		if err := s.deps.Checkpoint.Clear(); err != nil {
			return err
		}
		if err := s.deps.Target.Save(targetID); err != nil {
			return err
		}
	}

	lastSeen, err := s.deps.Checkpoint.Load()
	if err != nil {
		return err
	}
	if id, ok := lastSeen.Get(); ok {
		logrus.Infof("Resuming after reply %s", id)
	}

	s.mu.Lock()
	s.targetID = targetID
	s.lastSeen = lastSeen
	s.state = StateAttached
	s.metrics.TargetPostID = targetID
	s.metrics.LastSeenReplyID = lastSeen.OrEmpty()
	s.mu.Unlock()
	return nil
}

func (s *Service) resolveTarget(ctx context.Context, mode Mode) (string, error) {
	answer := ""
	if mode != ModeNewPost {
		preview := postPreview(s.config.PostBody, s.config.PostCW, s.config.PostPrivacy, s.config.Strict)
		var err error
		answer, err = s.deps.Prompter.AskPostID(preview)
		if err != nil {
			return "", err
		}
	}

	if answer != "" {
		if !state.IsNumericID(answer) {
			return "", fmt.Errorf("invalid post id %q", answer)
		}
		logrus.Infof("Listening to post %s", answer)
		return answer, nil
	}

	post, err := s.deps.Platform.CreatePost(ctx, s.config.PostBody, s.config.PostPrivacy, s.config.PostCW)
	if err != nil {
		return "", err
	}
	logrus.Infof("Posted new status %s %s", post.ID, post.URL)
	return post.ID, nil
}

// Begin moves an attached engine to running
func (s *Service) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAttached {
		return fmt.Errorf("cannot start in state %s", s.state)
	}
	s.state = StateRunning
	s.metrics.State = s.state.String()
	logrus.Infof("Engine running on post %s", s.targetID)
	return nil
}

// ReadOnce runs one reader cycle: fetch, filter, order, parse, checkpoint, enqueue
func (s *Service) ReadOnce(ctx context.Context) error {
	if current := s.State(); current != StateRunning {
		return fmt.Errorf("cannot read in state %s", current)
	}

	s.mu.RLock()
	targetID, lastSeen := s.targetID, s.lastSeen
	s.mu.RUnlock()

	replies, err := s.deps.Platform.FetchReplies(ctx, targetID)
	if err != nil {
		s.mu.Lock()
		s.metrics.FetchErrors++
		s.mu.Unlock()
		return fmt.Errorf("failed to fetch replies for %s: %w", targetID, err)
	}

	if s.config.Strict {
		replies = DirectReplies(replies, targetID)
	}

	s.mu.Lock()
	s.metrics.LastRead = s.deps.Now()
	s.mu.Unlock()

	if len(replies) == 0 {
		logrus.Debug("Nothing to process")
		return nil
	}

	SortReplies(replies)
	for _, reply := range NewReplies(replies, lastSeen) {
		trigger := s.deps.Matcher.Parse(reply)

		if err := s.deps.Checkpoint.Save(reply.ID); err != nil {
			return err
		}

		t, ok := trigger.Get()
		if ok {
			s.queue.Push(t)
		}

		s.mu.Lock()
		s.lastSeen = mo.Some(reply.ID)
		s.metrics.LastSeenReplyID = reply.ID
		s.metrics.RepliesProcessed++
		if ok {
			s.metrics.TriggersQueued++
		}
		s.mu.Unlock()

		logrus.Debugf("Last seen is now %s", reply.ID)
	}
	return nil
}

// ActOnce runs one actor cycle. An empty queue consults the idle handler,
// which may ask for one immediate re-run.
func (s *Service) ActOnce(ctx context.Context) error {
	if current := s.State(); current != StateRunning {
		return fmt.Errorf("cannot act in state %s", current)
	}

	for pass := 0; pass < 2; pass++ {
		head, ok := s.queue.Peek()
		if ok {
			return s.actOn(ctx, head)
		}
		if pass > 0 || s.deps.Idle == nil || !s.deps.Idle.OnEmpty(s.queue) {
			return nil
		}

		s.mu.Lock()
		s.metrics.IdleInjections++
		s.mu.Unlock()
		logrus.Debug("Idle handler asked for an immediate re-run")
	}
	return nil
}

func (s *Service) actOn(ctx context.Context, head models.Trigger) error {
	targetID := s.TargetID()
	done, err := s.deps.Actuator.Act(ctx, head, targetID)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.LastAct = s.deps.Now()

	if err != nil {
		s.metrics.ActErrors++
		return fmt.Errorf("failed to actuate trigger from %s: %w", head.AuthorOrHost(), err)
	}
	if !done {
		s.metrics.Deferrals++
		logrus.Debugf("Trigger from %s deferred", head.AuthorOrHost())
		return nil
	}

	s.queue.Pop()
	s.metrics.TriggersActuated++
	return nil
}

// Close marks the target post as finished, appends stats when enabled, archives
// the post's log and notifies. It works from any state except closed.
func (s *Service) Close(ctx context.Context) (*models.CloseSummary, error) {
	if current := s.State(); current == StateClosed {
		return nil, fmt.Errorf("engine already closed")
	}

	stored, err := s.deps.Target.Load()
	if err != nil {
		return nil, err
	}
	targetID, ok := stored.Get()
	if !ok {
		return nil, ErrNoTarget
	}

	post, err := s.deps.Platform.GetPost(ctx, targetID)
	if err != nil {
		return nil, err
	}

	marker := s.config.ClosedMarker
	cw := post.ContentWarning
	switch {
	case strings.Contains(cw, marker):
	case cw == "":
		cw = marker
	default:
		cw = cw + " " + marker
	}

	body := s.config.PostBody
	statsText := ""
	if s.config.CloseStats && s.deps.Stats != nil {
		statsText, err = s.deps.Stats.Generate(targetID)
		if err != nil {
			return nil, fmt.Errorf("failed to generate stats: %w", err)
		}
		body += statsText
	}

	updated, err := s.deps.Platform.UpdatePost(ctx, targetID, body, cw)
	if err != nil {
		return nil, err
	}
	logrus.Infof("Closed post %s", targetID)

	// Only a published close may change what the next close reports
	if statsText != "" {
		if err := s.deps.Stats.Commit(targetID); err != nil {
			logrus.Errorf("Failed to record stats for post %s: %v", targetID, err)
		}
	}

	entries, err := s.deps.Log.ReadForPost(targetID)
	if err != nil {
		return nil, err
	}

	summary := &models.CloseSummary{
		PostID:         targetID,
		PostURL:        updated.URL,
		ContentWarning: cw,
		Stats:          statsText,
		ClosedAt:       s.deps.Now(),
		TriggerCount:   len(entries),
	}
	if summary.PostURL == "" {
		summary.PostURL = post.URL
	}

	if s.deps.Archive != nil {
		if err := s.archive(summary, entries); err != nil {
			logrus.Errorf("Failed to archive post %s: %v", targetID, err)
		}
	}
	if s.deps.Notifier != nil {
		if err := s.deps.Notifier.SendClosed(summary); err != nil {
			logrus.Errorf("Failed to send close notification: %v", err)
		}
	}

	s.mu.Lock()
	s.state = StateClosed
	s.metrics.State = s.state.String()
	s.mu.Unlock()
	return summary, nil
}

func (s *Service) archive(summary *models.CloseSummary, entries []triggerlog.Entry) error {
	prefix := fmt.Sprintf("posts/%s/", summary.PostID)

	var lines strings.Builder
	for _, e := range entries {
		lines.WriteString(e.Line())
		lines.WriteString("\n")
	}
	if err := s.deps.Archive.Store(prefix+"triggers.log", []byte(lines.String())); err != nil {
		return err
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	return s.deps.Archive.Store(prefix+"summary.json", data)
}

// GetMetrics returns current metrics as JSON
func (s *Service) GetMetrics() string {
	s.mu.RLock()
	m := s.metrics
	m.State = s.state.String()
	s.mu.RUnlock()
	m.QueueLength = s.queue.Len()

	data, _ := json.MarshalIndent(m, "", "  ")
	return string(data)
}
