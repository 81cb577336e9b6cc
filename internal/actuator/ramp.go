package actuator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/bzz-bot/bzz/internal/config"
	"github.com/bzz-bot/bzz/internal/device"
	"github.com/bzz-bot/bzz/internal/models"
	"github.com/bzz-bot/bzz/internal/queue"
	"github.com/bzz-bot/bzz/internal/storage"
	"github.com/bzz-bot/bzz/internal/triggerlog"
	"github.com/sirupsen/logrus"
)

// RampSnapshot is the persisted state of the ramp strategy: the current run plus
// the records used for close-time stats.
type RampSnapshot struct {
	MaxIntensity             int      `json:"max_intensity"`
	MaxIntensityParticipants []string `json:"max_intensity_participants"`
	MaxRun                   int      `json:"max_run"`
	MaxRunParticipants       []string `json:"max_run_participants"`

	Level           int       `json:"level"`
	WindowEnd       time.Time `json:"window_end"`
	CurrentRun      int       `json:"current_run"`
	RunParticipants []string  `json:"run_participants"`
}

// LoadRampSnapshot reads the snapshot at path. A missing file yields an empty snapshot.
func LoadRampSnapshot(store storage.StorageInterface, path string) (RampSnapshot, error) {
	var snap RampSnapshot

	data, err := store.Retrieve(path)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return snap, nil
		}
		return snap, err
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("failed to decode ramp stats %s: %w", path, err)
	}
	return snap, nil
}

type rampState struct {
	level           int
	windowEnd       time.Time
	run             int
	runParticipants map[string]struct{}

	maxIntensity             int
	maxIntensityParticipants map[string]struct{}
	maxRun                   int
	maxRunParticipants       map[string]struct{}
}

func (s rampState) clone() rampState {
	c := s
	c.runParticipants = copySet(s.runParticipants)
	c.maxIntensityParticipants = copySet(s.maxIntensityParticipants)
	c.maxRunParticipants = copySet(s.maxRunParticipants)
	return c
}

// Ramp accumulates user triggers into a level that decays back to a baseline.
// Each user trigger adds its scaled intensity and extends the window by the hold
// time; once the window passes the idle handler queues decay steps.
type Ramp struct {
	base
	cfg       config.RampConfig
	store     storage.StorageInterface
	statsPath string

	state rampState
}

// Ensure Ramp implements Actuator and IdleHandler
var (
	_ Actuator    = (*Ramp)(nil)
	_ IdleHandler = (*Ramp)(nil)
)

// NewRamp creates the ramp strategy, restoring any persisted state
func NewRamp(dev device.Device, log *triggerlog.Log, scaler float64, cfg config.RampConfig, store storage.StorageInterface, now Clock) (*Ramp, error) {
	r := &Ramp{
		base:      newBase(dev, log, scaler, now),
		cfg:       cfg,
		store:     store,
		statsPath: cfg.StatsFile,
	}

	snap, err := LoadRampSnapshot(store, cfg.StatsFile)
	if err != nil {
		return nil, err
	}

	r.state = rampState{
		level:                    snap.Level,
		windowEnd:                snap.WindowEnd,
		run:                      snap.CurrentRun,
		runParticipants:          toSet(snap.RunParticipants),
		maxIntensity:             snap.MaxIntensity,
		maxIntensityParticipants: toSet(snap.MaxIntensityParticipants),
		maxRun:                   snap.MaxRun,
		maxRunParticipants:       toSet(snap.MaxRunParticipants),
	}
	if r.state.level < cfg.Baseline {
		r.state.level = cfg.Baseline
	}
	if r.state.windowEnd.IsZero() {
		r.state.windowEnd = r.now()
	}

	return r, nil
}

func (r *Ramp) Act(ctx context.Context, trigger models.Trigger, postID string) (bool, error) {
	now := r.now()
	next := r.state.clone()

	if next.windowEnd.Before(now) {
		next.windowEnd = now
	}

	user := !trigger.IsSystem()
	extend := r.cfg.DecaySeconds
	if user {
		extend = r.cfg.HoldSeconds
	}
	next.windowEnd = next.windowEnd.Add(time.Duration(extend) * time.Second)
	logrus.Infof("Trigger from %s added %ds; window ends %s (%.0fs)",
		trigger.AuthorOrHost(), extend, next.windowEnd.Format(time.TimeOnly), next.windowEnd.Sub(now).Seconds())

	if user {
		if err := r.record(trigger, postID, now); err != nil {
			return false, err
		}
		next.runParticipants[trigger.AuthorOrHost()] = struct{}{}
	}

	change := -r.cfg.Reduction
	if user {
		change = int(math.Round(float64(trigger.Intensity) * r.scaler))
	}
	logrus.Infof("Modifying intensity %d by %d on behalf of %s", next.level, change, trigger.AuthorOrHost())

	next.level += change
	if next.level > r.cfg.Ceiling {
		next.level = r.cfg.Ceiling
	}

	if next.level <= r.cfg.Baseline {
		logrus.Infof("Intensity is at baseline (%d); ending run of %ds", r.cfg.Baseline, next.run)
		next.level = r.cfg.Baseline
		next.run = 0
		next.runParticipants = make(map[string]struct{})
	} else {
		next.run += extend
	}

	if next.run > next.maxRun {
		logrus.Infof("New max run! %ds", next.run)
		next.maxRun = next.run
		next.maxRunParticipants = copySet(next.runParticipants)
	}

	if user && next.level > r.cfg.Baseline {
		if next.level > next.maxIntensity {
			logrus.Infof("New max intensity! %d by %s", next.level, trigger.AuthorOrHost())
			next.maxIntensity = next.level
			next.maxIntensityParticipants = map[string]struct{}{trigger.AuthorOrHost(): {}}
		} else if next.level == next.maxIntensity {
			logrus.Infof("Matched max intensity! %d by %s", next.level, trigger.AuthorOrHost())
			next.maxIntensityParticipants[trigger.AuthorOrHost()] = struct{}{}
		}
	}

	if err := r.device.Apply(ctx, float64(next.level)/100); err != nil {
		return false, err
	}

	r.state = next
	r.done()
	if err := r.persist(); err != nil {
		// The device already moved; keep going with in-memory state
		logrus.Errorf("Failed to persist ramp stats: %v", err)
	}
	return true, nil
}

// OnEmpty queues a decay step when the window has passed and the level is above baseline
func (r *Ramp) OnEmpty(q *queue.Queue) bool {
	if r.now().After(r.state.windowEnd) && r.state.level > r.cfg.Baseline {
		q.Push(models.NewSystemTrigger(r.cfg.Reduction))
		return true
	}
	return false
}

// Snapshot returns the current persisted view of the ramp
func (r *Ramp) Snapshot() RampSnapshot {
	return RampSnapshot{
		MaxIntensity:             r.state.maxIntensity,
		MaxIntensityParticipants: sortedKeys(r.state.maxIntensityParticipants),
		MaxRun:                   r.state.maxRun,
		MaxRunParticipants:       sortedKeys(r.state.maxRunParticipants),
		Level:                    r.state.level,
		WindowEnd:                r.state.windowEnd,
		CurrentRun:               r.state.run,
		RunParticipants:          sortedKeys(r.state.runParticipants),
	}
}

func (r *Ramp) persist() error {
	data, err := json.MarshalIndent(r.Snapshot(), "", "  ")
	if err != nil {
		return err
	}
	return r.store.Store(r.statsPath, data)
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func copySet(in map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for k := range in {
		out[k] = struct{}{}
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
