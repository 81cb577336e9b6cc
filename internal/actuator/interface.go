package actuator

import (
	"context"
	"fmt"
	"time"

	"github.com/bzz-bot/bzz/internal/device"
	"github.com/bzz-bot/bzz/internal/models"
	"github.com/bzz-bot/bzz/internal/queue"
	"github.com/bzz-bot/bzz/internal/triggerlog"
)

// Actuator consumes the head trigger.
// (true, nil) means done, (false, nil) means not yet and the head must stay,
// and a non-nil error is a transient failure to be retried on the next cycle.
type Actuator interface {
	Act(ctx context.Context, trigger models.Trigger, postID string) (bool, error)
}

// IdleHandler is consulted when the queue is empty at the start of an actor cycle.
// It may push system triggers; returning true asks for an immediate re-run.
type IdleHandler interface {
	OnEmpty(q *queue.Queue) bool
}

// Clock returns the current time
type Clock func() time.Time

// base holds what every strategy needs: the device, the trigger log and the scale factor
type base struct {
	device device.Device
	log    *triggerlog.Log
	scaler float64
	now    Clock

	// head trigger already written to the log but not yet reported done
	logged    bool
	loggedFor models.Trigger
}

func newBase(dev device.Device, log *triggerlog.Log, scaler float64, now Clock) base {
	if now == nil {
		now = time.Now
	}
	return base{device: dev, log: log, scaler: scaler, now: now}
}

// record appends a log entry for user triggers. A retried head is only logged once.
func (b *base) record(trigger models.Trigger, postID string, actedAt time.Time) error {
	src, ok := trigger.Source.Get()
	if !ok {
		return nil
	}
	if b.logged && b.loggedFor == trigger {
		return nil
	}

	err := b.log.Append(triggerlog.Entry{
		PostID:      postID,
		TriggeredAt: src.CreatedAt,
		ActedAt:     actedAt,
		Intensity:   trigger.Intensity,
		Author:      src.Author,
	})
	if err != nil {
		return fmt.Errorf("failed to log trigger: %w", err)
	}

	b.logged = true
	b.loggedFor = trigger
	return nil
}

// done forgets the logged head once the actuation succeeded
func (b *base) done() {
	b.logged = false
	b.loggedFor = models.Trigger{}
}

// level converts a 0-100 intensity into a scaled device level
func (b *base) level(intensity float64) float64 {
	return intensity / 100 * b.scaler
}
