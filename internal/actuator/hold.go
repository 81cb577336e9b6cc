package actuator

import (
	"context"
	"time"

	"github.com/bzz-bot/bzz/internal/device"
	"github.com/bzz-bot/bzz/internal/models"
	"github.com/bzz-bot/bzz/internal/queue"
	"github.com/bzz-bot/bzz/internal/triggerlog"
	"github.com/sirupsen/logrus"
)

// Hold sets a level and keeps it for a fixed window. Triggers arriving while a
// window is open wait at the head of the queue. When the window has passed and
// nothing is pending, the idle handler resets the device to zero.
type Hold struct {
	base
	hold time.Duration

	lastIntensity int
	windowEnd     time.Time
}

// Ensure Hold implements Actuator and IdleHandler
var (
	_ Actuator    = (*Hold)(nil)
	_ IdleHandler = (*Hold)(nil)
)

// NewHold creates the hold strategy
func NewHold(dev device.Device, log *triggerlog.Log, scaler float64, hold time.Duration, now Clock) *Hold {
	h := &Hold{base: newBase(dev, log, scaler, now), hold: hold}
	h.windowEnd = h.now()
	return h
}

func (h *Hold) Act(ctx context.Context, trigger models.Trigger, postID string) (bool, error) {
	now := h.now()
	if now.Before(h.windowEnd) {
		logrus.Debugf("Holding %d until %s", h.lastIntensity, h.windowEnd.Format(time.TimeOnly))
		return false, nil
	}

	if err := h.record(trigger, postID, now); err != nil {
		return false, err
	}

	logrus.Infof("Setting %d (%.2f) on behalf of %s", trigger.Intensity, float64(trigger.Intensity)/100, trigger.AuthorOrHost())
	level := h.level(float64(trigger.Intensity))
	if h.scaler != 1 {
		logrus.Infof("Scaled trigger: %.1f", level*100)
	}

	var err error
	if trigger.Intensity == 0 {
		err = h.device.Stop(ctx)
	} else {
		err = h.device.Apply(ctx, level)
	}
	if err != nil {
		return false, err
	}

	h.lastIntensity = trigger.Intensity
	h.windowEnd = now.Add(h.hold)
	h.done()
	return true, nil
}

// OnEmpty queues a reset to zero once the window has passed
func (h *Hold) OnEmpty(q *queue.Queue) bool {
	if h.now().After(h.windowEnd) && h.lastIntensity > 0 {
		q.Push(models.NewSystemTrigger(0))
		return true
	}
	return false
}

// LastIntensity returns the most recently applied unscaled intensity
func (h *Hold) LastIntensity() int {
	return h.lastIntensity
}
