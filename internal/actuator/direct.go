package actuator

import (
	"context"

	"github.com/bzz-bot/bzz/internal/device"
	"github.com/bzz-bot/bzz/internal/models"
	"github.com/bzz-bot/bzz/internal/triggerlog"
	"github.com/sirupsen/logrus"
)

// Direct applies every trigger as soon as it reaches the head of the queue
type Direct struct {
	base
}

// Ensure Direct implements Actuator
var _ Actuator = (*Direct)(nil)

// NewDirect creates the direct strategy
func NewDirect(dev device.Device, log *triggerlog.Log, scaler float64, now Clock) *Direct {
	return &Direct{base: newBase(dev, log, scaler, now)}
}

func (d *Direct) Act(ctx context.Context, trigger models.Trigger, postID string) (bool, error) {
	if err := d.record(trigger, postID, d.now()); err != nil {
		return false, err
	}

	level := d.level(float64(trigger.Intensity))
	logrus.Infof("Sending %d (%.2f) on behalf of %s", trigger.Intensity, float64(trigger.Intensity)/100, trigger.AuthorOrHost())
	if d.scaler != 1 {
		logrus.Infof("Scaled trigger: %.1f", level*100)
	}

	if err := d.device.Apply(ctx, level); err != nil {
		return false, err
	}

	d.done()
	return true, nil
}
