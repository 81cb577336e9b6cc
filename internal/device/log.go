package device

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogDevice only logs what would be sent; used for dry runs
type LogDevice struct{}

// Ensure LogDevice implements Device
var _ Device = (*LogDevice)(nil)

// NewLogDevice creates a dry-run device
func NewLogDevice() *LogDevice {
	return &LogDevice{}
}

func (d *LogDevice) Apply(ctx context.Context, level float64) error {
	logrus.Infof("[dry run] would apply level %.2f", clampLevel(level))
	return nil
}

func (d *LogDevice) Stop(ctx context.Context) error {
	logrus.Info("[dry run] would stop device")
	return nil
}

func (d *LogDevice) Close() error {
	return nil
}
