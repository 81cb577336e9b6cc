package device

import "context"

// Device performs the physical side effect for an actuation.
// Levels are fractions in [0, 1].
type Device interface {
	Apply(ctx context.Context, level float64) error
	Stop(ctx context.Context) error
	Close() error
}

func clampLevel(level float64) float64 {
	if level < 0 {
		return 0
	}
	if level > 1 {
		return 1
	}
	return level
}
