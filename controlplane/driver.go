package controlplane

import (
	"context"
	"time"

	"github.com/hupe1980/runmesh/logging"
)

// DefaultTickInterval is the Driver's default tick period.
const DefaultTickInterval = 500 * time.Millisecond

// DriverOptions configures a Driver.
type DriverOptions struct {
	Interval time.Duration
	Logger   logging.Logger
}

// Driver calls ProcessOnce on a ticker. Each tick dispatches until the queue
// is empty or the limiter is full.
type Driver struct {
	cp       *ControlPlane
	interval time.Duration
	logger   logging.Logger
}

// NewDriver creates a driver for cp.
func NewDriver(cp *ControlPlane, optFns ...func(o *DriverOptions)) *Driver {
	opts := DriverOptions{Interval: DefaultTickInterval}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultTickInterval
	}

	return &Driver{cp: cp, interval: opts.Interval, logger: logging.OrNoOp(opts.Logger)}
}

// Run ticks until ctx is done and returns ctx.Err().
func (d *Driver) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

// Tick dispatches until ProcessOnce reports nothing was submitted and
// returns the number of submitted jobs. Errors are logged.
func (d *Driver) Tick(ctx context.Context) int {
	submitted := 0
	for ctx.Err() == nil {
		ok, err := d.cp.ProcessOnce(ctx)
		if err != nil {
			d.logger.Warn("Dispatch tick error", "error", err)
		}
		if !ok {
			break
		}
		submitted++
	}
	return submitted
}
