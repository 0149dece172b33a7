// Package driver runs the server's periodic maintenance: each Sweeper is
// ticked on a fixed interval for the lifetime of the process.
package driver

import (
	"context"
	"log/slog"
	"time"
)

const DefaultInterval = time.Second

// Sweeper is one periodic maintenance pass over shared server state, such as
// the liveness sweep or the item resend sweep. A sweep error is logged, not
// fatal: one bad pass must not stop the others.
type Sweeper interface {
	Name() string
	Sweep(context.Context) error
}

type SweepDriver struct {
	interval time.Duration
	sweepers []Sweeper
}

func NewSweepDriver(sweepers []Sweeper, opts ...SweepDriverOpt) *SweepDriver {
	d := &SweepDriver{
		interval: DefaultInterval,
		sweepers: sweepers,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

func (d *SweepDriver) Start(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

func (d *SweepDriver) Tick(ctx context.Context) {
	for _, s := range d.sweepers {
		if err := s.Sweep(ctx); err != nil {
			slog.WarnContext(ctx, "sweep failed", "sweep", s.Name(), "error", err)
		}
	}
}
