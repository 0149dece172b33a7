package driver

import "time"

type SweepDriverOpt func(*SweepDriver)

func WithInterval(d time.Duration) SweepDriverOpt {
	return func(sd *SweepDriver) {
		sd.interval = d
	}
}
