package activity

import (
	"context"
	"time"
)

// Runner ticks a Log on an interval until its context is cancelled.
type Runner struct {
	Log      *Log
	Interval time.Duration

	// OnPhase is called with the status whenever a tick observes a phase
	// different from the previous tick.
	OnPhase func(Status)
}

func (r *Runner) Run(ctx context.Context) {
	interval := r.Interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := r.Log.Status().Phase
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := r.Log.Tick()
			if st.Phase != last {
				last = st.Phase
				if r.OnPhase != nil {
					r.OnPhase(st)
				}
			}
		}
	}
}
