package engine

import (
	"context"
	"time"
)

// PhasePollInterval is the cancel polling cadence of static phases.
const PhasePollInterval = 5 * time.Millisecond

// RunStaticPhase shows img for d. A cancelled phase is abandoned where it is,
// never extended.
func RunStaticPhase(ctx context.Context, img Image, d time.Duration, sink FrameSink, clock Clock, escapeCancels bool) Result {
	sink.Present(img)
	start := clock.Now()
	for {
		elapsed := clock.Now().Sub(start)
		if elapsed >= d {
			return completed(elapsed)
		}
		if _, reason := pollCancel(ctx, sink, escapeCancels); reason != NotCancelled {
			return cancelled(reason, clock.Now().Sub(start))
		}
		clock.Sleep(min(PhasePollInterval, d-elapsed))
	}
}
