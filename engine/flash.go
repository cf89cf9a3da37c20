package engine

import (
	"context"
	"math"
	"time"
)

const (
	// FlashSleepQuantum is the idle sleep between flip deadlines.
	FlashSleepQuantum = 250 * time.Microsecond

	// FlipTolerance is how far the flip count may stray from 2*d*hz.
	FlipTolerance = 2
)

// HalfPeriod is how long each of the two checkerboard images stays up.
func HalfPeriod(hz float64) time.Duration {
	return time.Duration(math.Round(float64(time.Second) / (2 * hz)))
}

// ExpectedFlips is round(2*d*hz).
func ExpectedFlips(d time.Duration, hz float64) int {
	return int(math.Round(d.Seconds() * hz * 2))
}

// RunFlashingPhase alternates a and b at hz for d, starting with a.
//
// Deadlines are additive: each one is the previous deadline plus a half
// period, so a late iteration makes the next flip come sooner instead of
// shifting every later flip.
func RunFlashingPhase(ctx context.Context, a, b Image, d time.Duration, hz float64, sink FrameSink, clock Clock, escapeCancels bool) Result {
	half := HalfPeriod(hz)
	expected := ExpectedFlips(d, hz)

	t0 := clock.Now()
	nextFlip := t0
	showA := true
	flips := 0
	for {
		now := clock.Now()
		elapsed := now.Sub(t0)
		if elapsed >= d {
			return Result{Outcome: Completed, Elapsed: elapsed, Flips: flips, ExpectedFlips: expected}
		}
		if _, reason := pollCancel(ctx, sink, escapeCancels); reason != NotCancelled {
			res := cancelled(reason, clock.Now().Sub(t0))
			res.Flips, res.ExpectedFlips = flips, expected
			return res
		}
		if !now.Before(nextFlip) {
			if showA {
				sink.Present(a)
			} else {
				sink.Present(b)
			}
			showA = !showA
			flips++
			nextFlip = nextFlip.Add(half)
			continue
		}
		clock.Sleep(min(FlashSleepQuantum, nextFlip.Sub(now), d-elapsed))
	}
}

// FlipsWithinTolerance reports whether a flip count is close enough to the
// ideal count for its phase.
func FlipsWithinTolerance(flips, expected int) bool {
	diff := flips - expected
	return diff >= -FlipTolerance && diff <= FlipTolerance
}
