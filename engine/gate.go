package engine

import (
	"context"
	"fmt"
	"time"
)

// GatePollInterval bounds how long a start or cancel input can sit unnoticed.
const GatePollInterval = 10 * time.Millisecond

type StartSource int

const (
	StartedBySpace StartSource = iota + 1
	StartedByTriggerChar
	StartedByTriggerSource
)

func (s StartSource) String() string {
	switch s {
	case StartedBySpace:
		return "spacebar"
	case StartedByTriggerChar:
		return "trigger character"
	case StartedByTriggerSource:
		return "trigger source"
	}
	return "none"
}

type StartResult struct {
	Outcome Outcome
	Reason  CancelReason
	Source  StartSource
}

// AwaitStart shows the waiting screen and blocks until the configured start
// condition is met or the operator cancels. There is deliberately no timeout.
func AwaitStart(ctx context.Context, cfg SessionConfig, trigger TriggerSource, sink FrameSink, clock Clock) StartResult {
	sink.ShowMessage(WaitingMessage(cfg))
	for {
		ev, reason := pollCancel(ctx, sink, cfg.EscapeCancels)
		if reason != NotCancelled {
			return StartResult{Outcome: Cancelled, Reason: reason}
		}
		if ev.Start && cfg.StartMode.acceptsSpace() {
			return StartResult{Outcome: Completed, Source: StartedBySpace}
		}
		if cfg.StartMode.acceptsTrigger() {
			for _, r := range ev.Typed {
				if cfg.isTriggerChar(r) {
					return StartResult{Outcome: Completed, Source: StartedByTriggerChar}
				}
			}
			if trigger != nil && trigger.Pending() {
				return StartResult{Outcome: Completed, Source: StartedByTriggerSource}
			}
		}
		clock.Sleep(GatePollInterval)
	}
}

// WaitingMessage is the text shown while waiting for the start signal.
func WaitingMessage(cfg SessionConfig) string {
	switch cfg.StartMode {
	case StartManual:
		return "fMRI Visual Task - Ready to Start\n\n" +
			"Waiting for manual start...\n\n" +
			"Press SPACEBAR to start\n\n" +
			"Press ESC to cancel"
	case StartTrigger:
		return "fMRI Visual Task - Ready to Start\n\n" +
			"Waiting for scanner trigger signal...\n\n" +
			fmt.Sprintf("Trigger character: '%c'\n\n", cfg.TriggerChar) +
			"Press ESC to cancel"
	}
	return "fMRI Visual Task - Ready to Start\n\n" +
		"Waiting for start signal...\n\n" +
		"Press SPACEBAR to start manually\n" +
		"OR\n" +
		fmt.Sprintf("Wait for scanner trigger signal (character: '%c')\n\n", cfg.TriggerChar) +
		"Press ESC to cancel"
}

// pollCancel drains one batch of host events. Quit wins over cancel, and both
// win over anything else in the same batch.
func pollCancel(ctx context.Context, sink FrameSink, escapeCancels bool) (Events, CancelReason) {
	if ctx.Err() != nil {
		return Events{}, HostQuit
	}
	ev := sink.PollEvents()
	if ev.Quit {
		return ev, HostQuit
	}
	if escapeCancels && ev.Cancel {
		return ev, UserCancelled
	}
	return ev, NotCancelled
}
