package engine

import "time"

type PhaseKind int

const (
	PhaseInstruction PhaseKind = iota
	PhaseFixation
	PhaseCheckerboard
)

func (k PhaseKind) String() string {
	switch k {
	case PhaseInstruction:
		return "instruction"
	case PhaseFixation:
		return "fixation"
	case PhaseCheckerboard:
		return "checkerboard"
	}
	return "unknown"
}

// ParsePhaseKind is the inverse of PhaseKind.String.
func ParsePhaseKind(s string) (PhaseKind, bool) {
	switch s {
	case "instruction":
		return PhaseInstruction, true
	case "fixation":
		return PhaseFixation, true
	case "checkerboard":
		return PhaseCheckerboard, true
	}
	return 0, false
}

type Outcome int

const (
	Completed Outcome = iota
	Cancelled
)

func (o Outcome) String() string {
	if o == Cancelled {
		return "cancelled"
	}
	return "completed"
}

// CancelReason tells a user abort apart from the host closing the window.
type CancelReason int

const (
	NotCancelled CancelReason = iota
	UserCancelled
	HostQuit
)

func (r CancelReason) String() string {
	switch r {
	case UserCancelled:
		return "user"
	case HostQuit:
		return "host"
	}
	return ""
}

// Result is what a scheduler hands back to the runner.
type Result struct {
	Outcome Outcome
	Reason  CancelReason
	Elapsed time.Duration

	// Checkerboard phases only.
	Flips         int
	ExpectedFlips int
}

func completed(elapsed time.Duration) Result {
	return Result{Outcome: Completed, Elapsed: elapsed}
}

func cancelled(reason CancelReason, elapsed time.Duration) Result {
	return Result{Outcome: Cancelled, Reason: reason, Elapsed: elapsed}
}
