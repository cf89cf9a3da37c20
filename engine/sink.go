package engine

import "time"

// Image is anything a FrameSink knows how to put on screen.
type Image interface {
	Name() string
}

// Events is what one PollEvents call drained from the host.
type Events struct {
	Quit   bool
	Cancel bool
	Start  bool
	Typed  []rune
}

// FrameSink renders images and reports input. PollEvents must not block.
type FrameSink interface {
	Present(img Image)
	ShowMessage(text string)
	PollEvents() Events
}

// TriggerSource delivers scanner triggers produced on its own goroutine.
// Pending consumes at most one queued trigger and never blocks.
type TriggerSource interface {
	Start() error
	Stop() error
	Pending() bool
}

// Marker is told about phase boundaries, e.g. to drive TTL lines.
type Marker interface {
	PhaseOnset(kind PhaseKind, cycle int)
	PhaseOffset(kind PhaseKind, cycle int)
}

// Clock is the time base of every scheduler. Now must carry a monotonic
// reading so that Sub is immune to wall clock steps.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type systemClock struct{}

func (systemClock) Now() time.Time        { return time.Now() }
func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }

// SystemClock is the real monotonic clock.
var SystemClock Clock = systemClock{}
