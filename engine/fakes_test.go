package engine

import (
	"time"
)

var epoch = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	now    time.Time
	jitter func() time.Duration
}

func newFakeClock() *fakeClock { return &fakeClock{now: epoch} }

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(d time.Duration) {
	c.now = c.now.Add(d)
	if c.jitter != nil {
		c.now = c.now.Add(c.jitter())
	}
}

func (c *fakeClock) elapsed() time.Duration { return c.now.Sub(epoch) }

type fakeImage string

func (i fakeImage) Name() string { return string(i) }

var testImages = Images{
	Instruction: fakeImage("instruction"),
	Fixation:    fakeImage("fixation"),
	CheckerA:    fakeImage("checker_a"),
	CheckerB:    fakeImage("checker_b"),
}

type scriptedEvent struct {
	at time.Duration
	ev Events
}

type presentation struct {
	at   time.Duration
	name string
}

// scriptedSink releases each scripted event on the first poll at or after
// its offset from the clock epoch.
type scriptedSink struct {
	clock     *fakeClock
	script    []scriptedEvent
	next      int
	presented []presentation
	messages  []string
	polls     int
}

func newScriptedSink(clock *fakeClock, script ...scriptedEvent) *scriptedSink {
	return &scriptedSink{clock: clock, script: script}
}

func (s *scriptedSink) Present(img Image) {
	s.presented = append(s.presented, presentation{at: s.clock.elapsed(), name: img.Name()})
}

func (s *scriptedSink) ShowMessage(text string) { s.messages = append(s.messages, text) }

func (s *scriptedSink) PollEvents() Events {
	s.polls++
	var out Events
	for s.next < len(s.script) && s.clock.elapsed() >= s.script[s.next].at {
		ev := s.script[s.next].ev
		out.Quit = out.Quit || ev.Quit
		out.Cancel = out.Cancel || ev.Cancel
		out.Start = out.Start || ev.Start
		out.Typed = append(out.Typed, ev.Typed...)
		s.next++
	}
	return out
}

func (s *scriptedSink) count(name string) int {
	n := 0
	for _, p := range s.presented {
		if p.name == name {
			n++
		}
	}
	return n
}

type fakeTrigger struct {
	pending int
	// armAt releases one pending trigger once the clock passes it.
	armAt time.Duration
	clock *fakeClock
	polls int
}

func (t *fakeTrigger) Start() error { return nil }
func (t *fakeTrigger) Stop() error  { return nil }

func (t *fakeTrigger) Pending() bool {
	t.polls++
	if t.clock != nil && t.armAt > 0 && t.clock.elapsed() >= t.armAt {
		t.armAt = 0
		t.pending++
	}
	if t.pending > 0 {
		t.pending--
		return true
	}
	return false
}

type markerCall struct {
	onset bool
	kind  PhaseKind
	cycle int
}

type recordingMarker struct{ calls []markerCall }

func (m *recordingMarker) PhaseOnset(kind PhaseKind, cycle int) {
	m.calls = append(m.calls, markerCall{true, kind, cycle})
}

func (m *recordingMarker) PhaseOffset(kind PhaseKind, cycle int) {
	m.calls = append(m.calls, markerCall{false, kind, cycle})
}

func evStart(at time.Duration) scriptedEvent  { return scriptedEvent{at: at, ev: Events{Start: true}} }
func evCancel(at time.Duration) scriptedEvent { return scriptedEvent{at: at, ev: Events{Cancel: true}} }
func evQuit(at time.Duration) scriptedEvent   { return scriptedEvent{at: at, ev: Events{Quit: true}} }
func evTyped(at time.Duration, r ...rune) scriptedEvent {
	return scriptedEvent{at: at, ev: Events{Typed: r}}
}

func seconds(f float64) time.Duration { return time.Duration(f * float64(time.Second)) }
