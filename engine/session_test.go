package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func protocolConfig() SessionConfig {
	return SessionConfig{
		NumCycles:            5,
		FixationDuration:     20 * time.Second,
		CheckerboardDuration: 20 * time.Second,
		InstructionDuration:  10 * time.Second,
		FlashFrequency:       8,
		StartMode:            StartBoth,
		TriggerChar:          '=',
		EscapeCancels:        true,
	}
}

func runSession(t *testing.T, cfg SessionConfig, clock *fakeClock, sink *scriptedSink, opts ...Option) *Report {
	t.Helper()
	opts = append([]Option{WithClock(clock), WithLogger(quietLogger)}, opts...)
	rep, err := NewRunner(cfg, testImages, sink, opts...).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return rep
}

type phaseKey struct {
	kind  PhaseKind
	cycle int
}

func sequence(rep *Report) []phaseKey {
	out := make([]phaseKey, 0, len(rep.Phases))
	for _, p := range rep.Phases {
		out = append(out, phaseKey{p.Kind, p.Cycle})
	}
	return out
}

func expectedSequence(cycles int, instruction bool) []phaseKey {
	var out []phaseKey
	if instruction {
		out = append(out, phaseKey{PhaseInstruction, 0})
	}
	for c := 1; c <= cycles; c++ {
		out = append(out, phaseKey{PhaseFixation, c}, phaseKey{PhaseCheckerboard, c})
	}
	return out
}

func equalKeys(a, b []phaseKey) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRunner_FullProtocol(t *testing.T) {
	cfg := protocolConfig()
	clock := newFakeClock()
	sink := newScriptedSink(clock, evStart(0))

	rep := runSession(t, cfg, clock, sink)

	if rep.Outcome != Completed {
		t.Fatalf("Expected completed, got %v (%v)", rep.Outcome, rep.Reason)
	}
	if rep.Expected != 210*time.Second {
		t.Errorf("Expected 210s nominal duration, got %v", rep.Expected)
	}
	if rep.Total != 210*time.Second {
		t.Errorf("Expected 210s total with a virtual clock, got %v", rep.Total)
	}
	if rep.DriftExceeded {
		t.Errorf("Expected no drift flag, drift %v", rep.Drift)
	}
	if got, want := sequence(rep), expectedSequence(5, true); !equalKeys(got, want) {
		t.Fatalf("Expected sequence %v, got %v", want, got)
	}

	counts := map[PhaseKind]int{}
	for _, p := range rep.Phases {
		counts[p.Kind]++
		if p.Outcome != Completed {
			t.Errorf("%v cycle %d: expected completed", p.Kind, p.Cycle)
		}
		if p.Actual != p.Expected {
			t.Errorf("%v cycle %d: actual %v, expected %v", p.Kind, p.Cycle, p.Actual, p.Expected)
		}
		if p.Kind == PhaseCheckerboard && p.Flips != 320 {
			t.Errorf("cycle %d: expected 320 flips, got %d", p.Cycle, p.Flips)
		}
	}
	if counts[PhaseInstruction] != 1 || counts[PhaseFixation] != 5 || counts[PhaseCheckerboard] != 5 {
		t.Errorf("Unexpected phase counts %v", counts)
	}
	if sink.count("instruction") != 1 || sink.count("fixation") != 5 {
		t.Errorf("Expected 1 instruction and 5 fixation renders, got %d and %d", sink.count("instruction"), sink.count("fixation"))
	}
	if rep.ID == "" {
		t.Error("Expected a session id")
	}
	if rep.StartSource != StartedBySpace {
		t.Errorf("Expected start by space, got %v", rep.StartSource)
	}
}

func TestRunner_OffsetsAreChronological(t *testing.T) {
	clock := newFakeClock()
	rep := runSession(t, protocolConfig(), clock, newScriptedSink(clock, evStart(0)))

	var want time.Duration
	for _, p := range rep.Phases {
		if p.Offset != want {
			t.Errorf("%v cycle %d: expected offset %v, got %v", p.Kind, p.Cycle, want, p.Offset)
		}
		if !p.StartedAt.Equal(rep.StartedAt.Add(p.Offset)) {
			t.Errorf("%v cycle %d: start timestamp does not match offset", p.Kind, p.Cycle)
		}
		want += p.Expected
	}
}

func TestRunner_SkipsZeroInstruction(t *testing.T) {
	cfg := protocolConfig()
	cfg.InstructionDuration = 0
	cfg.NumCycles = 2
	images := testImages
	images.Instruction = nil
	clock := newFakeClock()
	sink := newScriptedSink(clock, evStart(0))

	rep, err := NewRunner(cfg, images, sink, WithClock(clock), WithLogger(quietLogger)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got, want := sequence(rep), expectedSequence(2, false); !equalKeys(got, want) {
		t.Fatalf("Expected sequence %v, got %v", want, got)
	}
	if sink.count("instruction") != 0 {
		t.Error("Expected no instruction render")
	}
	if rep.Expected != 80*time.Second {
		t.Errorf("Expected 80s, got %v", rep.Expected)
	}
}

func TestRunner_CancelDuringSecondCheckerboard(t *testing.T) {
	clock := newFakeClock()
	// instruction 0-10, fix1 10-30, cb1 30-50, fix2 50-70, cb2 from 70.
	sink := newScriptedSink(clock, evStart(0), evCancel(73*time.Second))

	rep := runSession(t, protocolConfig(), clock, sink)

	if rep.Outcome != Cancelled || rep.Reason != UserCancelled {
		t.Fatalf("Expected user cancel, got %v/%v", rep.Outcome, rep.Reason)
	}
	want := []phaseKey{
		{PhaseInstruction, 0},
		{PhaseFixation, 1},
		{PhaseCheckerboard, 1},
		{PhaseFixation, 2},
		{PhaseCheckerboard, 2},
	}
	if got := sequence(rep); !equalKeys(got, want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for _, p := range rep.Phases[:4] {
		if p.Outcome != Completed {
			t.Errorf("%v cycle %d: expected completed", p.Kind, p.Cycle)
		}
	}
	last := rep.Phases[4]
	if last.Outcome != Cancelled {
		t.Errorf("Expected checkerboard(2) cancelled, got %v", last.Outcome)
	}
	if diff := last.Actual - 3*time.Second; diff < 0 || diff > 10*time.Millisecond {
		t.Errorf("Expected ~3.0s actual, got %v", last.Actual)
	}
	if rep.DriftExceeded {
		t.Error("Drift is only evaluated for completed sessions")
	}
}

func TestRunner_CancelInEveryPhase(t *testing.T) {
	cfg := protocolConfig()
	cfg.NumCycles = 2
	tests := []struct {
		name    string
		at      time.Duration
		phases  int
		lastKey phaseKey
	}{
		{"instruction start", time.Millisecond, 1, phaseKey{PhaseInstruction, 0}},
		{"instruction middle", 5 * time.Second, 1, phaseKey{PhaseInstruction, 0}},
		{"fixation 1", 11 * time.Second, 2, phaseKey{PhaseFixation, 1}},
		{"checkerboard 1 late", 49900 * time.Millisecond, 3, phaseKey{PhaseCheckerboard, 1}},
		{"fixation 2", 60 * time.Second, 4, phaseKey{PhaseFixation, 2}},
		{"checkerboard 2", 89 * time.Second, 5, phaseKey{PhaseCheckerboard, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			sink := newScriptedSink(clock, evStart(0), evQuit(tt.at))

			rep := runSession(t, cfg, clock, sink)

			if rep.Outcome != Cancelled || rep.Reason != HostQuit {
				t.Fatalf("Expected host quit, got %v/%v", rep.Outcome, rep.Reason)
			}
			if len(rep.Phases) != tt.phases {
				t.Fatalf("Expected %d phases, got %d", tt.phases, len(rep.Phases))
			}
			last := rep.Phases[len(rep.Phases)-1]
			if (phaseKey{last.Kind, last.Cycle}) != tt.lastKey || last.Outcome != Cancelled {
				t.Errorf("Expected %v cancelled last, got %v/%d %v", tt.lastKey, last.Kind, last.Cycle, last.Outcome)
			}
			if lag := clock.elapsed() - tt.at; lag > 10*time.Millisecond {
				t.Errorf("Expected session to halt within 10ms, took %v", lag)
			}
		})
	}
}

func TestRunner_CancelledBeforeStart(t *testing.T) {
	clock := newFakeClock()
	sink := newScriptedSink(clock, evCancel(time.Minute))

	rep := runSession(t, protocolConfig(), clock, sink)

	if rep.Outcome != Cancelled || rep.Reason != UserCancelled {
		t.Fatalf("Expected user cancel, got %v/%v", rep.Outcome, rep.Reason)
	}
	if len(rep.Phases) != 0 || len(sink.presented) != 0 {
		t.Errorf("Expected no phases, got %d records and %d renders", len(rep.Phases), len(sink.presented))
	}
	if !rep.StartedAt.IsZero() {
		t.Error("Expected no start timestamp")
	}
}

func TestRunner_StartedByTriggerSource(t *testing.T) {
	cfg := protocolConfig()
	cfg.StartMode = StartTrigger
	cfg.NumCycles = 1
	clock := newFakeClock()
	trig := &fakeTrigger{clock: clock, armAt: 7 * time.Second}

	rep := runSession(t, cfg, clock, newScriptedSink(clock, evStart(time.Second)), WithTrigger(trig))

	if rep.StartSource != StartedByTriggerSource {
		t.Fatalf("Expected trigger source start, got %v", rep.StartSource)
	}
	if got := rep.StartedAt.Sub(epoch); got != 7*time.Second {
		t.Errorf("Expected session start at 7s, got %v", got)
	}
}

func TestRunner_Idempotent(t *testing.T) {
	cfg := protocolConfig()
	cfg.NumCycles = 3

	run := func() *Report {
		clock := newFakeClock()
		return runSession(t, cfg, clock, newScriptedSink(clock, evTyped(2*time.Second, '=')), WithSessionID("fixed"))
	}
	a, b := run(), run()

	if !equalKeys(sequence(a), sequence(b)) {
		t.Fatalf("Phase sequences differ: %v vs %v", sequence(a), sequence(b))
	}
	for i := range a.Phases {
		if a.Phases[i].Expected != b.Phases[i].Expected {
			t.Errorf("phase %d: expected durations differ", i)
		}
	}
	if a.Expected != b.Expected || a.ID != "fixed" || b.ID != "fixed" {
		t.Errorf("Session level telemetry differs: %+v vs %+v", a, b)
	}
}

func TestRunner_DriftStaysBoundedUnderJitter(t *testing.T) {
	cfg := protocolConfig()
	cfg.NumCycles = 1
	clock := newFakeClock()
	// Every sleep overshoots by 1ms; only the final sleep of a phase can
	// leak into the total.
	clock.jitter = func() time.Duration { return time.Millisecond }

	rep := runSession(t, cfg, clock, newScriptedSink(clock, evStart(0)))

	if rep.Outcome != Completed {
		t.Fatalf("Expected completed, got %v", rep.Outcome)
	}
	if rep.Drift != rep.Total-rep.Expected {
		t.Errorf("Drift %v is not total-expected", rep.Drift)
	}
	if rep.Drift < 0 || rep.Drift > 3*time.Millisecond {
		t.Errorf("Expected drift within 3ms, got %v", rep.Drift)
	}
	if rep.DriftExceeded {
		t.Error("Expected no drift flag")
	}
}

func TestRunner_DriftFlag(t *testing.T) {
	cfg := protocolConfig()
	cfg.NumCycles = 1
	clock := newFakeClock()
	// A badly stalling host: each sleep returns 200ms late. Instruction ends
	// 45ms late and fixation 90ms late, already past the threshold.
	clock.jitter = func() time.Duration { return 200 * time.Millisecond }

	rep := runSession(t, cfg, clock, newScriptedSink(clock, evStart(0)))

	if rep.Outcome != Completed {
		t.Fatalf("Expected completed, drift is advisory only, got %v", rep.Outcome)
	}
	if !rep.DriftExceeded {
		t.Errorf("Expected drift flag, drift %v", rep.Drift)
	}
}

func TestRunner_Markers(t *testing.T) {
	cfg := protocolConfig()
	cfg.NumCycles = 1
	clock := newFakeClock()
	m := &recordingMarker{}

	runSession(t, cfg, clock, newScriptedSink(clock, evStart(0)), WithMarker(m))

	want := []markerCall{
		{true, PhaseInstruction, 0}, {false, PhaseInstruction, 0},
		{true, PhaseFixation, 1}, {false, PhaseFixation, 1},
		{true, PhaseCheckerboard, 1}, {false, PhaseCheckerboard, 1},
	}
	if len(m.calls) != len(want) {
		t.Fatalf("Expected %d marker calls, got %d", len(want), len(m.calls))
	}
	for i := range want {
		if m.calls[i] != want[i] {
			t.Errorf("call %d: expected %+v, got %+v", i, want[i], m.calls[i])
		}
	}
}

func TestRunner_MarkerOffsetOnCancel(t *testing.T) {
	clock := newFakeClock()
	m := &recordingMarker{}

	runSession(t, protocolConfig(), clock, newScriptedSink(clock, evStart(0), evCancel(15*time.Second)), WithMarker(m))

	last := m.calls[len(m.calls)-1]
	if last.onset || last.kind != PhaseFixation || last.cycle != 1 {
		t.Errorf("Expected fixation(1) offset as last marker call, got %+v", last)
	}
}

func TestRunner_Preconditions(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*SessionConfig, *Images)
		wantErr error
	}{
		{"zero cycles", func(c *SessionConfig, _ *Images) { c.NumCycles = 0 }, ErrInvalidConfig},
		{"zero frequency", func(c *SessionConfig, _ *Images) { c.FlashFrequency = 0 }, ErrInvalidConfig},
		{"tiny frequency", func(c *SessionConfig, _ *Images) { c.FlashFrequency = 1e-300 }, ErrInvalidConfig},
		{"huge frequency", func(c *SessionConfig, _ *Images) { c.FlashFrequency = 1e12 }, ErrInvalidConfig},
		{"negative fixation", func(c *SessionConfig, _ *Images) { c.FixationDuration = -time.Second }, ErrInvalidConfig},
		{"bad start mode", func(c *SessionConfig, _ *Images) { c.StartMode = "auto" }, ErrInvalidConfig},
		{"missing trigger char", func(c *SessionConfig, _ *Images) { c.TriggerChar = 0 }, ErrInvalidConfig},
		{"missing checkerboard", func(_ *SessionConfig, i *Images) { i.CheckerB = nil }, ErrMissingImage},
		{"missing fixation", func(_ *SessionConfig, i *Images) { i.Fixation = nil }, ErrMissingImage},
		{"missing instruction", func(_ *SessionConfig, i *Images) { i.Instruction = nil }, ErrMissingImage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, images := protocolConfig(), testImages
			tt.mutate(&cfg, &images)
			clock := newFakeClock()
			sink := newScriptedSink(clock, evStart(0))

			_, err := NewRunner(cfg, images, sink, WithClock(clock), WithLogger(quietLogger)).Run(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Expected %v, got %v", tt.wantErr, err)
			}
			if len(sink.messages) != 0 {
				t.Error("Expected the gate not to be entered")
			}
		})
	}
}

func TestSessionConfig_ManualWithoutTriggerCharIsValid(t *testing.T) {
	cfg := protocolConfig()
	cfg.StartMode = StartManual
	cfg.TriggerChar = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}
}
