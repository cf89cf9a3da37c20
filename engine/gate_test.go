package engine

import (
	"context"
	"strings"
	"testing"
	"time"
)

func gateConfig(mode StartMode) SessionConfig {
	return SessionConfig{
		NumCycles:            1,
		FixationDuration:     time.Second,
		CheckerboardDuration: time.Second,
		FlashFrequency:       8,
		StartMode:            mode,
		TriggerChar:          '=',
		EscapeCancels:        true,
	}
}

func TestAwaitStart_Modes(t *testing.T) {
	tests := []struct {
		name       string
		mode       StartMode
		script     []scriptedEvent
		pending    int
		wantSource StartSource
		wantOut    Outcome
		wantReason CancelReason
	}{
		{
			name:       "manual starts on space",
			mode:       StartManual,
			script:     []scriptedEvent{evStart(time.Second)},
			wantSource: StartedBySpace,
		},
		{
			name:       "manual ignores trigger char and trigger source",
			mode:       StartManual,
			script:     []scriptedEvent{evTyped(time.Second, '='), evCancel(2 * time.Second)},
			pending:    3,
			wantOut:    Cancelled,
			wantReason: UserCancelled,
		},
		{
			name:       "trigger ignores space",
			mode:       StartTrigger,
			script:     []scriptedEvent{evStart(time.Second), evCancel(2 * time.Second)},
			wantOut:    Cancelled,
			wantReason: UserCancelled,
		},
		{
			name:       "trigger starts on typed char",
			mode:       StartTrigger,
			script:     []scriptedEvent{evTyped(time.Second, 'x', '=')},
			wantSource: StartedByTriggerChar,
		},
		{
			name:       "trigger starts on trigger source",
			mode:       StartTrigger,
			pending:    1,
			wantSource: StartedByTriggerSource,
		},
		{
			name:       "both starts on space",
			mode:       StartBoth,
			script:     []scriptedEvent{evStart(0)},
			wantSource: StartedBySpace,
		},
		{
			name:       "both starts on typed char",
			mode:       StartBoth,
			script:     []scriptedEvent{evTyped(500*time.Millisecond, '=')},
			wantSource: StartedByTriggerChar,
		},
		{
			name:       "both starts on trigger source",
			mode:       StartBoth,
			pending:    1,
			wantSource: StartedByTriggerSource,
		},
		{
			name:       "cancel wins over start in the same poll",
			mode:       StartBoth,
			script:     []scriptedEvent{{at: time.Second, ev: Events{Start: true, Cancel: true, Typed: []rune{'='}}}},
			wantOut:    Cancelled,
			wantReason: UserCancelled,
		},
		{
			name:       "quit wins over start in the same poll",
			mode:       StartManual,
			script:     []scriptedEvent{{at: time.Second, ev: Events{Start: true, Quit: true}}},
			wantOut:    Cancelled,
			wantReason: HostQuit,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			sink := newScriptedSink(clock, tt.script...)
			trig := &fakeTrigger{pending: tt.pending}

			got := AwaitStart(context.Background(), gateConfig(tt.mode), trig, sink, clock)

			if got.Outcome != tt.wantOut {
				t.Fatalf("Expected outcome %v, got %v", tt.wantOut, got.Outcome)
			}
			if got.Reason != tt.wantReason {
				t.Errorf("Expected reason %v, got %v", tt.wantReason, got.Reason)
			}
			if got.Source != tt.wantSource {
				t.Errorf("Expected source %v, got %v", tt.wantSource, got.Source)
			}
			if len(sink.messages) != 1 {
				t.Errorf("Expected waiting message to be shown once, got %d", len(sink.messages))
			}
		})
	}
}

func TestAwaitStart_TriggerCharIsCaseInsensitive(t *testing.T) {
	cfg := gateConfig(StartTrigger)
	cfg.TriggerChar = 't'
	clock := newFakeClock()
	sink := newScriptedSink(clock, evTyped(time.Second, 'T'))

	got := AwaitStart(context.Background(), cfg, nil, sink, clock)
	if got.Outcome != Completed || got.Source != StartedByTriggerChar {
		t.Fatalf("Expected start by trigger character, got %+v", got)
	}
}

func TestAwaitStart_EscapeIgnoredWhenDisabled(t *testing.T) {
	cfg := gateConfig(StartManual)
	cfg.EscapeCancels = false
	clock := newFakeClock()
	sink := newScriptedSink(clock, evCancel(time.Second), evStart(2*time.Second))

	got := AwaitStart(context.Background(), cfg, nil, sink, clock)
	if got.Outcome != Completed {
		t.Fatalf("Expected escape to be ignored, got %+v", got)
	}
	if clock.elapsed() < 2*time.Second {
		t.Errorf("Expected gate to return only after the space key, returned at %v", clock.elapsed())
	}
}

func TestAwaitStart_ContextCancelIsHostQuit(t *testing.T) {
	ctx, stop := context.WithCancel(context.Background())
	stop()
	clock := newFakeClock()

	got := AwaitStart(ctx, gateConfig(StartBoth), nil, newScriptedSink(clock), clock)
	if got.Outcome != Cancelled || got.Reason != HostQuit {
		t.Fatalf("Expected host quit, got %+v", got)
	}
}

func TestAwaitStart_PollCadence(t *testing.T) {
	clock := newFakeClock()
	sink := newScriptedSink(clock, evStart(time.Second))

	AwaitStart(context.Background(), gateConfig(StartManual), nil, sink, clock)

	// 1s of waiting at a 10ms cadence.
	if sink.polls < 100 || sink.polls > 102 {
		t.Errorf("Expected about 101 polls, got %d", sink.polls)
	}
	if lag := clock.elapsed() - time.Second; lag > GatePollInterval {
		t.Errorf("Expected start noticed within %v, lag was %v", GatePollInterval, lag)
	}
}

func TestAwaitStart_DrainsOneTriggerPerPoll(t *testing.T) {
	clock := newFakeClock()
	trig := &fakeTrigger{pending: 3}

	AwaitStart(context.Background(), gateConfig(StartTrigger), trig, newScriptedSink(clock), clock)

	if trig.pending != 2 {
		t.Errorf("Expected one trigger consumed, %d left", trig.pending)
	}
}

func TestWaitingMessage(t *testing.T) {
	tests := []struct {
		mode    StartMode
		want    []string
		notWant []string
	}{
		{StartManual, []string{"Press SPACEBAR to start", "ESC"}, []string{"'='"}},
		{StartTrigger, []string{"Trigger character: '='"}, []string{"SPACEBAR"}},
		{StartBoth, []string{"SPACEBAR", "character: '='"}, nil},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			msg := WaitingMessage(gateConfig(tt.mode))
			for _, w := range tt.want {
				if !strings.Contains(msg, w) {
					t.Errorf("Expected message to contain %q:\n%s", w, msg)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(msg, w) {
					t.Errorf("Expected message not to contain %q:\n%s", w, msg)
				}
			}
		})
	}
}
