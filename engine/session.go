package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DriftThreshold is the total-duration error above which a completed session
// is flagged. The flag is advisory.
const DriftThreshold = 100 * time.Millisecond

// TimestampLayout is used for every wall-clock timestamp in the trace.
const TimestampLayout = "2006-01-02 15:04:05.000"

var ErrMissingImage = errors.New("missing stimulus image")

// Images are the surfaces a session needs. Instruction may be nil when the
// instruction phase is disabled.
type Images struct {
	Instruction Image
	Fixation    Image
	CheckerA    Image
	CheckerB    Image
}

// PhaseRecord is one line of the timing log.
type PhaseRecord struct {
	Kind          PhaseKind
	Cycle         int
	Expected      time.Duration
	Actual        time.Duration
	StartedAt     time.Time
	Offset        time.Duration
	Outcome       Outcome
	Flips         int
	ExpectedFlips int
}

// Report is the timing log of one run.
type Report struct {
	ID            string
	StartSource   StartSource
	StartedAt     time.Time
	Phases        []PhaseRecord
	Outcome       Outcome
	Reason        CancelReason
	Total         time.Duration
	Expected      time.Duration
	Drift         time.Duration
	DriftExceeded bool
}

type Option func(*Runner)

func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithClock(c Clock) Option {
	return func(r *Runner) {
		if c != nil {
			r.clock = c
		}
	}
}

func WithTrigger(t TriggerSource) Option {
	return func(r *Runner) { r.trigger = t }
}

// WithMarker adds a phase boundary listener. May be given more than once.
func WithMarker(m Marker) Option {
	return func(r *Runner) {
		if m != nil {
			r.markers = append(r.markers, m)
		}
	}
}

// WithSessionID fixes the report id instead of drawing a random UUID.
func WithSessionID(id string) Option {
	return func(r *Runner) { r.id = id }
}

// Runner sequences one session: start gate, optional instruction, then
// NumCycles fixation/checkerboard pairs.
type Runner struct {
	cfg     SessionConfig
	images  Images
	sink    FrameSink
	trigger TriggerSource
	markers []Marker
	clock   Clock
	logger  *slog.Logger
	id      string
}

func NewRunner(cfg SessionConfig, images Images, sink FrameSink, opts ...Option) *Runner {
	r := &Runner{
		cfg:    cfg,
		images: images,
		sink:   sink,
		clock:  SystemClock,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run blocks for the whole session. The returned error is only ever a
// precondition failure; cancellation is reported in Report.Outcome.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	if err := r.cfg.Validate(); err != nil {
		return nil, err
	}
	if err := r.checkImages(); err != nil {
		return nil, err
	}

	rep := &Report{ID: r.id, Expected: r.cfg.ExpectedDuration()}
	if rep.ID == "" {
		rep.ID = uuid.NewString()
	}
	log := r.logger.With("session", rep.ID)

	log.Info("waiting for start signal", "mode", string(r.cfg.StartMode), "trigger_char", string(r.cfg.TriggerChar))
	gate := AwaitStart(ctx, r.cfg, r.trigger, r.sink, r.clock)
	if gate.Outcome == Cancelled {
		rep.Outcome, rep.Reason = Cancelled, gate.Reason
		log.Info("session cancelled before start", "reason", gate.Reason.String())
		return rep, nil
	}

	start := r.clock.Now()
	rep.StartSource = gate.Source
	rep.StartedAt = start
	log.Info("session started",
		"source", gate.Source.String(),
		"timestamp", start.Format(TimestampLayout),
		"expected", rep.Expected)

	finish := func() *Report {
		rep.Total = r.clock.Now().Sub(start)
		if rep.Outcome == Cancelled {
			log.Info("session cancelled", "reason", rep.Reason.String(), "elapsed", rep.Total)
			return rep
		}
		rep.Drift = rep.Total - rep.Expected
		rep.DriftExceeded = rep.Drift > DriftThreshold || rep.Drift < -DriftThreshold
		attrs := []any{
			"timestamp", r.clock.Now().Format(TimestampLayout),
			"total", rep.Total,
			"expected", rep.Expected,
			"drift", rep.Drift,
		}
		if rep.DriftExceeded {
			log.Warn("timing drift detected", attrs...)
		} else {
			log.Info("session completed", attrs...)
		}
		return rep
	}

	if r.cfg.InstructionDuration > 0 {
		if !r.runPhase(ctx, log, rep, start, PhaseInstruction, 0) {
			return finish(), nil
		}
	}

	for cycle := 1; cycle <= r.cfg.NumCycles; cycle++ {
		cycleStart := r.clock.Now()
		log.Info("cycle started", "cycle", cycle, "of", r.cfg.NumCycles, "timestamp", cycleStart.Format(TimestampLayout))
		if !r.runPhase(ctx, log, rep, start, PhaseFixation, cycle) {
			return finish(), nil
		}
		if !r.runPhase(ctx, log, rep, start, PhaseCheckerboard, cycle) {
			return finish(), nil
		}
		log.Info("cycle completed",
			"cycle", cycle,
			"actual", r.clock.Now().Sub(cycleStart),
			"expected", r.cfg.FixationDuration+r.cfg.CheckerboardDuration)
	}

	rep.Outcome = Completed
	return finish(), nil
}

// runPhase runs one phase, appends its record and reports whether the
// session may continue.
func (r *Runner) runPhase(ctx context.Context, log *slog.Logger, rep *Report, sessionStart time.Time, kind PhaseKind, cycle int) bool {
	expected := r.expected(kind)
	startedAt := r.clock.Now()
	log.Debug("phase started", "phase", kind.String(), "cycle", cycle, "expected", expected)

	for _, m := range r.markers {
		m.PhaseOnset(kind, cycle)
	}
	var res Result
	switch kind {
	case PhaseInstruction:
		res = RunStaticPhase(ctx, r.images.Instruction, expected, r.sink, r.clock, r.cfg.EscapeCancels)
	case PhaseFixation:
		res = RunStaticPhase(ctx, r.images.Fixation, expected, r.sink, r.clock, r.cfg.EscapeCancels)
	case PhaseCheckerboard:
		res = RunFlashingPhase(ctx, r.images.CheckerA, r.images.CheckerB, expected, r.cfg.FlashFrequency, r.sink, r.clock, r.cfg.EscapeCancels)
	}
	for _, m := range r.markers {
		m.PhaseOffset(kind, cycle)
	}

	rep.Phases = append(rep.Phases, PhaseRecord{
		Kind:          kind,
		Cycle:         cycle,
		Expected:      expected,
		Actual:        res.Elapsed,
		StartedAt:     startedAt,
		Offset:        startedAt.Sub(sessionStart),
		Outcome:       res.Outcome,
		Flips:         res.Flips,
		ExpectedFlips: res.ExpectedFlips,
	})

	attrs := []any{"phase", kind.String(), "cycle", cycle, "actual", res.Elapsed, "expected", expected}
	if kind == PhaseCheckerboard {
		attrs = append(attrs, "flips", res.Flips)
	}
	if res.Outcome == Cancelled {
		rep.Outcome, rep.Reason = Cancelled, res.Reason
		log.Info("phase cancelled", append(attrs, "reason", res.Reason.String())...)
		return false
	}
	log.Info("phase completed", attrs...)
	if kind == PhaseCheckerboard && !FlipsWithinTolerance(res.Flips, res.ExpectedFlips) {
		log.Warn("flip count differs from expected", "cycle", cycle, "flips", res.Flips, "expected_flips", res.ExpectedFlips)
	}
	return true
}

func (r *Runner) expected(kind PhaseKind) time.Duration {
	switch kind {
	case PhaseInstruction:
		return r.cfg.InstructionDuration
	case PhaseFixation:
		return r.cfg.FixationDuration
	}
	return r.cfg.CheckerboardDuration
}

func (r *Runner) checkImages() error {
	switch {
	case r.images.CheckerA == nil || r.images.CheckerB == nil:
		return fmt.Errorf("%w: checkerboard pair", ErrMissingImage)
	case r.images.Fixation == nil:
		return fmt.Errorf("%w: fixation", ErrMissingImage)
	case r.cfg.InstructionDuration > 0 && r.images.Instruction == nil:
		return fmt.Errorf("%w: instruction", ErrMissingImage)
	}
	return nil
}
