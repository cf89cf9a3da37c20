package engine

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"
)

type StartMode string

const (
	StartManual  StartMode = "manual"
	StartTrigger StartMode = "trigger"
	StartBoth    StartMode = "both"
)

// ParseStartMode accepts the mode names case-insensitively.
func ParseStartMode(s string) (StartMode, bool) {
	switch m := StartMode(strings.ToLower(strings.TrimSpace(s))); m {
	case StartManual, StartTrigger, StartBoth:
		return m, true
	}
	return "", false
}

func (m StartMode) acceptsSpace() bool   { return m == StartManual || m == StartBoth }
func (m StartMode) acceptsTrigger() bool { return m == StartTrigger || m == StartBoth }

// SessionConfig is the read-only protocol description handed to the Runner.
type SessionConfig struct {
	NumCycles            int
	FixationDuration     time.Duration
	CheckerboardDuration time.Duration
	InstructionDuration  time.Duration
	FlashFrequency       float64
	StartMode            StartMode
	TriggerChar          rune
	EscapeCancels        bool
}

var ErrInvalidConfig = errors.New("invalid session config")

// Flash frequencies outside this range give a half period that is either
// shorter than any display can show or too long for a time.Duration.
const (
	MinFlashFrequency = 0.01
	MaxFlashFrequency = 1000.0
)

func (c SessionConfig) Validate() error {
	var problems []string
	if c.NumCycles < 1 {
		problems = append(problems, fmt.Sprintf("num cycles %d < 1", c.NumCycles))
	}
	for _, d := range []struct {
		name string
		v    time.Duration
	}{
		{"fixation", c.FixationDuration},
		{"checkerboard", c.CheckerboardDuration},
		{"instruction", c.InstructionDuration},
	} {
		if d.v < 0 {
			problems = append(problems, fmt.Sprintf("%s duration %v is negative", d.name, d.v))
		}
	}
	if math.IsNaN(c.FlashFrequency) || c.FlashFrequency < MinFlashFrequency || c.FlashFrequency > MaxFlashFrequency {
		problems = append(problems, fmt.Sprintf("flash frequency %v must be within [%v, %v] Hz", c.FlashFrequency, MinFlashFrequency, MaxFlashFrequency))
	}
	if _, ok := ParseStartMode(string(c.StartMode)); !ok {
		problems = append(problems, fmt.Sprintf("unknown start mode %q", c.StartMode))
	} else if c.StartMode.acceptsTrigger() && c.TriggerChar == 0 {
		problems = append(problems, "trigger character is empty")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// ExpectedDuration is the nominal session length from start signal to the end
// of the last checkerboard.
func (c SessionConfig) ExpectedDuration() time.Duration {
	return c.InstructionDuration + time.Duration(c.NumCycles)*(c.FixationDuration+c.CheckerboardDuration)
}

func (c SessionConfig) isTriggerChar(r rune) bool {
	return c.TriggerChar != 0 && unicode.ToLower(r) == unicode.ToLower(c.TriggerChar)
}
