// Package trigger turns scanner trigger pulses into engine trigger events.
//
// Two transports exist. Keyboard relies on the scanner interface typing the
// trigger character, which reaches the engine through the display's key
// events. Serial reads the character from a serial line on its own
// goroutine. Serial problems never abort a session: they degrade to
// Keyboard.
package trigger

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/eAi-solutions/mvast-fmri-task/engine"
)

// TransportError reports a serial trigger line that could not be used.
type TransportError struct {
	Port string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("trigger port %s: %v", e.Port, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

type Config struct {
	Char       rune
	UseSerial  bool
	Port       string
	BaudRate   int
	Retries    int
	RetryDelay time.Duration

	// Opener defaults to OpenSerialPort.
	Opener Opener
}

// Open starts the configured trigger source. It always returns a running
// source; a serial line that cannot be opened yields a Keyboard source.
func Open(cfg Config, logger *slog.Logger) engine.TriggerSource {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.UseSerial && cfg.Port != "" {
		s := NewSerial(cfg, logger)
		err := s.Start()
		if err == nil {
			return s
		}
		logger.Warn("serial trigger unavailable, falling back to keyboard input", "error", err)
	}
	k := NewKeyboard(cfg.Char, logger)
	_ = k.Start()
	return k
}

// Keyboard is the trigger source for scanners that present themselves as a
// keyboard. The start gate matches the typed character itself, so nothing
// is ever pending here.
type Keyboard struct {
	char   rune
	logger *slog.Logger
}

func NewKeyboard(char rune, logger *slog.Logger) *Keyboard {
	return &Keyboard{char: char, logger: logger}
}

func (k *Keyboard) Start() error {
	k.logger.Info("trigger input listening for keyboard character", "char", string(k.char))
	return nil
}

func (k *Keyboard) Stop() error   { return nil }
func (k *Keyboard) Pending() bool { return false }
