package trigger

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"go.bug.st/serial"
)

const (
	queueSize   = 16
	readTimeout = 100 * time.Millisecond
)

var errNoRetries = errors.New("no reconnect attempts configured")

// Port is the part of serial.Port the reader needs.
type Port interface {
	Read(p []byte) (int, error)
	Close() error
}

type Opener func(name string, baud int) (Port, error)

// OpenSerialPort opens name as 8N1 with a short read timeout so the reader
// can notice Stop.
func OpenSerialPort(name string, baud int) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, err
	}
	return port, nil
}

// Serial reads trigger characters from a serial line. The port is owned by
// the reader goroutine from Start until Stop returns.
type Serial struct {
	cfg    Config
	open   Opener
	logger *slog.Logger
	events chan struct{}

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	fellBack atomic.Bool
}

func NewSerial(cfg Config, logger *slog.Logger) *Serial {
	open := cfg.Opener
	if open == nil {
		open = OpenSerialPort
	}
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 9600
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Serial{
		cfg:    cfg,
		open:   open,
		logger: logger.With("port", cfg.Port),
		events: make(chan struct{}, queueSize),
	}
}

// Start opens the port, retrying up to cfg.Retries times, and launches the
// reader. Nothing is left open when it fails.
func (s *Serial) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	port, err := s.openWithRetry(ctx, true)
	if err != nil {
		cancel()
		return &TransportError{Port: s.cfg.Port, Err: err}
	}
	s.logger.Info("serial trigger port opened", "baud", s.cfg.BaudRate, "char", string(s.cfg.Char))

	s.cancel = cancel
	s.done = make(chan struct{})
	go s.read(ctx, port)
	return nil
}

// Stop ends the reader and waits until it has closed the port.
func (s *Serial) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	return nil
}

func (s *Serial) Pending() bool {
	select {
	case <-s.events:
		return true
	default:
		return false
	}
}

// FellBack reports whether the reader gave up on the port after an error.
func (s *Serial) FellBack() bool { return s.fellBack.Load() }

func (s *Serial) read(ctx context.Context, port Port) {
	defer close(s.done)
	defer func() {
		if port != nil {
			if err := port.Close(); err != nil {
				s.logger.Warn("closing serial trigger port", "error", err)
			} else {
				s.logger.Info("serial trigger port closed")
			}
		}
	}()

	want := unicode.ToLower(s.cfg.Char)
	buf := make([]byte, 1)
	for ctx.Err() == nil {
		n, err := port.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("serial read error", "error", err)
			port.Close()
			port = nil
			if port, err = s.openWithRetry(ctx, false); err != nil {
				if ctx.Err() == nil {
					s.fellBack.Store(true)
					s.logger.Warn("serial trigger lost, keyboard triggers only", "error", err)
				}
				return
			}
			continue
		}
		if n == 1 && unicode.ToLower(rune(buf[0])) == want {
			s.push()
		}
	}
}

func (s *Serial) push() {
	select {
	case s.events <- struct{}{}:
		s.logger.Info("trigger received via serial port")
	default:
		s.logger.Debug("trigger queue full, dropping trigger")
	}
}

// openWithRetry makes one attempt plus cfg.Retries more. A reconnect after a
// read error skips the immediate attempt and waits first.
func (s *Serial) openWithRetry(ctx context.Context, immediate bool) (Port, error) {
	var lastErr error
	attempts := s.cfg.Retries
	if immediate {
		attempts++
	}
	for i := 0; i < attempts; i++ {
		if i > 0 || !immediate {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.cfg.RetryDelay):
			}
		}
		port, err := s.open(s.cfg.Port, s.cfg.BaudRate)
		if err == nil {
			return port, nil
		}
		lastErr = err
		s.logger.Warn("opening serial trigger port", "attempt", i+1, "error", err)
	}
	if lastErr == nil {
		lastErr = errNoRetries
	}
	return nil, lastErr
}
