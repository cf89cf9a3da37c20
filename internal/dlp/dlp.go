// Package dlp drives a DLP-IO8-G digital I/O board used to mirror phase
// onsets onto TTL lines for the scanner's physiological recorder.
package dlp

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.bug.st/serial"
)

const (
	cmdPing   = 0x27
	cmdBinary = 0x5C
	pingReply = 'Q'

	// DefaultBaudRate is the board's factory setting.
	DefaultBaudRate = 9600
	pingTimeout     = 500 * time.Millisecond
)

var ErrNoPing = errors.New("device did not respond to ping correctly")

// unsetCodes maps line '1'..'8' to the command that drives it low.
var unsetCodes = map[byte]byte{
	'1': 'Q', '2': 'W', '3': 'E', '4': 'R',
	'5': 'T', '6': 'Y', '7': 'U', '8': 'I',
}

type Opener func(device string, baud int) (io.ReadWriteCloser, error)

func openSerial(device string, baud int) (io.ReadWriteCloser, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, err
	}
	if err := withReadTimeout(port, pingTimeout); err != nil {
		return nil, err
	}
	return port, nil
}

type readTimeoutSetter interface {
	io.Closer
	SetReadTimeout(t time.Duration) error
}

// withReadTimeout bounds reads on port so a board that never answers the
// ping fails the handshake instead of blocking it. The port is closed when
// the timeout cannot be set.
func withReadTimeout(port readTimeoutSetter, t time.Duration) error {
	if err := port.SetReadTimeout(t); err != nil {
		port.Close()
		return fmt.Errorf("set read timeout: %w", err)
	}
	return nil
}

type Device struct {
	port   io.ReadWriteCloser
	logger *slog.Logger
}

// Open connects to the board, checks it answers a ping and switches it to
// binary mode. The port is closed on every failure.
func Open(device string, baud int, logger *slog.Logger) (*Device, error) {
	return openWith(openSerial, device, baud, logger)
}

func openWith(open Opener, device string, baud int, logger *slog.Logger) (*Device, error) {
	if logger == nil {
		logger = slog.Default()
	}
	port, err := open(device, baud)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", device, err)
	}

	d := &Device{port: port, logger: logger.With("device", device)}
	if !d.Ping() {
		port.Close()
		return nil, fmt.Errorf("open %s: %w", device, ErrNoPing)
	}
	if _, err := port.Write([]byte{cmdBinary}); err != nil {
		port.Close()
		return nil, fmt.Errorf("open %s: binary mode: %w", device, err)
	}
	return d, nil
}

func (d *Device) Close() error {
	if d.port == nil {
		return nil
	}
	err := d.port.Close()
	d.port = nil
	return err
}

func (d *Device) Ping() bool {
	if _, err := d.port.Write([]byte{cmdPing}); err != nil {
		return false
	}
	buf := make([]byte, 1)
	n, err := d.port.Read(buf)
	return err == nil && n == 1 && buf[0] == pingReply
}

// Set drives the given lines ("1".."8") high.
func (d *Device) Set(lines string) {
	if _, err := d.port.Write([]byte(lines)); err != nil {
		d.logger.Warn("dlp set failed", "lines", lines, "error", err)
	}
}

// Unset drives the given lines low.
func (d *Device) Unset(lines string) {
	cmd := []byte(lines)
	for i, c := range cmd {
		if u, ok := unsetCodes[c]; ok {
			cmd[i] = u
		}
	}
	if _, err := d.port.Write(cmd); err != nil {
		d.logger.Warn("dlp unset failed", "lines", lines, "error", err)
	}
}
