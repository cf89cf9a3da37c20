package dlp

import "github.com/eAi-solutions/mvast-fmri-task/engine"

// Lines holds the TTL line raised for the duration of each phase kind.
type Lines map[engine.PhaseKind]string

func DefaultLines() Lines {
	return Lines{
		engine.PhaseFixation:     "1",
		engine.PhaseCheckerboard: "2",
		engine.PhaseInstruction:  "3",
	}
}

// Marker raises a phase's line at onset and drops it at offset.
type Marker struct {
	dev   *Device
	lines Lines
}

func NewMarker(dev *Device, lines Lines) *Marker {
	if lines == nil {
		lines = DefaultLines()
	}
	return &Marker{dev: dev, lines: lines}
}

func (m *Marker) PhaseOnset(kind engine.PhaseKind, cycle int) {
	if l, ok := m.lines[kind]; ok {
		m.dev.Set(l)
	}
}

func (m *Marker) PhaseOffset(kind engine.PhaseKind, cycle int) {
	if l, ok := m.lines[kind]; ok {
		m.dev.Unset(l)
	}
}
