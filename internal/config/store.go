package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/eAi-solutions/mvast-fmri-task/engine"
)

// Warning is a configuration problem that was repaired by falling back to the
// default value. It never stops a session.
type Warning struct {
	Field  string
	Value  any
	Reason string
}

func (w Warning) Error() string {
	if w.Field == "" {
		return w.Reason
	}
	return fmt.Sprintf("%s: %s (got %v)", w.Field, w.Reason, w.Value)
}

// Store loads and persists the configuration file.
type Store struct {
	path   string
	logger *slog.Logger
	env    func() (map[string]any, error)
}

func NewStore(path string, logger *slog.Logger) *Store {
	if path == "" {
		path = DefaultPath
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{path: path, logger: logger, env: envOverrides}
}

func (s *Store) Path() string { return s.path }

// Load returns the effective configuration: defaults, overlaid field by field
// with the file and then the environment. A missing file is created with the
// defaults first. Only I/O failures other than "not found" are errors.
func (s *Store) Load() (File, []Warning, error) {
	raw := map[string]any{}
	var warnings []Warning

	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := s.Save(Default()); err != nil {
			warnings = append(warnings, Warning{Reason: fmt.Sprintf("could not write default config: %v", err)})
		} else {
			s.logger.Info("default configuration written", "path", s.path)
		}
	case err != nil:
		return File{}, nil, fmt.Errorf("read config %s: %w", s.path, err)
	default:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			warnings = append(warnings, Warning{Reason: fmt.Sprintf("config %s is not valid YAML/JSON, using defaults: %v", s.path, err)})
			raw = map[string]any{}
		}
		if raw == nil {
			raw = map[string]any{}
		}
	}

	env, err := s.env()
	if err != nil {
		warnings = append(warnings, Warning{Reason: fmt.Sprintf("environment overrides ignored: %v", err)})
	}
	for k, v := range env {
		raw[k] = v
	}

	f, mergeWarnings := merge(raw)
	warnings = append(warnings, mergeWarnings...)
	warnings = append(warnings, validate(&f)...)

	for _, w := range warnings {
		s.logger.Warn("configuration", "problem", w.Error())
	}
	return f, warnings, nil
}

// Save writes f as YAML, creating parent directories as needed.
func (s *Store) Save(f File) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", s.path, err)
	}
	return nil
}

type setter func(f *File, v any) bool

func stringField(get func(*File) *string) setter {
	return func(f *File, v any) bool {
		switch t := v.(type) {
		case nil:
			*get(f) = ""
		case string:
			*get(f) = t
		default:
			return false
		}
		return true
	}
}

func boolField(get func(*File) *bool) setter {
	return func(f *File, v any) bool {
		switch t := v.(type) {
		case bool:
			*get(f) = t
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(t))
			if err != nil {
				return false
			}
			*get(f) = b
		default:
			return false
		}
		return true
	}
}

func floatField(get func(*File) *float64) setter {
	return func(f *File, v any) bool {
		switch t := v.(type) {
		case int:
			*get(f) = float64(t)
		case float64:
			*get(f) = t
		case string:
			x, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
			if err != nil {
				return false
			}
			*get(f) = x
		default:
			return false
		}
		return true
	}
}

func intField(get func(*File) *int) setter {
	return func(f *File, v any) bool {
		switch t := v.(type) {
		case int:
			*get(f) = t
		case float64:
			if t != math.Trunc(t) {
				return false
			}
			*get(f) = int(t)
		case string:
			x, err := strconv.Atoi(strings.TrimSpace(t))
			if err != nil {
				return false
			}
			*get(f) = x
		default:
			return false
		}
		return true
	}
}

var fields = map[string]setter{
	"trigger_character":     stringField(func(f *File) *string { return &f.TriggerCharacter }),
	"start_mode":            stringField(func(f *File) *string { return &f.StartMode }),
	"escape_cancels":        boolField(func(f *File) *bool { return &f.EscapeCancels }),
	"color_scheme":          stringField(func(f *File) *string { return &f.ColorScheme }),
	"use_serial_port":       boolField(func(f *File) *bool { return &f.UseSerialPort }),
	"serial_port":           stringField(func(f *File) *string { return &f.SerialPort }),
	"serial_baud_rate":      intField(func(f *File) *int { return &f.SerialBaudRate }),
	"serial_retries":        intField(func(f *File) *int { return &f.SerialRetries }),
	"serial_retry_delay":    floatField(func(f *File) *float64 { return &f.SerialRetryDelay }),
	"dlp_device":            stringField(func(f *File) *string { return &f.DLPDevice }),
	"dlp_baud_rate":         intField(func(f *File) *int { return &f.DLPBaudRate }),
	"images_dir":            stringField(func(f *File) *string { return &f.ImagesDir }),
	"fixation_image":        stringField(func(f *File) *string { return &f.FixationImage }),
	"checkerboard_image1":   stringField(func(f *File) *string { return &f.CheckerboardImage1 }),
	"checkerboard_image2":   stringField(func(f *File) *string { return &f.CheckerboardImage2 }),
	"instruction_image":     stringField(func(f *File) *string { return &f.InstructionImage }),
	"instruction_text":      stringField(func(f *File) *string { return &f.InstructionText }),
	"instruction_duration":  floatField(func(f *File) *float64 { return &f.InstructionDuration }),
	"num_cycles":            intField(func(f *File) *int { return &f.NumCycles }),
	"fixation_duration":     floatField(func(f *File) *float64 { return &f.FixationDuration }),
	"checkerboard_duration": floatField(func(f *File) *float64 { return &f.CheckerboardDuration }),
	"flash_frequency":       floatField(func(f *File) *float64 { return &f.FlashFrequency }),
	"screen_width":          intField(func(f *File) *int { return &f.ScreenWidth }),
	"screen_height":         intField(func(f *File) *int { return &f.ScreenHeight }),
	"fullscreen":            boolField(func(f *File) *bool { return &f.Fullscreen }),
	"vsync":                 boolField(func(f *File) *bool { return &f.VSync }),
	"font_file":             stringField(func(f *File) *string { return &f.FontFile }),
	"log_dir":               stringField(func(f *File) *string { return &f.LogDir }),
	"history_db":            stringField(func(f *File) *string { return &f.HistoryDB }),
	"otel_endpoint":         stringField(func(f *File) *string { return &f.OTelEndpoint }),
	"otel_insecure":         boolField(func(f *File) *bool { return &f.OTelInsecure }),
}

func merge(raw map[string]any) (File, []Warning) {
	f := Default()
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var warnings []Warning
	for _, k := range keys {
		set, ok := fields[k]
		if !ok {
			warnings = append(warnings, Warning{Field: k, Value: raw[k], Reason: "unknown setting ignored"})
			continue
		}
		if !set(&f, raw[k]) {
			warnings = append(warnings, Warning{Field: k, Value: raw[k], Reason: "wrong type, using default"})
		}
	}
	return f, warnings
}

// Upper bounds that keep every derived time.Duration, including the
// whole-session length, far from overflow.
const (
	maxPhaseSeconds = 24 * 60 * 60
	maxCycles       = 1000
)

func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }

func validate(f *File) []Warning {
	def := Default()
	var warnings []Warning
	fix := func(field string, value any, reason string, apply func()) {
		warnings = append(warnings, Warning{Field: field, Value: value, Reason: reason})
		apply()
	}

	if mode, ok := engine.ParseStartMode(f.StartMode); ok {
		f.StartMode = string(mode)
	} else {
		fix("start_mode", f.StartMode, "must be manual, trigger or both, using "+def.StartMode, func() { f.StartMode = def.StartMode })
	}

	f.ColorScheme = strings.ToLower(strings.TrimSpace(f.ColorScheme))
	if f.ColorScheme != SchemeBlueYellow && f.ColorScheme != SchemeBlackWhite {
		fix("color_scheme", f.ColorScheme, "unknown color scheme, using "+def.ColorScheme, func() { f.ColorScheme = def.ColorScheme })
	}

	f.TriggerCharacter = strings.TrimSpace(f.TriggerCharacter)
	if utf8.RuneCountInString(f.TriggerCharacter) != 1 {
		fix("trigger_character", f.TriggerCharacter, "must be a single character, using "+def.TriggerCharacter, func() { f.TriggerCharacter = def.TriggerCharacter })
	}

	durations := []struct {
		name string
		v    *float64
		d    float64
	}{
		{"instruction_duration", &f.InstructionDuration, def.InstructionDuration},
		{"fixation_duration", &f.FixationDuration, def.FixationDuration},
		{"checkerboard_duration", &f.CheckerboardDuration, def.CheckerboardDuration},
		{"serial_retry_delay", &f.SerialRetryDelay, def.SerialRetryDelay},
	}
	for _, d := range durations {
		if !finite(*d.v) || *d.v < 0 || *d.v > maxPhaseSeconds {
			fix(d.name, *d.v, fmt.Sprintf("must be within [0, %d], using %v", maxPhaseSeconds, d.d), func() { *d.v = d.d })
		}
	}

	if !(f.FlashFrequency >= engine.MinFlashFrequency && f.FlashFrequency <= engine.MaxFlashFrequency) {
		fix("flash_frequency", f.FlashFrequency,
			fmt.Sprintf("must be within [%v, %v], using %v", engine.MinFlashFrequency, engine.MaxFlashFrequency, def.FlashFrequency),
			func() { f.FlashFrequency = def.FlashFrequency })
	}

	ints := []struct {
		name string
		v    *int
		min  int
		max  int
		d    int
	}{
		{"num_cycles", &f.NumCycles, 1, maxCycles, def.NumCycles},
		{"serial_baud_rate", &f.SerialBaudRate, 1, math.MaxInt32, def.SerialBaudRate},
		{"serial_retries", &f.SerialRetries, 0, math.MaxInt32, def.SerialRetries},
		{"dlp_baud_rate", &f.DLPBaudRate, 1, math.MaxInt32, def.DLPBaudRate},
		{"screen_width", &f.ScreenWidth, 1, math.MaxInt32, def.ScreenWidth},
		{"screen_height", &f.ScreenHeight, 1, math.MaxInt32, def.ScreenHeight},
	}
	for _, i := range ints {
		if *i.v < i.min || *i.v > i.max {
			fix(i.name, *i.v, fmt.Sprintf("must be within [%d, %d], using %d", i.min, i.max, i.d), func() { *i.v = i.d })
		}
	}

	if f.UseSerialPort && strings.TrimSpace(f.SerialPort) == "" {
		fix("use_serial_port", f.UseSerialPort, "no serial_port set, using keyboard triggers", func() { f.UseSerialPort = false })
	}
	return warnings
}
