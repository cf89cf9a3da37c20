// Package config is the on-disk configuration store of the task.
package config

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/eAi-solutions/mvast-fmri-task/engine"
	"github.com/eAi-solutions/mvast-fmri-task/internal/dlp"
)

const DefaultPath = "mvast_fmri_task_config.yaml"

const (
	SchemeBlueYellow = "blue_yellow"
	SchemeBlackWhite = "black_white"
)

// File is the persisted configuration. Durations are in seconds.
type File struct {
	TriggerCharacter   string  `yaml:"trigger_character"`
	StartMode          string  `yaml:"start_mode"`
	EscapeCancels      bool    `yaml:"escape_cancels"`
	ColorScheme        string  `yaml:"color_scheme"`
	UseSerialPort      bool    `yaml:"use_serial_port"`
	SerialPort         string  `yaml:"serial_port"`
	SerialBaudRate     int     `yaml:"serial_baud_rate"`
	SerialRetries      int     `yaml:"serial_retries"`
	SerialRetryDelay   float64 `yaml:"serial_retry_delay"`
	DLPDevice          string  `yaml:"dlp_device"`
	DLPBaudRate        int     `yaml:"dlp_baud_rate"`
	ImagesDir          string  `yaml:"images_dir"`
	FixationImage      string  `yaml:"fixation_image"`
	CheckerboardImage1 string  `yaml:"checkerboard_image1"`
	CheckerboardImage2 string  `yaml:"checkerboard_image2"`
	InstructionImage   string  `yaml:"instruction_image"`
	InstructionText    string  `yaml:"instruction_text"`

	InstructionDuration  float64 `yaml:"instruction_duration"`
	NumCycles            int     `yaml:"num_cycles"`
	FixationDuration     float64 `yaml:"fixation_duration"`
	CheckerboardDuration float64 `yaml:"checkerboard_duration"`
	FlashFrequency       float64 `yaml:"flash_frequency"`

	ScreenWidth  int    `yaml:"screen_width"`
	ScreenHeight int    `yaml:"screen_height"`
	Fullscreen   bool   `yaml:"fullscreen"`
	VSync        bool   `yaml:"vsync"`
	FontFile     string `yaml:"font_file"`

	LogDir       string `yaml:"log_dir"`
	HistoryDB    string `yaml:"history_db"`
	OTelEndpoint string `yaml:"otel_endpoint"`
	OTelInsecure bool   `yaml:"otel_insecure"`
}

// Default returns a fresh copy of the documented defaults.
func Default() File {
	return File{
		TriggerCharacter:     "=",
		StartMode:            string(engine.StartBoth),
		EscapeCancels:        true,
		ColorScheme:          SchemeBlueYellow,
		SerialBaudRate:       9600,
		SerialRetryDelay:     1.0,
		DLPBaudRate:          dlp.DefaultBaudRate,
		ImagesDir:            "images",
		InstructionDuration:  10.0,
		NumCycles:            5,
		FixationDuration:     20.0,
		CheckerboardDuration: 20.0,
		FlashFrequency:       8.0,
		ScreenWidth:          1920,
		ScreenHeight:         1080,
		Fullscreen:           true,
		VSync:                true,
		LogDir:               "logs",
		HistoryDB:            "mvast_history.db",
		OTelInsecure:         true,
	}
}

// CheckerboardImages returns the configured pair, falling back to the
// files that ship with the color scheme.
func (f File) CheckerboardImages() (string, string) {
	a, b := f.CheckerboardImage1, f.CheckerboardImage2
	defA, defB := "acheck_by.png", "acheck_by_.png"
	if f.ColorScheme == SchemeBlackWhite {
		defA, defB = "acheck_bw.png", "acheck_bw_.png"
	}
	if a == "" {
		a = defA
	}
	if b == "" {
		b = defB
	}
	return a, b
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

// Session converts the file into the engine's view of the protocol.
func (f File) Session() engine.SessionConfig {
	mode, ok := engine.ParseStartMode(f.StartMode)
	if !ok {
		mode = engine.StartBoth
	}
	trigger, _ := utf8.DecodeRuneInString(strings.TrimSpace(f.TriggerCharacter))
	if trigger == utf8.RuneError {
		trigger = 0
	}
	return engine.SessionConfig{
		NumCycles:            f.NumCycles,
		FixationDuration:     seconds(f.FixationDuration),
		CheckerboardDuration: seconds(f.CheckerboardDuration),
		InstructionDuration:  seconds(f.InstructionDuration),
		FlashFrequency:       f.FlashFrequency,
		StartMode:            mode,
		TriggerChar:          trigger,
		EscapeCancels:        f.EscapeCancels,
	}
}

// SerialRetryInterval is SerialRetryDelay as a duration.
func (f File) SerialRetryInterval() time.Duration {
	return seconds(f.SerialRetryDelay)
}
