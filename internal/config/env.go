package config

import (
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "MVAST"

// Env holds process-level settings that only come from the environment.
type Env struct {
	ConfigPath string `envconfig:"CONFIG" default:"mvast_fmri_task_config.yaml"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`
}

func LoadEnv() (Env, error) {
	var e Env
	err := envconfig.Process(envPrefix, &e)
	return e, err
}

// overrides are per-field values from MVAST_* variables. They are kept as raw
// strings so they pass through the same checks as the file.
type overrides struct {
	StartMode        *string `envconfig:"START_MODE"`
	TriggerCharacter *string `envconfig:"TRIGGER_CHARACTER"`
	EscapeCancels    *string `envconfig:"ESCAPE_CANCELS"`
	ColorScheme      *string `envconfig:"COLOR_SCHEME"`
	UseSerialPort    *string `envconfig:"USE_SERIAL_PORT"`
	SerialPort       *string `envconfig:"SERIAL_PORT"`
	SerialRetries    *string `envconfig:"SERIAL_RETRIES"`
	DLPDevice        *string `envconfig:"DLP_DEVICE"`
	DLPBaudRate      *string `envconfig:"DLP_BAUD_RATE"`
	ImagesDir        *string `envconfig:"IMAGES_DIR"`
	NumCycles        *string `envconfig:"NUM_CYCLES"`
	Fullscreen       *string `envconfig:"FULLSCREEN"`
	LogDir           *string `envconfig:"LOG_DIR"`
	HistoryDB        *string `envconfig:"HISTORY_DB"`
	OTelEndpoint     *string `envconfig:"OTEL_ENDPOINT"`
}

func envOverrides() (map[string]any, error) {
	var o overrides
	if err := envconfig.Process(envPrefix, &o); err != nil {
		return nil, err
	}
	out := map[string]any{}
	for key, v := range map[string]*string{
		"start_mode":        o.StartMode,
		"trigger_character": o.TriggerCharacter,
		"escape_cancels":    o.EscapeCancels,
		"color_scheme":      o.ColorScheme,
		"use_serial_port":   o.UseSerialPort,
		"serial_port":       o.SerialPort,
		"serial_retries":    o.SerialRetries,
		"dlp_device":        o.DLPDevice,
		"dlp_baud_rate":     o.DLPBaudRate,
		"images_dir":        o.ImagesDir,
		"num_cycles":        o.NumCycles,
		"fullscreen":        o.Fullscreen,
		"log_dir":           o.LogDir,
		"history_db":        o.HistoryDB,
		"otel_endpoint":     o.OTelEndpoint,
	} {
		if v != nil {
			out[key] = *v
		}
	}
	return out, nil
}
