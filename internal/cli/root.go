package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eAi-solutions/mvast-fmri-task/engine"
	"github.com/eAi-solutions/mvast-fmri-task/internal/config"
)

const (
	ExitCompleted     = 0
	ExitFailure       = 1
	ExitUserCancelled = 2
	ExitHostQuit      = 3
)

// ExitError carries a process exit code out of a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

func failure(err error) error {
	return &ExitError{Code: ExitFailure, Err: err}
}

// Flags
var (
	configPath string
	logLevel   string
)

var logger = slog.Default()

var rootCmd = &cobra.Command{
	Use:   "mvast-fmri",
	Short: "Visual stimulation task for fMRI sessions",
	Long: `mvast-fmri runs a block-design visual task in the scanner: an optional
instruction screen followed by cycles of fixation and a flashing
checkerboard, started by the operator or by the scanner trigger.

Without a subcommand it runs the task.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := newLogger(logLevel, cmd.ErrOrStderr())
		if err != nil {
			return failure(err)
		}
		logger = l
		slog.SetDefault(l)
		return nil
	},
	RunE: runTask,
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return ExitCompleted
	}
	var exit *ExitError
	if errors.As(err, &exit) {
		if exit.Err != nil {
			fmt.Fprintln(os.Stderr, "Error:", exit.Err)
		}
		return exit.Code
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	return ExitFailure
}

func init() {
	env, err := config.LoadEnv()
	if err != nil {
		env = config.Env{ConfigPath: config.DefaultPath, LogLevel: "info"}
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", env.ConfigPath, "Configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", env.LogLevel, "Log level (debug, info, warn, error)")
}

func newLogger(level string, w io.Writer) (*slog.Logger, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l})), nil
}

// exitCode maps a finished session to the process exit code.
func exitCode(rep *engine.Report) int {
	if rep == nil || rep.Outcome == engine.Completed {
		return ExitCompleted
	}
	if rep.Reason == engine.HostQuit {
		return ExitHostQuit
	}
	return ExitUserCancelled
}
