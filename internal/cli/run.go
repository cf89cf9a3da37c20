package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/eAi-solutions/mvast-fmri-task/engine"
	"github.com/eAi-solutions/mvast-fmri-task/internal/config"
	"github.com/eAi-solutions/mvast-fmri-task/internal/display"
	"github.com/eAi-solutions/mvast-fmri-task/internal/dlp"
	"github.com/eAi-solutions/mvast-fmri-task/internal/history"
	"github.com/eAi-solutions/mvast-fmri-task/internal/metrics"
	"github.com/eAi-solutions/mvast-fmri-task/internal/trigger"
)

const (
	completionHold = 3 * time.Second
	flushTimeout   = 5 * time.Second
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the task",
	Long: `Run the task with the current configuration.

Exit status is 0 when the session completes, 1 on a hard failure,
2 when the operator cancels with ESC and 3 when the window is closed
or the process is interrupted.`,
	Args: cobra.NoArgs,
	RunE: runTask,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runTask(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := config.NewStore(configPath, logger)
	f, _, err := store.Load()
	if err != nil {
		return failure(err)
	}
	sessionCfg := f.Session()
	if err := sessionCfg.Validate(); err != nil {
		return failure(err)
	}
	logger.Info("configuration loaded",
		"path", store.Path(),
		"color_scheme", f.ColorScheme,
		"start_mode", sessionCfg.StartMode,
		"trigger", string(sessionCfg.TriggerChar),
		"expected_duration", sessionCfg.ExpectedDuration())

	screen, err := display.Open(display.Options{
		Width:      f.ScreenWidth,
		Height:     f.ScreenHeight,
		Fullscreen: f.Fullscreen,
		VSync:      f.VSync,
		FontFile:   f.FontFile,
		Scheme:     f.ColorScheme,
	}, logger)
	if err != nil {
		return failure(err)
	}
	defer screen.Close()

	assets := assetsFor(f)
	images, err := screen.LoadImages(assets)
	if err != nil {
		logger.Error("checkerboard images unavailable", "error", err)
		screen.ShowMessage(display.AssetErrorMessage(assets))
		screen.WaitForKey(ctx)
		return failure(err)
	}

	opts := []engine.Option{engine.WithLogger(logger)}

	src := trigger.Open(trigger.Config{
		Char:       sessionCfg.TriggerChar,
		UseSerial:  f.UseSerialPort,
		Port:       f.SerialPort,
		BaudRate:   f.SerialBaudRate,
		Retries:    f.SerialRetries,
		RetryDelay: f.SerialRetryInterval(),
	}, logger)
	defer src.Stop()
	opts = append(opts, engine.WithTrigger(src))

	if f.DLPDevice != "" {
		dev, err := dlp.Open(f.DLPDevice, f.DLPBaudRate, logger)
		if err != nil {
			logger.Warn("phase markers disabled", "error", err)
		} else {
			defer dev.Close()
			opts = append(opts, engine.WithMarker(dlp.NewMarker(dev, nil)))
		}
	}

	rep, err := engine.NewRunner(sessionCfg, images, screen, opts...).Run(ctx)
	if err != nil {
		return failure(err)
	}

	out := newOutputs(ctx, f, logger)
	out.persist(rep)
	out.close()

	if rep.Outcome == engine.Completed {
		screen.ShowMessage(display.CompletionMessage)
		screen.Hold(ctx, completionHold)
	}
	if code := exitCode(rep); code != ExitCompleted {
		return &ExitError{Code: code}
	}
	return nil
}

func assetsFor(f config.File) display.Assets {
	a, b := f.CheckerboardImages()
	return display.Assets{
		Dir:             f.ImagesDir,
		Scheme:          f.ColorScheme,
		Fixation:        f.FixationImage,
		Instruction:     f.InstructionImage,
		InstructionText: f.InstructionText,
		CheckerA:        a,
		CheckerB:        b,
	}
}

// outputs are where a finished session is written. Each sink is optional
// and failures are logged, never fatal.
type outputs struct {
	logDir  string
	history *history.Store
	metrics metrics.Recorder
	logger  *slog.Logger
}

func newOutputs(ctx context.Context, f config.File, logger *slog.Logger) *outputs {
	out := &outputs{logDir: f.LogDir, metrics: metrics.NoOp{}, logger: logger}

	if f.HistoryDB != "" {
		store, err := history.Open(f.HistoryDB)
		if err != nil {
			logger.Warn("session history unavailable", "error", err)
		} else {
			out.history = store
		}
	}

	if f.OTelEndpoint != "" {
		// The run context may already be cancelled by a signal.
		exp, err := metrics.NewExporter(context.WithoutCancel(ctx), metrics.Config{
			Endpoint: f.OTelEndpoint,
			Insecure: f.OTelInsecure,
		})
		if err != nil {
			logger.Warn("metrics export unavailable", "error", err)
		} else {
			out.metrics = exp
		}
	}
	return out
}

// persist writes the timing log, archives the session and records metrics.
// A session cancelled before it started has nothing to persist.
func (o *outputs) persist(rep *engine.Report) string {
	if len(rep.Phases) == 0 {
		return ""
	}

	logPath := ""
	if o.logDir != "" {
		path := filepath.Join(o.logDir, logFileName(rep))
		if err := saveLog(rep, path); err != nil {
			o.logger.Warn("failed to save timing log", "error", err)
		} else {
			logPath = path
			o.logger.Info("timing log saved", "path", path)
		}
	}

	if o.history != nil {
		if err := o.history.SaveReport(rep, logPath); err != nil {
			o.logger.Warn("failed to archive session", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := o.metrics.RecordSession(ctx, rep); err != nil {
		o.logger.Warn("failed to record metrics", "error", err)
	}
	return logPath
}

func (o *outputs) close() {
	if o.history != nil {
		o.history.Close()
	}
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := o.metrics.Close(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		o.logger.Warn("failed to flush metrics", "error", err)
	}
}

func logFileName(rep *engine.Report) string {
	id := rep.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("mvast_%s_%s.csv", rep.StartedAt.Format("20060102-150405"), id)
}

func saveLog(rep *engine.Report, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	return rep.Save(path)
}
