package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"pmcautomation/cmd/pmc/globals"
	"pmcautomation/internal/batch"
	"pmcautomation/internal/components/chrono"
	"pmcautomation/internal/components/restyutil"
	"pmcautomation/internal/components/telemetry"
	"pmcautomation/pkg/configutil"
	"pmcautomation/pkg/serviceutil"
	"time"

	"dario.cat/mergo"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	configPath *string
	testDb     *bool
	debug      *bool
	logFile    *string
	batchCode  *string
	keepBatch  *bool
)

// closers run once the command finished.
var closers []func(context.Context) error

func init() {
	flags := rootCmd.PersistentFlags()
	configPath = flags.String("config", "pmc.json5", "The configuration file, a pmc.local.json5 next to it overrides it.")
	testDb = flags.Bool("test", false, "Use the test database instead of production.")
	debug = flags.Bool("debug", false, "Log debug information and dump http messages into the batch folder.")
	logFile = flags.String("log-file", "", "Also write logs to this file, prefixed with the date according to log_format.")
	keepBatch = flags.Bool("batch", false, "Create a batch folder for this run to hold logs, http dumps and exports.")
	batchCode = flags.String("batch-code", "", "Name the batch folder instead of using the current date, implies --batch.")
}

var rootCmd = &cobra.Command{
	Use:   "pmc",
	Short: "pmc calls Plex classic, UX and Connect api data sources and exports their rows.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		value, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		cmd.SetContext(globals.Set(cmd.Context(), value))
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return shutdown(cmd.Context())
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func readConfig(path string) (globals.Config, error) {
	config := globals.DefaultConfig()
	fromFile, err := configutil.ReadConfig[globals.Config](path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		slog.Debug("no config file, using defaults", "path", path)
	case err != nil:
		return config, err
	default:
		err = mergo.Merge(&config, fromFile, mergo.WithOverride)
		if err != nil {
			return config, err
		}
	}
	err = configutil.ApplyEnv(&config)
	if err != nil {
		return config, fmt.Errorf("read environment: %w", err)
	}
	return config, nil
}

func setup(ctx context.Context) (*globals.Value, error) {
	telemetry.InitSlog(*debug)

	config, err := readConfig(*configPath)
	if err != nil {
		return nil, err
	}

	clock, err := chrono.NewStandardImpl(config.Timezone)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	value := &globals.Value{
		Config: config,
		RunID:  runID,
		Test:   *testDb,
		Debug:  *debug,
		Clock:  clock,
	}

	if *keepBatch || *batchCode != "" {
		folder, err := batch.NewFolder(batch.FolderOptions{
			Root:        config.BatchRoot,
			Code:        *batchCode,
			IncludeTime: *batchCode == "",
			Test:        *testDb,
		}, clock, telemetry.NewSlogAPI(nil))
		if err != nil {
			return nil, err
		}
		value.BatchFolder = folder
		output, err := restyutil.NewFilesystemOutput(filepath.Join(folder, "http"))
		if err != nil {
			return nil, err
		}
		value.Output = output
	}

	if *logFile != "" {
		rootDir := filepath.Dir(*logFile)
		if value.BatchFolder != "" && !filepath.IsAbs(*logFile) {
			rootDir = filepath.Join(value.BatchFolder, rootDir)
		}
		level := slog.LevelInfo
		if *debug {
			level = slog.LevelDebug
		}
		logger, closer, err := telemetry.NewFileLogger(telemetry.FileLoggerOptions{
			Name:    "pmc",
			File:    filepath.Base(*logFile),
			Format:  telemetry.FileFormat(config.LogFormat),
			Level:   level,
			RootDir: rootDir,
			Now:     clock.Now,
		})
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		slog.SetDefault(telemetry.Tee(slog.Default(), logger))
		closers = append(closers, func(context.Context) error {
			return closer.Close()
		})
	}
	slog.SetDefault(slog.Default().With("run_id", runID))
	value.Tel = telemetry.NewSlogAPI(nil)

	otel, err := telemetry.SetupFromEnv(ctx, "pmc")
	switch {
	case errors.Is(err, os.ErrNotExist):
		slog.Debug("no telemetry.json5 found, not exporting traces or metrics")
	case err != nil:
		slog.Warn("failed to setup telemetry", "err", err)
	default:
		closers = append(closers, otel.Shutdown)
	}

	if config.PerfStats {
		telemetry.InstrumentPerfStats(ctx, value.Tel, 10*time.Second)
	}

	slog.Debug("starting run", "test", value.Test, "batch_folder", value.BatchFolder)
	return value, nil
}

func shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		errs = append(errs, closers[i](ctx))
	}
	closers = nil
	return errors.Join(errs...)
}

func ExecuteContext(ctx context.Context) {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		shutdown(ctx)
		serviceutil.Fatal("pmc failed", err)
	}
}

// stdio returns where prompts are read from and written to.
func stdio(cmd *cobra.Command) (io.Reader, io.Writer) {
	return cmd.InOrStdin(), cmd.ErrOrStderr()
}
