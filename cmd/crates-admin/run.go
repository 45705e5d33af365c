// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pdiddy/crates-admin/internal/batch"
	"github.com/pdiddy/crates-admin/internal/registry"
	"github.com/pdiddy/crates-admin/internal/secrets"
	"github.com/pdiddy/crates-admin/pkg/types"
)

// mustBind binds a viper key to a flag; a missing flag is a programming
// error.
func mustBind(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("binding %s: %v", key, err))
	}
}

// addBatchFlags registers the flags every batch command shares.
func addBatchFlags(flags *pflag.FlagSet) {
	flags.Duration("delay", 0, "time to sleep before each crate to reduce database load")
	flags.BoolP("yes", "y", false, "answer yes to every confirmation prompt")
	flags.String("report", "", "write a YAML run report to this path")
	flags.String("metrics-file", "", "write Prometheus metrics in textfile format to this path")
}

// bindBatchFlags binds the shared batch flags of the command about to run.
// Binding happens at run time because several commands define the same
// flag names.
func bindBatchFlags(flags *pflag.FlagSet) {
	mustBind("delay", flags.Lookup("delay"))
	mustBind("yes", flags.Lookup("yes"))
	mustBind("report", flags.Lookup("report"))
	mustBind("metrics_file", flags.Lookup("metrics-file"))
	if f := flags.Lookup("index-dir"); f != nil {
		mustBind("index_dir", f)
	}
}

func batchConfig() types.BatchConfig {
	return types.BatchConfig{
		Delay:       viper.GetDuration("delay"),
		AssumeYes:   viper.GetBool("yes"),
		ReportPath:  viper.GetString("report"),
		MetricsFile: viper.GetString("metrics_file"),
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("parsing log level %q: %w", level, err)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = lvl > zapcore.DebugLevel
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

// openStore connects to the registry database named by database_url, or
// the database-url secret when neither flag, env nor config sets it.
func openStore(ctx context.Context) (*registry.Store, error) {
	url := secretDefault(secrets.DatabaseURL, viper.GetString("database_url"))
	if url == "" {
		return nil, errors.New("no database configured: set --database-url, CRATES_ADMIN_DATABASE_URL or .secrets/database-url")
	}
	return registry.Open(ctx, types.DatabaseConfig{URL: url}, logger)
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// newDriver builds a batch driver for the console: a progress bar on
// stderr when it is a terminal, plain status lines otherwise.
func newDriver(cfg types.BatchConfig, stdin io.Reader, stdout, stderr io.Writer) *batch.Driver {
	var sink batch.Sink
	if isTerminal(stderr) {
		sink = batch.NewProgressSink(stdout, stderr)
	} else {
		sink = batch.NewWriterSink(stdout, isTerminal(stdout))
	}

	confirm := batch.Confirmer(batch.NewPrompter(stdin, stdout))
	if cfg.AssumeYes {
		confirm = batch.Always(true)
	}

	d := &batch.Driver{
		Delay:   cfg.Delay,
		Sink:    sink,
		Confirm: confirm,
		Logger:  logger,
	}
	if cfg.MetricsFile != "" {
		d.Metrics = batch.NewMetrics()
	}
	return d
}

// finishRuns writes the optional report and metrics file for a command.
// Per-crate failures are already printed; they do not fail the command.
func finishRuns(cfg types.BatchConfig, d *batch.Driver, command string, runs []batch.Summary) error {
	if cfg.ReportPath != "" {
		if err := batch.WriteReport(cfg.ReportPath, batch.Report{Command: command, Runs: runs}); err != nil {
			return err
		}
		logger.Info("wrote run report", zap.String("path", cfg.ReportPath))
	}
	if cfg.MetricsFile != "" && d.Metrics != nil {
		if err := d.Metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			return err
		}
	}
	for _, s := range runs {
		if s.HasFailures() {
			logger.Warn("run finished with failures",
				zap.String("job", s.Job), zap.Int("failed", s.Failed), zap.String("run_id", s.RunID))
		}
	}
	return nil
}
