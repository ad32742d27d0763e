// Package cli implements the metalens command-line interface: the shell that
// loads one file, drives edits and analysis on its record, and hands export
// artifacts to the saver.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/metalens/internal/analysis"
	"github.com/mesh-intelligence/metalens/internal/metrics"
	"github.com/mesh-intelligence/metalens/internal/paths"
	"github.com/mesh-intelligence/metalens/internal/save"
	"github.com/mesh-intelligence/metalens/internal/session"
	"github.com/mesh-intelligence/metalens/pkg/clock"
)

// Exit codes.
const (
	exitSuccess        = 0
	exitUserError      = 1
	exitSysError       = 2
	exitAnalysisFailed = 3
)

// exitError attaches an exit code to an error returned from a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

func userError(err error) error { return &exitError{code: exitUserError, err: err} }

func sysError(err error) error { return &exitError{code: exitSysError, err: err} }

// analysisError marks a retryable analysis failure. The record it was issued
// for is left unchanged.
func analysisError(err error) error {
	return &exitError{code: exitAnalysisFailed, err: fmt.Errorf("%w (record left unchanged; retry later)", err)}
}

// ExitCode maps an error returned by the root command to a process exit
// code. Errors without an explicit code are usage errors.
func ExitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitUserError
}

// app holds global flag values and the services built from configuration.
type app struct {
	configDir   string
	jsonMode    bool
	metricsFile string

	configCreated bool // setup wrote a default config.yaml

	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	clock   clock.Clock
}

// NewRootCmd creates the top-level "metalens" command with global flags and
// all subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{clock: clock.Real()}

	root := &cobra.Command{
		Use:   "metalens",
		Short: "Inspect, edit and export file metadata",
		Long: "metalens loads a single file, lets you edit its name, type, timestamp,\n" +
			"description, keywords and custom fields, optionally fills them in from a\n" +
			"content-analysis service, and exports either a re-wrapped copy of the file\n" +
			"or a JSON sidecar.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.writeMetrics()
		},
	}

	root.PersistentFlags().StringVar(&a.configDir, "config-dir", "", "configuration directory (default: $XDG_CONFIG_HOME/metalens or the platform equivalent)")
	root.PersistentFlags().BoolVar(&a.jsonMode, "json", false, "output as JSON")
	root.PersistentFlags().StringVar(&a.metricsFile, "metrics-file", "", "write session metrics in Prometheus text format to this file")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd(a))
	root.AddCommand(newInspectCmd(a))
	root.AddCommand(newAnalyzeCmd(a))
	root.AddCommand(newEditCmd(a))
	root.AddCommand(newShellCmd(a))

	return root
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := NewRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "metalens:", err)
		stop()
		os.Exit(ExitCode(err))
	}
}

// setup loads configuration and builds the logger and metrics. The version
// command needs none of it.
func (a *app) setup(cmd *cobra.Command) error {
	if cmd.Name() == "version" {
		return nil
	}

	configDir, err := paths.ResolveConfigDir(a.configDir)
	if err != nil {
		return sysError(fmt.Errorf("resolve config dir: %w", err))
	}
	a.configDir = configDir

	if err := ensureConfigDir(configDir); err != nil {
		return sysError(fmt.Errorf("create config directory: %w", err))
	}
	created, err := writeDefaultConfig(configDir)
	if err != nil {
		return sysError(fmt.Errorf("write default config: %w", err))
	}
	a.configCreated = created

	cfg, err := loadConfig(configDir)
	if err != nil {
		return sysError(err)
	}
	a.cfg = cfg

	logger, err := newLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return userError(fmt.Errorf("config: %w", err))
	}
	a.logger = logger.With(slog.String("command", cmd.Name()))
	a.metrics = metrics.New()
	return nil
}

// newAnalyzer builds the analysis stack: session cache over an observed
// Gemini client.
func (a *app) newAnalyzer() analysis.Analyzer {
	gemini := analysis.NewGemini(analysis.GeminiConfig{
		Endpoint: a.cfg.Analysis.Endpoint,
		Model:    a.cfg.Analysis.Model,
		APIKey:   a.cfg.Analysis.APIKey,
		Timeout:  a.cfg.Analysis.Timeout,
	}, a.logger)
	observed := analysis.NewObserved(gemini, a.metrics, a.logger)
	return analysis.NewCached(observed, a.cfg.Analysis.CacheSize, a.cfg.Analysis.CacheTTL, a.metrics)
}

func (a *app) newSession() *session.Session {
	return session.New(session.Config{
		Analyzer:        a.newAnalyzer(),
		MaxPayloadBytes: a.cfg.Analysis.MaxPayloadBytes,
		Timeout:         a.cfg.Analysis.Timeout,
		Clock:           a.clock,
		Metrics:         a.metrics,
		Logger:          a.logger,
	})
}

// newSaver returns a saver for the output directory resolved from flag,
// config and environment.
func (a *app) newSaver(outFlag string) (*save.Saver, error) {
	dir, err := paths.ResolveOutputDir(outFlag, a.cfg.OutputDir)
	if err != nil {
		return nil, sysError(fmt.Errorf("resolve output dir: %w", err))
	}
	return save.New(dir, a.metrics, a.logger), nil
}

// writeMetrics dumps the metrics registry when --metrics-file is set.
func (a *app) writeMetrics() error {
	if a.metricsFile == "" || a.metrics == nil {
		return nil
	}
	f, err := os.Create(a.metricsFile)
	if err != nil {
		return sysError(fmt.Errorf("create metrics file: %w", err))
	}
	if err := a.metrics.WriteText(f); err != nil {
		f.Close()
		return sysError(err)
	}
	if err := f.Close(); err != nil {
		return sysError(fmt.Errorf("close metrics file: %w", err))
	}
	return nil
}
