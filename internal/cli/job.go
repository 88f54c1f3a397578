package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/sdejongh/syncplan/internal/platform"
	"github.com/sdejongh/syncplan/pkg/compare"
	"github.com/sdejongh/syncplan/pkg/config"
	"github.com/sdejongh/syncplan/pkg/estimate"
	"github.com/sdejongh/syncplan/pkg/logging"
	"github.com/sdejongh/syncplan/pkg/metrics"
	"github.com/sdejongh/syncplan/pkg/models"
	"github.com/sdejongh/syncplan/pkg/output"
	"github.com/sdejongh/syncplan/pkg/planner"
	"github.com/sdejongh/syncplan/pkg/ratelimit"
	"github.com/sdejongh/syncplan/pkg/storage"
	"github.com/sdejongh/syncplan/pkg/transfer"
)

// ExitError carries a process exit code out of a command
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

func (e *ExitError) Unwrap() error {
	return e.Err
}

// job is a resolved source, destination and filter
type job struct {
	Source      string
	Destination string
	Filter      models.FilterSpec
}

// loadConfig loads configuration from file or returns default
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(globalFlags.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// applyExecFlags overrides config values with command-line flags
func applyExecFlags(cmd *cobra.Command, cfg *config.Config, f *ExecFlags) error {
	if f.Workers > 0 {
		cfg.Performance.MaxWorkers = f.Workers
	}
	if cmd.Flags().Changed("verify") {
		cfg.Transfer.Verify = f.Verify
	}
	if f.Checksum != "" {
		cfg.Transfer.Checksum = f.Checksum
	}
	if f.Skip != "" {
		cfg.Transfer.SkipPolicy = f.Skip
	}
	if f.Bandwidth != "" {
		cfg.Performance.BandwidthLimit = f.Bandwidth
	}
	if f.Throughput != "" {
		cfg.Performance.Throughput = f.Throughput
	}
	if f.Output != "" {
		cfg.Output.Format = f.Output
	}
	if f.FailuresFile != "" {
		cfg.Output.FailuresFile = f.FailuresFile
	}
	if f.LogFile != "" {
		cfg.Logging.Enabled = true
		cfg.Logging.File = f.LogFile
	}
	if f.LogLevel != "" {
		cfg.Logging.Level = f.LogLevel
	}
	return cfg.Validate()
}

// resolveJob combines positional arguments, an optional profile and filter flags.
// Flags override the profile field by field.
func resolveJob(cfg *config.Config, args []string, f *FilterFlags) (job, error) {
	var j job
	var fc config.FilterConfig

	if f.Profile != "" {
		p, ok := cfg.Profiles[f.Profile]
		if !ok {
			return j, &models.ConfigError{Field: "profile", Message: "unknown profile " + f.Profile}
		}
		j.Source, j.Destination = p.Source, p.Destination
		fc = p.Filter
	}

	switch len(args) {
	case 0:
		if f.Profile == "" {
			return j, fmt.Errorf("source and destination are required (or use --profile)")
		}
	case 2:
		j.Source, j.Destination = args[0], args[1]
	default:
		return j, fmt.Errorf("expected <source> <destination>, got %d arguments", len(args))
	}

	if len(f.Patterns) > 0 {
		fc.Patterns = f.Patterns
	}
	if len(f.IncludeDirs) > 0 {
		fc.IncludeDirs = f.IncludeDirs
	}
	if f.TimeWindow != "" {
		fc.TimeWindow = f.TimeWindow
	}
	if f.MinSize != "" {
		fc.MinSize = f.MinSize
	}
	if f.MaxSize != "" {
		fc.MaxSize = f.MaxSize
	}

	spec, err := fc.Spec(time.Local)
	if err != nil {
		return j, err
	}
	j.Filter = spec

	if err := platform.ValidatePath(j.Source); err != nil {
		return j, &models.ConfigError{Field: "source", Message: err.Error()}
	}
	abs, err := filepath.Abs(platform.NormalizePath(j.Source))
	if err != nil {
		return j, fmt.Errorf("failed to resolve source path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return j, fmt.Errorf("source path does not exist: %s", j.Source)
	}
	if !info.IsDir() {
		return j, fmt.Errorf("source path is not a directory: %s", j.Source)
	}
	j.Source = abs
	return j, nil
}

// createLogger creates a logger based on configuration.
// --verbose sends debug logs to stderr instead of the log file.
func createLogger(cfg *config.Config, stderr io.Writer) (logging.Logger, error) {
	if globalFlags.Verbose {
		return logging.NewWriterLogger(stderr, logging.FormatText, logging.DebugLevel), nil
	}
	if !cfg.Logging.Enabled {
		return logging.NewNullLogger(), nil
	}

	path := cfg.Logging.File
	if path == "" {
		var err error
		if path, err = platform.LogPath(); err != nil {
			return nil, err
		}
	}

	format := logging.FormatJSON
	if cfg.Logging.Format == "text" {
		format = logging.FormatText
	}

	return logging.NewFileLogger(logging.FileLoggerConfig{
		Path:       path,
		Format:     format,
		Level:      logging.ParseLevel(cfg.Logging.Level),
		MaxSize:    int64(cfg.Logging.MaxSizeMB) * 1024 * 1024,
		MaxBackups: cfg.Logging.MaxBackups,
	})
}

func storageOptions(cfg *config.Config) storage.Options {
	return storage.Options{
		SFTP: storage.SFTPConfig{
			KeyFile:        cfg.SFTP.KeyFile,
			Password:       os.Getenv("SYNCPLAN_SFTP_PASSWORD"),
			KnownHostsFile: cfg.SFTP.KnownHosts,
			Insecure:       cfg.SFTP.Insecure,
			Timeout:        cfg.SFTP.Timeout,
		},
		S3: storage.S3Config{
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			PathStyle: cfg.S3.PathStyle,
		},
	}
}

func openDestination(ctx context.Context, cfg *config.Config, raw string) (storage.Backend, error) {
	ep, err := storage.Resolve(raw)
	if err != nil {
		return nil, &models.ConfigError{Field: "destination", Message: err.Error()}
	}
	backend, err := storage.Open(ctx, ep, storageOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open destination: %w", err)
	}
	return backend, nil
}

// throughput returns the bytes/sec figure for the estimate, probing the
// destination when calibrate is set
func throughput(ctx context.Context, cfg *config.Config, backend storage.Backend, calibrate bool, log logging.Logger) float64 {
	if calibrate {
		if p, ok := backend.(estimate.Prober); ok {
			if measured := estimate.Calibrate(ctx, p, estimate.DefaultProbeSize); measured > 0 {
				log.Info(ctx, "Calibrated throughput", logging.Fields{"bytes_per_sec": measured})
				return measured
			}
			log.Warn(ctx, "Calibration failed, using configured throughput", nil)
		}
	}
	return cfg.Throughput()
}

func buildPlan(ctx context.Context, p *planner.Planner, j job, tp float64) (*models.Plan, error) {
	entries, err := storage.Walk(ctx, j.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to walk source: %w", err)
	}
	return p.BuildPlan(j.Source, j.Destination, entries, j.Filter, tp)
}

func newExecutor(cfg *config.Config, backend storage.Backend, log logging.Logger, m *metrics.Metrics) (*transfer.Executor, error) {
	algo, err := compare.ParseAlgorithm(cfg.Transfer.Checksum)
	if err != nil {
		return nil, err
	}
	skip, err := compare.New(compare.Policy(cfg.Transfer.SkipPolicy), algo, cfg.Transfer.MtimeTolerance)
	if err != nil {
		return nil, err
	}
	retries := cfg.Transfer.Retries
	if retries == 0 {
		retries = -1
	}
	return &transfer.Executor{
		Backend:    backend,
		Workers:    cfg.Performance.MaxWorkers,
		Verify:     cfg.Transfer.Verify,
		Checksum:   algo,
		Skip:       skip,
		Retries:    retries,
		RetryDelay: cfg.Transfer.RetryDelay,
		AbortAfter: cfg.Transfer.AbortAfter,
		Limiter:    ratelimit.NewLimiter(cfg.BandwidthLimit()),
		Logger:     log,
		Metrics:    m,
	}, nil
}

func newFormatter(cfg *config.Config) (output.Formatter, error) {
	return output.New(cfg.Output.Format)
}

// stdout returns the writer for formatter output
func stdout(cmd *cobra.Command) io.Writer {
	if globalFlags.Quiet {
		return io.Discard
	}
	return cmd.OutOrStdout()
}

// execution bundles what running a confirmed plan needs
type execution struct {
	cfg       *config.Config
	planner   *planner.Planner
	backend   storage.Backend
	formatter output.Formatter
	out       io.Writer
	logger    logging.Logger

	// save receives the plan once it is confirmed; empty disables
	save string
}

// run confirms and executes plan, then writes the failures report and metrics.
// Preflight happens only after confirmation so a declined plan writes nothing.
func (x *execution) run(ctx context.Context, plan *models.Plan, confirm planner.Confirmer) (*models.SyncReport, error) {
	m, err := metrics.New()
	if err != nil {
		return nil, err
	}
	exec, err := newExecutor(x.cfg, x.backend, x.logger, m)
	if err != nil {
		return nil, err
	}

	var preflightErr error
	confirmed := func(plan *models.Plan) bool {
		if !confirm(plan) {
			return false
		}
		if preflightErr = planner.Preflight(ctx, plan, x.backend); preflightErr != nil {
			return false
		}
		if x.save != "" {
			if err := planner.SaveArtifact(x.save, plan); err != nil {
				x.logger.Warn(ctx, "Failed to save plan artifact", logging.Fields{"path": x.save, "error": err.Error()})
			}
		}
		x.formatter.Start(x.out, plan, exec.Workers)
		return true
	}

	x.planner.OnOutcome = func(o models.TransferOutcome) { x.formatter.Outcome(o) }
	report, err := x.planner.ConfirmAndExecute(ctx, plan, confirmed, exec)
	if errors.Is(err, planner.ErrDeclined) && preflightErr != nil {
		return nil, preflightErr
	}
	if err != nil {
		return report, err
	}

	x.formatter.Complete(report)

	if path := x.cfg.Output.FailuresFile; path != "" {
		format := "human"
		if filepath.Ext(path) == ".json" {
			format = "json"
		}
		if err := output.WriteFailuresReport(path, format, plan, report); err != nil {
			x.logger.Warn(ctx, "Failed to write failures report", logging.Fields{"path": path, "error": err.Error()})
		}
	}
	if path, err := platform.LastRunPath(); err == nil {
		if err := planner.SaveSummary(path, planner.Summarize(plan, report)); err != nil {
			x.logger.Warn(ctx, "Failed to save run summary", logging.Fields{"error": err.Error()})
		}
	}
	if path := x.cfg.Metrics.Textfile; path != "" {
		if err := m.WriteTextfile(path); err != nil {
			x.logger.Warn(ctx, "Failed to write metrics", logging.Fields{"path": path, "error": err.Error()})
		}
	}
	return report, nil
}

// exitFor maps a finished report to the command result
func exitFor(report *models.SyncReport) error {
	if code := report.FinalState().ExitCode(); code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}
