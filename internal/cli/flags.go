package cli

import (
	"github.com/spf13/cobra"
)

// GlobalFlags holds global flag values
type GlobalFlags struct {
	ConfigFile string
	Verbose    bool
	Quiet      bool
}

var globalFlags GlobalFlags

// AddGlobalFlags adds global flags to the root command
func AddGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(
		&globalFlags.ConfigFile,
		"config",
		"",
		"config file (default is the platform config dir, e.g. ~/.config/syncplan/config.yaml)",
	)
	cmd.PersistentFlags().BoolVarP(
		&globalFlags.Verbose,
		"verbose",
		"v",
		false,
		"log at debug level to stderr",
	)
	cmd.PersistentFlags().BoolVarP(
		&globalFlags.Quiet,
		"quiet",
		"q",
		false,
		"suppress non-error output",
	)
}

// GetGlobalFlags returns the global flags
func GetGlobalFlags() *GlobalFlags {
	return &globalFlags
}

// FilterFlags select the files of a job
type FilterFlags struct {
	Profile     string
	Patterns    []string
	IncludeDirs []string
	TimeWindow  string
	MinSize     string
	MaxSize     string
}

// ExecFlags tune estimation and execution
type ExecFlags struct {
	Workers      int
	Verify       bool
	Checksum     string
	Skip         string
	Bandwidth    string
	Throughput   string
	Calibrate    bool
	Output       string
	FailuresFile string
	Yes          bool
	DryRun       bool
	LogFile      string
	LogLevel     string
}

func addFilterFlags(cmd *cobra.Command, f *FilterFlags) {
	cmd.Flags().StringVar(&f.Profile, "profile", "", "named profile from the config file")
	cmd.Flags().StringArrayVar(&f.Patterns, "pattern", nil, "glob pattern to match file names (repeatable)")
	cmd.Flags().StringArrayVar(&f.IncludeDirs, "include-dir", nil, "only match files under this relative directory (repeatable)")
	cmd.Flags().StringVar(&f.TimeWindow, "time", "", "modification time window: unlimited, 1h, today, or START..END")
	cmd.Flags().StringVar(&f.MinSize, "min-size", "", "minimum file size (e.g. 10K, 1M)")
	cmd.Flags().StringVar(&f.MaxSize, "max-size", "", "maximum file size (e.g. 2G, unlimited)")
}

func addEstimateFlags(cmd *cobra.Command, f *ExecFlags) {
	cmd.Flags().StringVar(&f.Throughput, "throughput", "", "assumed throughput for the estimate (e.g. 50M, 0 for unknown)")
	cmd.Flags().BoolVar(&f.Calibrate, "calibrate", false, "measure throughput with a short probe copy before estimating")
	cmd.Flags().StringVarP(&f.Output, "output", "o", "", "output format: auto, human, json, progress")
}

func addExecFlags(cmd *cobra.Command, f *ExecFlags) {
	cmd.Flags().IntVarP(&f.Workers, "workers", "w", 0, "number of parallel workers")
	cmd.Flags().BoolVar(&f.Verify, "verify", false, "verify each copy against a checksum")
	cmd.Flags().StringVar(&f.Checksum, "checksum", "", "checksum algorithm: sha256, md5")
	cmd.Flags().StringVar(&f.Skip, "skip", "", "skip unchanged files: never, size-modtime, checksum")
	cmd.Flags().StringVarP(&f.Bandwidth, "bwlimit", "b", "", "bandwidth limit (e.g. \"10M\", \"1G\")")
	cmd.Flags().StringVar(&f.FailuresFile, "failures-file", "", "write failed and unattempted files to this path")
	cmd.Flags().StringVar(&f.LogFile, "log-file", "", "log file (default in the state directory)")
	cmd.Flags().StringVar(&f.LogLevel, "log-level", "", "log level: debug, info, warn, error")
}
