// Package config holds the YAML configuration of syncplan and its named profiles.
package config

import (
	"fmt"
	"time"

	"github.com/sdejongh/syncplan/pkg/compare"
	"github.com/sdejongh/syncplan/pkg/filter"
	"github.com/sdejongh/syncplan/pkg/models"
)

// Config represents the application configuration
type Config struct {
	Performance PerformanceConfig        `yaml:"performance"`
	Transfer    TransferConfig           `yaml:"transfer"`
	Replay      ReplayConfig             `yaml:"replay"`
	Output      OutputConfig             `yaml:"output"`
	Logging     LoggingConfig            `yaml:"logging"`
	Metrics     MetricsConfig            `yaml:"metrics"`
	S3          S3Config                 `yaml:"s3"`
	SFTP        SFTPConfig               `yaml:"sftp"`
	Profiles    map[string]ProfileConfig `yaml:"profiles,omitempty"`
}

// PerformanceConfig holds performance-related settings.
// Sizes accept 1024-based suffixes such as 10M or 2G.
type PerformanceConfig struct {
	MaxWorkers     int    `yaml:"max_workers"`
	BandwidthLimit string `yaml:"bandwidth_limit"` // "unlimited" or bytes/sec
	Throughput     string `yaml:"throughput"`      // assumed bytes/sec for estimates
}

// TransferConfig holds per-file transfer settings
type TransferConfig struct {
	Verify         bool          `yaml:"verify"`
	Checksum       string        `yaml:"checksum"`    // "sha256" or "md5"
	SkipPolicy     string        `yaml:"skip_policy"` // "never", "size-modtime" or "checksum"
	Retries        int           `yaml:"retries"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	AbortAfter     int           `yaml:"abort_after"`
	MtimeTolerance time.Duration `yaml:"mtime_tolerance"`
}

// ReplayConfig holds fast-mode settings
type ReplayConfig struct {
	StaleTolerance time.Duration `yaml:"stale_tolerance"`
}

// OutputConfig holds output-related settings
type OutputConfig struct {
	Format       string `yaml:"format"`        // "auto", "human", "json" or "progress"
	FailuresFile string `yaml:"failures_file"` // written after a run with failures (empty = none)
}

// LoggingConfig holds logging-related settings
type LoggingConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Format     string `yaml:"format"` // "json" or "text"
	Level      string `yaml:"level"`  // "debug", "info", "warn", "error"
	File       string `yaml:"file"`   // Log file path (empty = state directory)
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// MetricsConfig holds metrics export settings
type MetricsConfig struct {
	// Textfile is written in prometheus text format after each run (empty = disabled)
	Textfile string `yaml:"textfile"`
}

// S3Config holds object-store client settings
type S3Config struct {
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

// SFTPConfig holds remote-copy connection settings
type SFTPConfig struct {
	KeyFile    string        `yaml:"key_file"`
	KnownHosts string        `yaml:"known_hosts"`
	Insecure   bool          `yaml:"insecure"`
	Timeout    time.Duration `yaml:"timeout"`
}

// ProfileConfig is a named source/destination pair with its filter
type ProfileConfig struct {
	Source      string       `yaml:"source"`
	Destination string       `yaml:"destination"`
	Filter      FilterConfig `yaml:"filter"`
}

// FilterConfig is the textual form of a filter spec
type FilterConfig struct {
	Patterns    []string `yaml:"patterns,omitempty"`
	IncludeDirs []string `yaml:"include_dirs,omitempty"`
	TimeWindow  string   `yaml:"time_window,omitempty"` // "unlimited", "1h", "today" or "START..END"
	MinSize     string   `yaml:"min_size,omitempty"`
	MaxSize     string   `yaml:"max_size,omitempty"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Performance: PerformanceConfig{
			MaxWorkers:     4,
			BandwidthLimit: "unlimited",
			Throughput:     "80M",
		},
		Transfer: TransferConfig{
			Verify:         false,
			Checksum:       string(compare.SHA256),
			SkipPolicy:     string(compare.PolicySizeModTime),
			Retries:        3,
			RetryDelay:     500 * time.Millisecond,
			AbortAfter:     3,
			MtimeTolerance: compare.DefaultModTimeTolerance,
		},
		Replay: ReplayConfig{
			StaleTolerance: time.Second,
		},
		Output: OutputConfig{
			Format: "auto",
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Format:     "json",
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		SFTP: SFTPConfig{
			Timeout: 30 * time.Second,
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Performance.MaxWorkers < 1 {
		return &models.ConfigError{Field: "performance.max_workers", Message: "must be at least 1"}
	}
	if _, err := filter.ParseBytes(c.Performance.BandwidthLimit); err != nil {
		return &models.ConfigError{Field: "performance.bandwidth_limit", Message: err.Error()}
	}
	if _, err := filter.ParseBytes(c.Performance.Throughput); err != nil {
		return &models.ConfigError{Field: "performance.throughput", Message: err.Error()}
	}

	if _, err := compare.ParseAlgorithm(c.Transfer.Checksum); err != nil {
		return &models.ConfigError{Field: "transfer.checksum", Message: "must be 'sha256' or 'md5'"}
	}
	if _, err := compare.New(compare.Policy(c.Transfer.SkipPolicy), compare.SHA256, 0); err != nil {
		return &models.ConfigError{Field: "transfer.skip_policy", Message: "must be 'never', 'size-modtime' or 'checksum'"}
	}
	if c.Transfer.Retries < 0 {
		return &models.ConfigError{Field: "transfer.retries", Message: "must not be negative"}
	}
	if c.Transfer.RetryDelay < 0 || c.Transfer.MtimeTolerance < 0 || c.Replay.StaleTolerance < 0 {
		return &models.ConfigError{Field: "transfer", Message: "durations must not be negative"}
	}

	validFormats := map[string]bool{"auto": true, "human": true, "json": true, "progress": true}
	if !validFormats[c.Output.Format] {
		return &models.ConfigError{Field: "output.format", Message: "must be 'auto', 'human', 'json' or 'progress'"}
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return &models.ConfigError{Field: "logging.format", Message: "must be 'json' or 'text'"}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return &models.ConfigError{Field: "logging.level", Message: "must be 'debug', 'info', 'warn', or 'error'"}
	}

	for name, p := range c.Profiles {
		if _, err := p.Filter.Spec(time.Local); err != nil {
			return fmt.Errorf("profile %s: %w", name, err)
		}
	}
	return nil
}

// BandwidthLimit returns the configured limit in bytes/sec (0 = unlimited)
func (c *Config) BandwidthLimit() int64 {
	v, _ := filter.ParseBytes(c.Performance.BandwidthLimit)
	return v
}

// Throughput returns the configured estimate throughput in bytes/sec
func (c *Config) Throughput() float64 {
	v, _ := filter.ParseBytes(c.Performance.Throughput)
	return float64(v)
}

// Profile returns the named profile as a models.Profile
func (c *Config) Profile(name string) (models.Profile, error) {
	p, ok := c.Profiles[name]
	if !ok {
		return models.Profile{}, &models.ConfigError{Field: "profile", Message: "unknown profile " + name}
	}
	spec, err := p.Filter.Spec(time.Local)
	if err != nil {
		return models.Profile{}, err
	}
	return models.Profile{Name: name, Source: p.Source, Destination: p.Destination, Filter: spec}, nil
}

// Spec parses the textual filter into a FilterSpec
func (f FilterConfig) Spec(loc *time.Location) (models.FilterSpec, error) {
	spec := models.FilterSpec{
		Patterns:    f.Patterns,
		IncludeDirs: f.IncludeDirs,
	}

	var err error
	if spec.Time, err = filter.ParseTimeWindow(f.TimeWindow, loc); err != nil {
		return models.FilterSpec{}, err
	}
	if spec.Size.Min, err = filter.ParseSizeBound(f.MinSize); err != nil {
		return models.FilterSpec{}, &models.ConfigError{Field: "min_size", Message: err.Error()}
	}
	if spec.Size.Max, err = filter.ParseSizeBound(f.MaxSize); err != nil {
		return models.FilterSpec{}, &models.ConfigError{Field: "max_size", Message: err.Error()}
	}
	if err := spec.Validate(); err != nil {
		return models.FilterSpec{}, err
	}
	return spec, nil
}
