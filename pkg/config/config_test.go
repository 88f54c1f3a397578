package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sdejongh/syncplan/pkg/models"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
	if cfg.Throughput() != 80*1024*1024 {
		t.Errorf("Throughput() = %v, want 80 MiB/s", cfg.Throughput())
	}
	if cfg.BandwidthLimit() != 0 {
		t.Errorf("BandwidthLimit() = %d, want unlimited", cfg.BandwidthLimit())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"workers", func(c *Config) { c.Performance.MaxWorkers = 0 }, "performance.max_workers"},
		{"bandwidth", func(c *Config) { c.Performance.BandwidthLimit = "fast" }, "performance.bandwidth_limit"},
		{"throughput", func(c *Config) { c.Performance.Throughput = "10X" }, "performance.throughput"},
		{"checksum", func(c *Config) { c.Transfer.Checksum = "crc32" }, "transfer.checksum"},
		{"skip policy", func(c *Config) { c.Transfer.SkipPolicy = "sometimes" }, "transfer.skip_policy"},
		{"retries", func(c *Config) { c.Transfer.Retries = -1 }, "transfer.retries"},
		{"output", func(c *Config) { c.Output.Format = "xml" }, "output.format"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"profile", func(c *Config) {
			c.Profiles = map[string]ProfileConfig{"bad": {Filter: FilterConfig{MinSize: "10M", MaxSize: "1M"}}}
		}, "size_range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			var cfgErr *models.ConfigError
			if err := cfg.Validate(); !errors.As(err, &cfgErr) || cfgErr.Field != tt.field {
				t.Errorf("Validate() error = %v, want field %q", err, tt.field)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
performance:
  max_workers: 8
  bandwidth_limit: 10M
transfer:
  verify: true
  checksum: md5
  retry_delay: 2s
profiles:
  photos:
    source: /home/me/Pictures
    destination: s3://bucket/photos
    filter:
      patterns: ["*.jpg", "*.png"]
      time_window: today
      max_size: 50M
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if cfg.Performance.MaxWorkers != 8 || cfg.BandwidthLimit() != 10<<20 {
		t.Errorf("performance = %+v", cfg.Performance)
	}
	if !cfg.Transfer.Verify || cfg.Transfer.Checksum != "md5" || cfg.Transfer.RetryDelay != 2*time.Second {
		t.Errorf("transfer = %+v", cfg.Transfer)
	}
	// unspecified keys keep their defaults
	if cfg.Transfer.SkipPolicy != "size-modtime" || cfg.Logging.Level != "info" {
		t.Errorf("defaults lost: %+v %+v", cfg.Transfer, cfg.Logging)
	}

	p, err := cfg.Profile("photos")
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if p.Destination != "s3://bucket/photos" || len(p.Filter.Patterns) != 2 {
		t.Errorf("profile = %+v", p)
	}
	if p.Filter.Time.Kind != models.WindowToday || p.Filter.Size.Max == nil || *p.Filter.Size.Max != 50<<20 {
		t.Errorf("profile filter = %+v", p.Filter)
	}

	if _, err := cfg.Profile("missing"); err == nil {
		t.Error("Profile(missing) should fail")
	}
}

func TestLoadFromFile_Invalid(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	os.WriteFile(bad, []byte("performance: [unterminated"), 0644)
	if _, err := LoadFromFile(bad); err == nil {
		t.Error("LoadFromFile(bad yaml) should fail")
	}

	invalid := filepath.Join(dir, "invalid.yaml")
	os.WriteFile(invalid, []byte("performance:\n  max_workers: 0\n"), 0644)
	if _, err := LoadFromFile(invalid); err == nil || !strings.Contains(err.Error(), "max_workers") {
		t.Errorf("LoadFromFile(invalid) error = %v", err)
	}
}

func TestSaveToFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Metrics.Textfile = "/var/lib/node_exporter/syncplan.prom"
	cfg.Profiles = map[string]ProfileConfig{"docs": {Source: "/a", Destination: "/b", Filter: FilterConfig{Patterns: []string{"*.pdf"}}}}

	if err := SaveToFile(cfg, path); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}
	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if loaded.Metrics.Textfile != cfg.Metrics.Textfile || loaded.Transfer.RetryDelay != cfg.Transfer.RetryDelay {
		t.Errorf("loaded = %+v", loaded)
	}
	if loaded.Profiles["docs"].Filter.Patterns[0] != "*.pdf" {
		t.Errorf("profiles = %+v", loaded.Profiles)
	}
}

func TestLoadDefault_Missing(t *testing.T) {
	t.Setenv("SYNCPLAN_CONFIG_DIR", t.TempDir())
	cfg, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault() error = %v", err)
	}
	if cfg.Performance.MaxWorkers != Default().Performance.MaxWorkers {
		t.Error("LoadDefault() should fall back to defaults")
	}
}
