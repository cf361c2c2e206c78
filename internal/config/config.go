// ABOUTME: Configuration loading and parsing for coven-accumulator
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/2389/coven-accumulator/accumulator"
	"github.com/2389/coven-accumulator/cache"
)

// Config represents the complete coven-accumulator configuration
type Config struct {
	Accumulator AccumulatorConfig `yaml:"accumulator" toml:"accumulator"`
	Ingest      IngestConfig      `yaml:"ingest" toml:"ingest"`
	Journal     JournalConfig     `yaml:"journal" toml:"journal"`
	Logging     LoggingConfig     `yaml:"logging" toml:"logging"`
}

// AccumulatorConfig holds quorum and bound settings
type AccumulatorConfig struct {
	Quorum   int `yaml:"quorum" toml:"quorum"`
	Capacity int `yaml:"capacity" toml:"capacity"`
	Shards   int `yaml:"shards" toml:"shards"`

	Duration time.Duration          `yaml:"-" toml:"-"`
	Policy   accumulator.Policy     `yaml:"-" toml:"-"`
	Report   accumulator.ReportMode `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	DurationRaw string `yaml:"duration" toml:"duration"`
	PolicyRaw   string `yaml:"policy" toml:"policy"`
	ReportRaw   string `yaml:"report" toml:"report"`
}

// IngestConfig holds contribution replay filtering settings
type IngestConfig struct {
	DedupeWindow   time.Duration `yaml:"-" toml:"-"`
	DedupeCapacity int           `yaml:"dedupe_capacity" toml:"dedupe_capacity"`
	Workers        int           `yaml:"workers" toml:"workers"`

	DedupeWindowRaw string `yaml:"dedupe_window" toml:"dedupe_window"`
}

// JournalConfig holds the resolution journal settings
type JournalConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// DefaultYAML is written by the init command.
const DefaultYAML = `# coven-accumulator configuration

accumulator:
  quorum: 3
  # Set exactly one of capacity or duration.
  capacity: 10000
  # duration: "5m"
  policy: "multiset"   # multiset, distinct
  report: "every"      # every, crossing
  # With more than one ingest worker the capacity is split across shards and
  # each shard evicts on its own, so a shard can drop keys while the total is
  # below capacity. A single worker always uses one shard and exact LRU.
  shards: 16

ingest:
  dedupe_window: "10m"
  # dedupe_capacity: 100000  # used only when dedupe_window is unset
  workers: 4

journal:
  enabled: false
  path: "${HOME}/.local/share/coven/accumulator.db"

logging:
  level: "info"   # debug, info, warn, error
  format: "text"  # text, json
`

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseRaw(&cfg); err != nil {
		return nil, fmt.Errorf("parsing fields: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// WriteDefault writes DefaultYAML to path, creating parent directories.
// It refuses to overwrite an existing file.
func WriteDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("config file already exists: %s", path)
		}
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(DefaultYAML); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return f.Close()
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// parseRaw converts the raw string fields into typed values
func parseRaw(cfg *Config) error {
	var err error

	if cfg.Accumulator.DurationRaw != "" {
		cfg.Accumulator.Duration, err = time.ParseDuration(cfg.Accumulator.DurationRaw)
		if err != nil {
			return fmt.Errorf("parsing accumulator.duration %q: %w", cfg.Accumulator.DurationRaw, err)
		}
	}

	if cfg.Ingest.DedupeWindowRaw != "" {
		cfg.Ingest.DedupeWindow, err = time.ParseDuration(cfg.Ingest.DedupeWindowRaw)
		if err != nil {
			return fmt.Errorf("parsing ingest.dedupe_window %q: %w", cfg.Ingest.DedupeWindowRaw, err)
		}
	}

	cfg.Accumulator.Policy, err = accumulator.ParsePolicy(cfg.Accumulator.PolicyRaw)
	if err != nil {
		return fmt.Errorf("parsing accumulator.policy: %w", err)
	}

	cfg.Accumulator.Report, err = accumulator.ParseReportMode(cfg.Accumulator.ReportRaw)
	if err != nil {
		return fmt.Errorf("parsing accumulator.report: %w", err)
	}

	return nil
}

// Validate checks every configuration field and reports all problems found.
func (c *Config) Validate() error {
	var result *multierror.Error

	acc := c.Accumulator
	if acc.Quorum < 0 {
		result = multierror.Append(result, fmt.Errorf("accumulator.quorum must be non-negative, got %d", acc.Quorum))
	}
	if acc.Capacity < 0 {
		result = multierror.Append(result, fmt.Errorf("accumulator.capacity must be non-negative, got %d", acc.Capacity))
	}
	if acc.Duration < 0 {
		result = multierror.Append(result, fmt.Errorf("accumulator.duration must be positive, got %s", acc.Duration))
	}
	switch {
	case acc.Capacity > 0 && acc.Duration > 0:
		result = multierror.Append(result, fmt.Errorf("accumulator: set only one of capacity or duration"))
	case acc.Capacity == 0 && acc.Duration == 0:
		result = multierror.Append(result, fmt.Errorf("accumulator: one of capacity or duration is required"))
	}
	if acc.Shards < 0 {
		result = multierror.Append(result, fmt.Errorf("accumulator.shards must be non-negative, got %d", acc.Shards))
	}

	if c.Ingest.DedupeWindow < 0 {
		result = multierror.Append(result, fmt.Errorf("ingest.dedupe_window must be non-negative, got %s", c.Ingest.DedupeWindow))
	}
	if c.Ingest.DedupeCapacity < 0 {
		result = multierror.Append(result, fmt.Errorf("ingest.dedupe_capacity must be non-negative, got %d", c.Ingest.DedupeCapacity))
	}
	if c.Ingest.Workers < 0 {
		result = multierror.Append(result, fmt.Errorf("ingest.workers must be non-negative, got %d", c.Ingest.Workers))
	}

	if c.Journal.Enabled && c.Journal.Path == "" {
		result = multierror.Append(result, fmt.Errorf("journal.path is required when the journal is enabled"))
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		result = multierror.Append(result, fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		result = multierror.Append(result, fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format))
	}

	return result.ErrorOrNil()
}

// Bound returns the cache bound selected by the accumulator section.
func (a AccumulatorConfig) Bound() cache.Bound {
	if a.Duration > 0 {
		return cache.Duration(a.Duration)
	}
	return cache.Capacity(a.Capacity)
}

// ShardCount returns the number of accumulator shards to build. A single
// ingest worker needs no locking spread, so it gets one shard and the
// capacity keeps its exact least-recently-used meaning. Zero selects the
// sharded package default.
func (c *Config) ShardCount() int {
	if c.Ingest.Workers <= 1 {
		return 1
	}
	return c.Accumulator.Shards
}

// ToAccumulator converts the accumulator section into an accumulator.Config.
func (c *Config) ToAccumulator(logger *slog.Logger) accumulator.Config {
	return accumulator.Config{
		Quorum: c.Accumulator.Quorum,
		Bound:  c.Accumulator.Bound(),
		Policy: c.Accumulator.Policy,
		Report: c.Accumulator.Report,
		Logger: logger,
	}
}
