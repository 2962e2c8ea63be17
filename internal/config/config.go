// Package config loads enrollstat settings from the environment, optionally
// layered over a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/withObsrvr/enrollstat/internal/enrollment"
	"github.com/withObsrvr/enrollstat/internal/term"
)

// EnvConfigFile names the environment variable holding the YAML file path.
const EnvConfigFile = "ENROLLSTAT_CONFIG"

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Baseline strategies for the percent-of-capacity matrix.
const (
	BaselineReference = "reference"
	BaselinePrevious  = "previous"
)

type Config struct {
	Terms      TermsConfig      `yaml:"terms"`
	Source     SourceConfig     `yaml:"source"`
	Storage    StorageConfig    `yaml:"storage"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Events     EventsConfig     `yaml:"events"`
	Server     ServerConfig     `yaml:"server"`
	Watcher    WatcherConfig    `yaml:"watcher"`
	Dashboard  DashboardConfig  `yaml:"dashboard"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type TermsConfig struct {
	Current       string `yaml:"current"`
	Previous      string `yaml:"previous"`
	ReferenceDate string `yaml:"reference_date"` // YYYY-MM-DD or YYYYMMDD
	Baseline      string `yaml:"baseline"`       // "reference" | "previous"
	RenameFile    string `yaml:"rename_file"`
}

type SourceConfig struct {
	Mode         string `yaml:"mode"` // "local" | "gcs" | "s3"
	LocalDir     string `yaml:"local_dir"`
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	Endpoint     string `yaml:"endpoint"`
	Region       string `yaml:"region"`
	MaxSnapshots int    `yaml:"max_snapshots"`
	Concurrency  int    `yaml:"concurrency"`
}

type StorageConfig struct {
	Backend  string `yaml:"backend"`
	LocalDir string `yaml:"local_dir"`
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Endpoint string `yaml:"endpoint"`
	Region   string `yaml:"region"`
}

type CatalogConfig struct {
	Path string `yaml:"path"` // SQLite file; empty disables the catalog
}

type CheckpointConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

type EventsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Dir      string `yaml:"dir"`
}

type ServerConfig struct {
	Address      string        `yaml:"address"`
	Mode         string        `yaml:"mode"` // gin mode: "release" | "debug" | "test"
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type WatcherConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// GroupConfig is a named subset of courses shown as one series filter.
type GroupConfig struct {
	Name    string   `yaml:"name"`
	Courses []string `yaml:"courses"`
}

type DashboardConfig struct {
	Groups         []GroupConfig `yaml:"groups"`
	Limit          int           `yaml:"limit"`
	HeatmapExclude []string      `yaml:"heatmap_exclude"`
}

type LogConfig struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Terms: TermsConfig{
			Current:       "Spring2021",
			Previous:      "Spring2020",
			ReferenceDate: "2020-11-30",
			Baseline:      BaselineReference,
			RenameFile:    "configs/renames.yaml",
		},
		Source: SourceConfig{
			Mode:         "local",
			LocalDir:     "./data/reports",
			MaxSnapshots: 500,
			Concurrency:  4,
		},
		Storage: StorageConfig{
			Backend:  "local",
			LocalDir: "./data",
			Prefix:   "bundles/",
		},
		Checkpoint: CheckpointConfig{
			Dir: "./state",
		},
		Events: EventsConfig{
			Dir: "./state/events",
		},
		Server: ServerConfig{
			Address:      ":8080",
			Mode:         "release",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Watcher: WatcherConfig{
			Interval: 5 * time.Minute,
		},
		Dashboard: DashboardConfig{
			Limit: 15,
		},
		Log: LogConfig{
			Format: "text",
			Level:  "info",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "enrollstat",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file named by path
// (or ENROLLSTAT_CONFIG when path is empty), then environment variables.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Terms.Current = getenvDefault("CURRENT_TERM", cfg.Terms.Current)
	cfg.Terms.Previous = getenvDefault("PREVIOUS_TERM", cfg.Terms.Previous)
	cfg.Terms.ReferenceDate = getenvDefault("REFERENCE_DATE", cfg.Terms.ReferenceDate)
	cfg.Terms.Baseline = getenvDefault("CAPACITY_BASELINE", cfg.Terms.Baseline)
	cfg.Terms.RenameFile = getenvDefault("RENAME_FILE", cfg.Terms.RenameFile)

	cfg.Source.Mode = getenvDefault("SOURCE_MODE", cfg.Source.Mode)
	cfg.Source.LocalDir = getenvDefault("SOURCE_DIR", cfg.Source.LocalDir)
	cfg.Source.Bucket = getenvDefault("SOURCE_BUCKET", cfg.Source.Bucket)
	cfg.Source.Prefix = getenvDefault("SOURCE_PREFIX", cfg.Source.Prefix)
	cfg.Source.Endpoint = getenvDefault("SOURCE_ENDPOINT", cfg.Source.Endpoint)
	cfg.Source.Region = getenvDefault("SOURCE_REGION", cfg.Source.Region)
	cfg.Source.MaxSnapshots = getenvInt("MAX_SNAPSHOTS", cfg.Source.MaxSnapshots)
	cfg.Source.Concurrency = getenvInt("LOAD_CONCURRENCY", cfg.Source.Concurrency)

	cfg.Storage.Backend = getenvDefault("STORAGE_BACKEND", cfg.Storage.Backend)
	cfg.Storage.LocalDir = getenvDefault("LOCAL_DIR", cfg.Storage.LocalDir)
	cfg.Storage.Bucket = getenvDefault("STORAGE_BUCKET", cfg.Storage.Bucket)
	cfg.Storage.Prefix = getenvDefault("STORAGE_PREFIX", cfg.Storage.Prefix)
	cfg.Storage.Endpoint = getenvDefault("STORAGE_ENDPOINT", cfg.Storage.Endpoint)
	cfg.Storage.Region = getenvDefault("STORAGE_REGION", cfg.Storage.Region)

	cfg.Catalog.Path = getenvDefault("CATALOG_PATH", cfg.Catalog.Path)

	cfg.Checkpoint.Enabled = getenvBool("CHECKPOINT_ENABLED", cfg.Checkpoint.Enabled)
	cfg.Checkpoint.Dir = getenvDefault("CHECKPOINT_DIR", cfg.Checkpoint.Dir)

	cfg.Events.Enabled = getenvBool("EVENTS_ENABLED", cfg.Events.Enabled)
	cfg.Events.Endpoint = getenvDefault("EVENTS_ENDPOINT", cfg.Events.Endpoint)
	cfg.Events.Dir = getenvDefault("EVENTS_DIR", cfg.Events.Dir)

	cfg.Server.Address = getenvDefault("HTTP_ADDRESS", cfg.Server.Address)
	cfg.Server.Mode = getenvDefault("GIN_MODE", cfg.Server.Mode)

	cfg.Watcher.Enabled = getenvBool("WATCH_ENABLED", cfg.Watcher.Enabled)
	cfg.Watcher.Interval = getenvDuration("WATCH_INTERVAL", cfg.Watcher.Interval)

	cfg.Dashboard.Limit = getenvInt("DASHBOARD_LIMIT", cfg.Dashboard.Limit)

	cfg.Log.Format = getenvDefault("LOG_FORMAT", cfg.Log.Format)
	cfg.Log.Level = getenvDefault("LOG_LEVEL", cfg.Log.Level)

	cfg.Metrics.Enabled = getenvBool("METRICS_ENABLED", cfg.Metrics.Enabled)
}

// Validate checks the settings that every command depends on.
func (c Config) Validate() error {
	if _, err := c.Terms.Pair(); err != nil {
		return fmt.Errorf("%w: terms: %v", ErrInvalidConfig, err)
	}
	if _, err := c.Terms.Reference(); err != nil {
		return fmt.Errorf("%w: reference_date: %v", ErrInvalidConfig, err)
	}
	switch c.Terms.Baseline {
	case BaselineReference, BaselinePrevious:
	default:
		return fmt.Errorf("%w: unknown capacity baseline %q", ErrInvalidConfig, c.Terms.Baseline)
	}
	switch c.Source.Mode {
	case "local", "gcs", "s3":
	default:
		return fmt.Errorf("%w: unknown source mode %q", ErrInvalidConfig, c.Source.Mode)
	}
	switch c.Storage.Backend {
	case "local", "gcs", "s3", "mem":
	default:
		return fmt.Errorf("%w: unknown storage backend %q", ErrInvalidConfig, c.Storage.Backend)
	}
	if c.Watcher.Enabled && c.Watcher.Interval <= 0 {
		return fmt.Errorf("%w: watcher interval must be positive", ErrInvalidConfig)
	}
	if c.Dashboard.Limit < 0 {
		return fmt.Errorf("%w: dashboard limit must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Pair parses the configured term labels.
func (t TermsConfig) Pair() (term.Pair, error) {
	cur, err := term.Parse(t.Current)
	if err != nil {
		return term.Pair{}, err
	}
	var prev term.Term
	if t.Previous != "" {
		if prev, err = term.Parse(t.Previous); err != nil {
			return term.Pair{}, err
		}
	}
	return term.NewPair(cur, prev)
}

// Reference parses the reference date in either ISO or report-stamp form.
func (t TermsConfig) Reference() (enrollment.Date, error) {
	s := strings.TrimSpace(t.ReferenceDate)
	if s == "" {
		return enrollment.Date{}, errors.New("reference date is required")
	}
	if strings.Contains(s, "-") {
		return enrollment.ParseISODate(s)
	}
	return enrollment.ParseDate(s)
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}
