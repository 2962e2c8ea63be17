package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/withObsrvr/enrollstat/internal/dashboard"
	"github.com/withObsrvr/enrollstat/internal/enrollment"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvConfigFile, "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	pair, err := cfg.Terms.Pair()
	if err != nil {
		t.Fatalf("Pair failed: %v", err)
	}
	if pair.String() != "Spring2021/Spring2020" {
		t.Errorf("pair = %s", pair)
	}
	ref, err := cfg.Terms.Reference()
	if err != nil || ref != enrollment.NewDate(2020, time.November, 30) {
		t.Errorf("reference = %v, %v", ref, err)
	}
	if cfg.Dashboard.Limit != 15 {
		t.Errorf("dashboard limit = %d, want 15", cfg.Dashboard.Limit)
	}
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := writeFile(t, "enrollstat.yaml", `
terms:
  current: Fall2022
  previous: Fall2021
  reference_date: "20220815"
  baseline: previous
storage:
  backend: mem
watcher:
  enabled: true
  interval: 30s
dashboard:
  limit: 5
  groups:
    - name: Core Lectures
      courses: [CHE1010, CHE1100]
`)
	t.Setenv("STORAGE_BACKEND", "local")
	t.Setenv("DASHBOARD_LIMIT", "8")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Terms.Current != "Fall2022" || cfg.Terms.Baseline != BaselinePrevious {
		t.Errorf("terms = %+v", cfg.Terms)
	}
	ref, err := cfg.Terms.Reference()
	if err != nil || ref != enrollment.NewDate(2022, time.August, 15) {
		t.Errorf("reference = %v, %v", ref, err)
	}
	if cfg.Storage.Backend != "local" {
		t.Errorf("env should override file, backend = %s", cfg.Storage.Backend)
	}
	if cfg.Dashboard.Limit != 8 {
		t.Errorf("limit = %d, want 8", cfg.Dashboard.Limit)
	}
	if cfg.Watcher.Interval != 30*time.Second {
		t.Errorf("interval = %v", cfg.Watcher.Interval)
	}
	if len(cfg.Dashboard.Groups) != 1 || len(cfg.Dashboard.Groups[0].Courses) != 2 {
		t.Errorf("groups = %+v", cfg.Dashboard.Groups)
	}
	// Unset sections keep their defaults.
	if cfg.Source.MaxSnapshots != 500 {
		t.Errorf("max snapshots = %d", cfg.Source.MaxSnapshots)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"same terms", func(c *Config) { c.Terms.Previous = c.Terms.Current }},
		{"previous after current", func(c *Config) { c.Terms.Previous = "Fall2021" }},
		{"bad season", func(c *Config) { c.Terms.Current = "Monsoon2021" }},
		{"bad reference date", func(c *Config) { c.Terms.ReferenceDate = "2020-13-01" }},
		{"missing reference date", func(c *Config) { c.Terms.ReferenceDate = "" }},
		{"unknown baseline", func(c *Config) { c.Terms.Baseline = "max" }},
		{"unknown source", func(c *Config) { c.Source.Mode = "ftp" }},
		{"unknown storage", func(c *Config) { c.Storage.Backend = "tape" }},
		{"zero watch interval", func(c *Config) { c.Watcher.Enabled = true; c.Watcher.Interval = 0 }},
		{"negative limit", func(c *Config) { c.Dashboard.Limit = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}

	if err := Defaults().Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestRenamesAndParams(t *testing.T) {
	path := writeFile(t, "renames.yaml", `
version: 2
from_term: Spring2020
to_term: Spring2021
renames:
  CHE3260: CHE4460
`)
	cfg := Defaults()
	cfg.Terms.RenameFile = path

	router, err := cfg.Renames()
	if err != nil {
		t.Fatalf("Renames failed: %v", err)
	}
	pair, params, err := cfg.Params(router)
	if err != nil {
		t.Fatalf("Params failed: %v", err)
	}
	if pair.Current.String() != "Spring2021" {
		t.Errorf("pair = %s", pair)
	}
	if params.Renames["CHE3260"] != "CHE4460" {
		t.Errorf("renames = %v", params.Renames)
	}
	if params.ReferenceDate != enrollment.NewDate(2020, time.November, 30) {
		t.Errorf("reference = %v", params.ReferenceDate)
	}

	cfg.Terms.RenameFile = ""
	router, err = cfg.Renames()
	if err != nil {
		t.Fatalf("empty Renames failed: %v", err)
	}
	if len(router.Table(pair)) != 0 {
		t.Error("no rename file should give an empty table")
	}
}

func TestDashboardConfig(t *testing.T) {
	cfg := Defaults()
	d := cfg.DashboardConfig()
	if d.Groups != nil || d.HeatmapExclude != nil {
		t.Errorf("defaults should leave groups to the dashboard package: %+v", d)
	}

	cfg.Dashboard.Groups = []GroupConfig{{Name: "Intro", Courses: []string{"CHE1010"}}}
	d = cfg.DashboardConfig()
	if len(d.Groups) != 1 || d.Groups[0].Name != "Intro" {
		t.Errorf("groups = %+v", d.Groups)
	}
}

func TestExampleConfigKeepsDefaultGroups(t *testing.T) {
	t.Setenv(EnvConfigFile, "")
	cfg, err := Load(filepath.Join("..", "..", "configs", "enrollstat.yaml"))
	if err != nil {
		t.Fatalf("Load example config failed: %v", err)
	}

	dash := dashboard.New(cfg.DashboardConfig())
	if _, err := dash.Group("criminalistics"); err != nil {
		t.Errorf("example config should keep the default groups: %v", err)
	}
	g, err := dash.Group("core-lectures")
	if err != nil {
		t.Fatalf("core lectures group: %v", err)
	}
	if g.Contains("CHE1011") || !g.Contains("CHE1800") {
		t.Errorf("core lectures = %v", g.Courses)
	}
}
