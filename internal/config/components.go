package config

import (
	"fmt"

	"github.com/withObsrvr/enrollstat/internal/checkpoint"
	"github.com/withObsrvr/enrollstat/internal/dashboard"
	"github.com/withObsrvr/enrollstat/internal/enrollment"
	"github.com/withObsrvr/enrollstat/internal/events"
	"github.com/withObsrvr/enrollstat/internal/logging"
	"github.com/withObsrvr/enrollstat/internal/metadata"
	"github.com/withObsrvr/enrollstat/internal/source"
	"github.com/withObsrvr/enrollstat/internal/storage"
	"github.com/withObsrvr/enrollstat/internal/term"
)

// SourceConfig returns the snapshot loader settings.
func (c Config) SourceConfig() source.Config {
	return source.Config{
		Mode:     c.Source.Mode,
		LocalDir: c.Source.LocalDir,
		Bucket:   c.Source.Bucket,
		Prefix:   c.Source.Prefix,
		Endpoint: c.Source.Endpoint,
		Region:   c.Source.Region,
		Options: source.Options{
			MaxSnapshots: c.Source.MaxSnapshots,
			Concurrency:  c.Source.Concurrency,
		},
	}
}

// StorageConfig returns the bundle store settings.
func (c Config) StorageConfig() storage.Config {
	return storage.Config{
		Backend:  c.Storage.Backend,
		LocalDir: c.Storage.LocalDir,
		Bucket:   c.Storage.Bucket,
		Endpoint: c.Storage.Endpoint,
		Region:   c.Storage.Region,
		Prefix:   c.Storage.Prefix,
	}
}

// CatalogConfig returns the refresh catalog settings.
func (c Config) CatalogConfig() metadata.CatalogConfig {
	return metadata.CatalogConfig{Path: c.Catalog.Path}
}

// CheckpointConfig returns the checkpoint manager settings.
func (c Config) CheckpointConfig() checkpoint.Config {
	return checkpoint.Config{Enabled: c.Checkpoint.Enabled, Dir: c.Checkpoint.Dir}
}

// EventsConfig returns the event emitter settings.
func (c Config) EventsConfig() events.Config {
	return events.Config{
		Enabled:  c.Events.Enabled,
		Endpoint: c.Events.Endpoint,
		Dir:      c.Events.Dir,
	}
}

// DashboardConfig returns the dashboard settings. Unset groups and
// exclusions take the dashboard defaults.
func (c Config) DashboardConfig() dashboard.Config {
	out := dashboard.Config{
		Limit:          c.Dashboard.Limit,
		HeatmapExclude: c.Dashboard.HeatmapExclude,
	}
	for _, g := range c.Dashboard.Groups {
		out.Groups = append(out.Groups, dashboard.Group{Name: g.Name, Courses: g.Courses})
	}
	return out
}

// LogConfig returns the logging settings.
func (c Config) LogConfig() logging.Config {
	return logging.Config{Format: c.Log.Format, Level: c.Log.Level}
}

// Renames loads the configured rename sets into a router. A missing
// rename_file yields an empty router.
func (c Config) Renames() (*term.Router, error) {
	if c.Terms.RenameFile == "" {
		return term.NewRouter(nil)
	}
	sets, err := term.LoadRenames(c.Terms.RenameFile)
	if err != nil {
		return nil, fmt.Errorf("load renames: %w", err)
	}
	return term.NewRouter(sets)
}

// Params assembles the pipeline parameters for the configured terms. The
// previous-enrollment strategy is resolved later, once the previous term is
// loaded.
func (c Config) Params(router *term.Router) (term.Pair, enrollment.Params, error) {
	pair, err := c.Terms.Pair()
	if err != nil {
		return term.Pair{}, enrollment.Params{}, err
	}
	ref, err := c.Terms.Reference()
	if err != nil {
		return term.Pair{}, enrollment.Params{}, err
	}
	return pair, enrollment.Params{
		ReferenceDate: ref,
		Renames:       router.Table(pair),
	}, nil
}
