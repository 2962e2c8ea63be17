package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/withObsrvr/enrollstat/internal/checkpoint"
	"github.com/withObsrvr/enrollstat/internal/config"
	"github.com/withObsrvr/enrollstat/internal/events"
	"github.com/withObsrvr/enrollstat/internal/metadata"
	"github.com/withObsrvr/enrollstat/internal/metrics"
	"github.com/withObsrvr/enrollstat/internal/refresh"
	"github.com/withObsrvr/enrollstat/internal/source"
	"github.com/withObsrvr/enrollstat/internal/storage"
)

// app holds the wired collaborators shared by the commands.
type app struct {
	cfg       config.Config
	job       refresh.Job
	src       source.SnapshotSource
	store     storage.AtomicStore
	catalog   metadata.Writer
	events    events.Emitter
	metrics   *metrics.Metrics
	refresher *refresh.Refresher
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{cfg: cfg}

	job, err := refresh.JobFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.job = job

	if cfg.Metrics.Enabled {
		a.metrics = metrics.New(cfg.Metrics.Namespace)
	}

	src, err := source.New(ctx, cfg.SourceConfig())
	if err != nil {
		return nil, fmt.Errorf("create source: %w", err)
	}
	a.src = src

	store, err := storage.NewAtomicStore(ctx, cfg.StorageConfig())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create storage: %w", err)
	}
	a.store = store

	catalog, err := metadata.NewWriter(cfg.CatalogConfig())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	a.catalog = catalog

	cp, err := checkpoint.NewManager(cfg.CheckpointConfig())
	if err != nil {
		slog.Warn("failed to create checkpoint manager, running without one", "error", err)
		cp = nil
	}

	a.events = events.NewEmitter(cfg.EventsConfig())

	a.refresher = refresh.New(a.src, a.store, refresh.Options{
		Catalog:    a.catalog,
		Events:     a.events,
		Checkpoint: cp,
		Metrics:    a.metrics,
	})
	return a, nil
}

// Close releases every collaborator that was opened.
func (a *app) Close() error {
	var errs []error
	if a.events != nil {
		errs = append(errs, a.events.Close())
	}
	if a.catalog != nil {
		errs = append(errs, a.catalog.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.src != nil {
		errs = append(errs, a.src.Close())
	}
	return errors.Join(errs...)
}
