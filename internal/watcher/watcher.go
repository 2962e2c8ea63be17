// Package watcher polls the report archive and triggers a refresh when the
// snapshot files of either term change.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/withObsrvr/enrollstat/internal/logging"
	"github.com/withObsrvr/enrollstat/internal/refresh"
	"github.com/withObsrvr/enrollstat/internal/source"
	"github.com/withObsrvr/enrollstat/internal/term"
)

// Indexer lists the report files of a term. source.SnapshotSource implements it.
type Indexer interface {
	Index(ctx context.Context, t term.Term) (*source.Index, error)
}

// TriggerFunc runs a refresh.
type TriggerFunc func(ctx context.Context) error

// Watcher compares the file sets of a term pair between polls.
type Watcher struct {
	src      Indexer
	pair     term.Pair
	interval time.Duration
	trigger  TriggerFunc
	log      *slog.Logger

	last string
}

// New creates a Watcher. The first poll always counts as a change.
func New(src Indexer, pair term.Pair, interval time.Duration, trigger TriggerFunc) *Watcher {
	return &Watcher{
		src:      src,
		pair:     pair,
		interval: interval,
		trigger:  trigger,
		log:      logging.Component("watcher"),
	}
}

// Fingerprint summarises the file sets of both terms.
func (w *Watcher) Fingerprint(ctx context.Context) (string, error) {
	cur, err := w.src.Index(ctx, w.pair.Current)
	if err != nil {
		return "", fmt.Errorf("index %s: %w", w.pair.Current, err)
	}
	prev, err := w.src.Index(ctx, w.pair.Previous)
	if err != nil {
		return "", fmt.Errorf("index %s: %w", w.pair.Previous, err)
	}
	return cur.Fingerprint() + ":" + prev.Fingerprint(), nil
}

// Poll checks the archive once and runs the trigger when the file sets
// changed. A failed or busy trigger is retried on the next poll.
func (w *Watcher) Poll(ctx context.Context) (bool, error) {
	fp, err := w.Fingerprint(ctx)
	if err != nil {
		return false, err
	}
	if fp == w.last {
		return false, nil
	}

	w.log.Info("snapshot files changed, refreshing", "pair", w.pair.String())
	if err := w.trigger(ctx); err != nil {
		return true, fmt.Errorf("refresh: %w", err)
	}
	w.last = fp
	return true, nil
}

// Run polls every interval until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if w.interval <= 0 {
		return errors.New("watch interval must be positive")
	}
	w.log.Info("watching for new snapshots", "pair", w.pair.String(), "interval", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.Poll(ctx); err != nil && ctx.Err() == nil {
			if errors.Is(err, refresh.ErrInProgress) {
				w.log.Debug("refresh already running, retrying next poll")
			} else {
				w.log.Warn("poll failed", "error", err)
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
