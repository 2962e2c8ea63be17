package metadata

import (
	"context"
)

// CatalogConfig configures the refresh catalog. An empty Path disables it.
type CatalogConfig struct {
	Path string
}

// Writer records published refreshes.
type Writer interface {
	// RecordRefresh appends rec to the catalog, chaining it to the previous
	// record of the same term pair. The stored record is returned.
	RecordRefresh(ctx context.Context, rec RefreshRecord) (*RefreshRecord, error)

	// LastRefresh returns the newest record of a term pair, or nil.
	LastRefresh(ctx context.Context, currentTerm, previousTerm string) (*RefreshRecord, error)

	Close() error
}

// NewWriter opens the SQLite catalog at cfg.Path, or returns a no-op writer
// when no path is configured.
func NewWriter(cfg CatalogConfig) (Writer, error) {
	if cfg.Path == "" {
		return noopWriter{}, nil
	}
	return NewSQLiteWriter(cfg)
}

type noopWriter struct{}

func (noopWriter) RecordRefresh(_ context.Context, rec RefreshRecord) (*RefreshRecord, error) {
	return &rec, nil
}

func (noopWriter) LastRefresh(context.Context, string, string) (*RefreshRecord, error) {
	return nil, nil
}

func (noopWriter) Close() error { return nil }
