// Package source locates dated enrollment report files for a term and decodes
// them into enrollment snapshots.
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/withObsrvr/enrollstat/internal/enrollment"
	"github.com/withObsrvr/enrollstat/internal/term"
)

var (
	// ErrInvalidSourceMode is returned for an unknown Config.Mode.
	ErrInvalidSourceMode = errors.New("invalid source mode")

	// ErrNoSnapshotFiles is returned when a term has no report files.
	ErrNoSnapshotFiles = errors.New("no snapshot files for term")

	// ErrTooManySnapshots is returned when a term has more files than
	// Options.MaxSnapshots allows.
	ErrTooManySnapshots = errors.New("too many snapshots for term")

	// ErrDuplicateSnapshot is returned when two files of a term carry the same date.
	ErrDuplicateSnapshot = errors.New("duplicate snapshot date")

	// ErrUnsupportedFormat is returned for a file extension the decoder cannot read.
	ErrUnsupportedFormat = errors.New("unsupported snapshot format")
)

// SnapshotSource finds and decodes the report files of a term.
type SnapshotSource interface {
	// Index lists the term's report files, oldest first.
	Index(ctx context.Context, t term.Term) (*Index, error)
	// Load decodes every report file of the term.
	Load(ctx context.Context, t term.Term) (enrollment.Collection, error)
	Close() error
}

// Options tune how a source loads a term.
type Options struct {
	// MaxSnapshots caps the number of files per term. 0 disables the cap.
	MaxSnapshots int
	// Concurrency bounds parallel file decoding. Values < 1 mean 4.
	Concurrency int
}

// DefaultMaxSnapshots is the per-term cap used when none is configured.
const DefaultMaxSnapshots = 500

// Config selects and configures a backend.
type Config struct {
	Mode     string // "local" | "gcs" | "s3"
	LocalDir string
	Bucket   string
	Prefix   string
	Endpoint string
	Region   string
	Options  Options
}

// New constructs a SnapshotSource for the configured mode.
func New(ctx context.Context, cfg Config) (SnapshotSource, error) {
	switch cfg.Mode {
	case "local", "":
		return NewLocalSource(cfg.LocalDir, cfg.Options)
	case "gcs":
		return NewGCSSource(ctx, cfg.Bucket, cfg.Prefix, cfg.Options)
	case "s3":
		return NewS3Source(ctx, cfg.Bucket, cfg.Prefix, cfg.Endpoint, cfg.Region, cfg.Options)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidSourceMode, cfg.Mode)
	}
}
