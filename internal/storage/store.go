// Package storage publishes encoded bundles to a filesystem or object store.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/withObsrvr/enrollstat/internal/term"
)

// ErrNotFound is returned when a bundle object or LATEST pointer is missing.
var ErrNotFound = errors.New("object not found")

// Kind selects one of the files of a published build.
type Kind int

const (
	KindBundle Kind = iota
	KindParquet
	KindManifest
)

// FileName returns the file name of a kind within a build directory.
func (k Kind) FileName() string {
	switch k {
	case KindBundle:
		return "bundle.json.zst"
	case KindParquet:
		return "matrices.parquet"
	case KindManifest:
		return "_manifest.json"
	default:
		return fmt.Sprintf("kind-%d", int(k))
	}
}

// BundleRef locates one published build of a term.
type BundleRef struct {
	Term    term.Term
	BuildID string
}

// NormalizePrefix returns prefix with exactly one trailing slash, or "" when
// prefix is empty.
func NormalizePrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

// DirPath returns the directory path for this build.
func (r BundleRef) DirPath(prefix string) string {
	return fmt.Sprintf("%s%s/%s", NormalizePrefix(prefix), r.Term, r.BuildID)
}

// Path returns the storage key of one file of the build.
func (r BundleRef) Path(prefix string, k Kind) string {
	return r.DirPath(prefix) + "/" + k.FileName()
}

// ManifestPath returns the storage key of the build's manifest.
func (r BundleRef) ManifestPath(prefix string) string {
	return r.Path(prefix, KindManifest)
}

// LatestPath returns the key of the pointer naming the current build of a
// term pair. It sits in the current term's directory, one per previous term.
func LatestPath(prefix string, pair term.Pair) string {
	return fmt.Sprintf("%s%s/LATEST-%s", NormalizePrefix(prefix), pair.Current, pair.Previous)
}

// ParseBuildDir extracts the build id from a key inside a term directory.
func ParseBuildDir(prefix string, t term.Term, key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, fmt.Sprintf("%s%s/", NormalizePrefix(prefix), t))
	if !ok {
		return "", false
	}
	build, _, ok := strings.Cut(rest, "/")
	if !ok || build == "" {
		return "", false
	}
	return build, true
}

// Manifest describes the contents of a build directory.
type Manifest struct {
	Build     BuildInfo           `json:"build"`
	Files     map[string]FileInfo `json:"files"`
	Producer  ProducerInfo        `json:"producer"`
	CreatedAt time.Time           `json:"created_at"`
}

// BuildInfo describes what a build was computed from.
type BuildInfo struct {
	BuildID       string `json:"build_id"`
	CurrentTerm   string `json:"current_term"`
	PreviousTerm  string `json:"previous_term"`
	ReferenceDate string `json:"reference_date"`
	Fingerprint   string `json:"fingerprint"`
	Courses       int    `json:"courses"`
	Dates         int    `json:"dates"`
}

// FileInfo describes a single file in the build.
type FileInfo struct {
	File     string `json:"file"`
	Checksum string `json:"checksum"`
	RowCount int64  `json:"row_count,omitempty"`
	ByteSize int64  `json:"byte_size"`
}

// ProducerInfo describes the software that produced the build.
type ProducerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	GitSHA  string `json:"git_sha,omitempty"`
}

// MarshalJSON returns the manifest as JSON bytes.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	type Alias Manifest
	return json.MarshalIndent((*Alias)(m), "", "  ")
}

func decodeManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal manifest: %w", err)
	}
	return &m, nil
}

// BundleStore abstracts reading and writing published builds.
type BundleStore interface {
	// WriteObject writes one file of a build.
	WriteObject(ctx context.Context, ref BundleRef, k Kind, data []byte) error

	// ReadObject reads one file of a build.
	ReadObject(ctx context.Context, ref BundleRef, k Kind) ([]byte, error)

	// WriteManifest writes a manifest file to storage.
	WriteManifest(ctx context.Context, ref BundleRef, manifest *Manifest) error

	// ReadManifest reads a build's manifest.
	ReadManifest(ctx context.Context, ref BundleRef) (*Manifest, error)

	// Exists checks if a build's bundle has been published.
	Exists(ctx context.Context, ref BundleRef) (bool, error)

	// SetLatest points the pair's LATEST at ref, a build of pair.Current.
	SetLatest(ctx context.Context, pair term.Pair, ref BundleRef) error

	// Latest returns the build the pair's LATEST points at.
	Latest(ctx context.Context, pair term.Pair) (BundleRef, error)

	// URI returns the canonical URI for the given key.
	// For local: file:///path, GCS: gs://bucket/path, S3: s3://bucket/path
	URI(key string) string

	// Prefix returns the key prefix builds are written under.
	Prefix() string

	// Close releases any resources.
	Close() error
}

// Staged is a file written to a temporary key, waiting for Finalize.
type Staged struct {
	Kind    Kind
	TempKey string
}

// AtomicStore extends BundleStore with atomic publish capabilities.
// This is the preferred interface for production use.
type AtomicStore interface {
	BundleStore

	// WriteTemp writes one file of a build to a temporary location.
	WriteTemp(ctx context.Context, ref BundleRef, k Kind, data []byte) (Staged, error)

	// Finalize moves staged files to their canonical location.
	// For object stores this is copy+delete; for local filesystem it's rename.
	// If any file fails to finalize, all are rolled back.
	Finalize(ctx context.Context, ref BundleRef, staged []Staged) error

	// Abort removes staged files without publishing.
	Abort(ctx context.Context, staged []Staged) error

	// Head returns metadata about a stored object.
	Head(ctx context.Context, key string) (*ObjectInfo, error)

	// List returns all keys with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// ObjectInfo contains metadata about a stored object.
type ObjectInfo struct {
	Key     string
	Size    int64
	ETag    string // MD5 for S3/GCS, empty for local
	ModTime time.Time
}

// Config configures the storage backend.
type Config struct {
	Backend string // "local" | "gcs" | "s3" | "mem"

	// Local filesystem
	LocalDir string

	// GCS or S3 (also works for B2, R2, MinIO)
	Bucket   string
	Endpoint string
	Region   string

	// Common
	Prefix string // "bundles/" (path prefix within bucket or local dir)
}

// NewAtomicStore creates a storage backend based on configuration.
// All supported backends implement AtomicStore.
func NewAtomicStore(ctx context.Context, cfg Config) (AtomicStore, error) {
	switch cfg.Backend {
	case "local", "":
		if cfg.LocalDir == "" {
			return nil, fmt.Errorf("LocalDir required for local backend")
		}
		return NewLocalStore(cfg.LocalDir, cfg.Prefix)
	case "gcs":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("bucket required for gcs backend")
		}
		return NewGCSStore(ctx, cfg.Bucket, cfg.Prefix)
	case "s3":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("bucket required for s3 backend")
		}
		return NewS3Store(ctx, cfg.Bucket, cfg.Prefix, cfg.Endpoint, cfg.Region)
	case "mem":
		return NewMemStore(cfg.Prefix), nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}

func tempSuffix(id string) string {
	return ".tmp." + id
}

func decodeLatest(pair term.Pair, data []byte) (BundleRef, error) {
	build := strings.TrimSpace(string(data))
	if build == "" {
		return BundleRef{}, fmt.Errorf("%w: empty LATEST for %s", ErrNotFound, pair)
	}
	return BundleRef{Term: pair.Current, BuildID: build}, nil
}
