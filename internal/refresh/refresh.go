// Package refresh runs the enrollment pipeline over two loaded terms and
// publishes the result as a versioned bundle.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/withObsrvr/enrollstat/internal/bundle"
	"github.com/withObsrvr/enrollstat/internal/checkpoint"
	"github.com/withObsrvr/enrollstat/internal/enrollment"
	"github.com/withObsrvr/enrollstat/internal/events"
	"github.com/withObsrvr/enrollstat/internal/logging"
	"github.com/withObsrvr/enrollstat/internal/metadata"
	"github.com/withObsrvr/enrollstat/internal/metrics"
	"github.com/withObsrvr/enrollstat/internal/source"
	"github.com/withObsrvr/enrollstat/internal/storage"
	"github.com/withObsrvr/enrollstat/internal/tables"
	"github.com/withObsrvr/enrollstat/internal/term"
)

// Version information (set via ldflags)
var (
	Version = "v0.1.0"
	GitSHA  = "unknown"
)

// ProducerName identifies enrollstat in manifests, bundles and events.
const ProducerName = "enrollstat"

var (
	// ErrValidation is returned when a computed result fails its shape checks.
	ErrValidation = errors.New("result validation failed")

	// ErrInProgress is returned when another refresh is already running.
	ErrInProgress = errors.New("refresh already in progress")
)

// Options carries the optional collaborators of a Refresher. Nil fields fall
// back to no-op implementations.
type Options struct {
	Catalog    metadata.Writer
	Events     events.Emitter
	Checkpoint checkpoint.Manager
	Metrics    *metrics.Metrics
	Parquet    tables.ParquetConfig

	// StrictCatalog fails the refresh when the catalog write fails. The bundle
	// is already published at that point.
	StrictCatalog bool
	// StrictEvents does the same for event emission.
	StrictEvents bool
}

// Refresher loads, computes and publishes one term pair at a time.
type Refresher struct {
	src        source.SnapshotSource
	store      storage.AtomicStore
	meta       metadata.Writer
	events     events.Emitter
	checkpoint checkpoint.Manager
	metrics    *metrics.Metrics
	parquet    tables.ParquetConfig
	strictMeta bool
	strictEvts bool
	log        *slog.Logger

	mu sync.Mutex
}

// New creates a Refresher reading from src and publishing to store.
func New(src source.SnapshotSource, store storage.AtomicStore, opts Options) *Refresher {
	r := &Refresher{
		src:        src,
		store:      store,
		meta:       opts.Catalog,
		events:     opts.Events,
		checkpoint: opts.Checkpoint,
		metrics:    opts.Metrics,
		parquet:    opts.Parquet,
		strictMeta: opts.StrictCatalog,
		strictEvts: opts.StrictEvents,
		log:        logging.Component("refresh"),
	}
	if r.meta == nil {
		r.meta, _ = metadata.NewWriter(metadata.CatalogConfig{})
	}
	if r.events == nil {
		r.events = events.NewEmitter(events.Config{})
	}
	if r.checkpoint == nil {
		r.checkpoint, _ = checkpoint.NewManager(checkpoint.Config{})
	}
	if r.parquet.Compression == "" {
		r.parquet = tables.DefaultParquetConfig()
	}
	return r
}

// Job describes one refresh.
type Job struct {
	Pair          term.Pair
	Params        enrollment.Params
	RenameVersion int

	// Baseline selects the percent-of-capacity denominator: BaselineReference
	// (current term at Params.ReferenceDate) or BaselinePrevious (previous
	// term capacity).
	Baseline string

	// Force publishes even when the inputs match the last checkpoint.
	Force bool
}

// Baseline strategies.
const (
	BaselineReference = "reference"
	BaselinePrevious  = "previous"
)

// Outcome describes a finished refresh.
type Outcome struct {
	Status     string // metrics.ResultPublished or metrics.ResultSkipped
	Ref        storage.BundleRef
	Bundle     *bundle.Bundle
	Record     *metadata.RefreshRecord
	Validation ValidationResult
	Duration   time.Duration
}

// Run executes job. On any error before SetLatest the previously published
// bundle stays current.
func (r *Refresher) Run(ctx context.Context, job Job) (*Outcome, error) {
	if !r.mu.TryLock() {
		r.log.Warn("refresh requested while another is running", "pair", job.Pair.String())
		return nil, ErrInProgress
	}
	defer r.mu.Unlock()

	if err := job.Pair.Validate(); err != nil {
		return nil, err
	}

	correlationID := logging.GenerateCorrelationID()
	ctx = logging.WithCorrelationID(ctx, correlationID)
	log := logging.RefreshLogger(correlationID, job.Pair.Current.String(), job.Pair.Previous.String(),
		job.Params.ReferenceDate.String())
	labels := metrics.Labels{CurrentTerm: job.Pair.Current.String(), PreviousTerm: job.Pair.Previous.String()}

	start := time.Now()
	out, err := r.run(ctx, log, job)
	elapsed := time.Since(start)
	r.metrics.ObserveRefreshDuration(labels, elapsed)
	if err != nil {
		r.metrics.IncRefresh(labels, metrics.ResultFailed)
		log.Error("refresh failed", "error", err, "duration", elapsed)
		return nil, err
	}
	out.Duration = elapsed
	r.metrics.IncRefresh(labels, out.Status)
	log.Info("refresh finished",
		"status", out.Status,
		"build_id", out.Ref.BuildID,
		"duration", elapsed,
	)
	return out, nil
}

func (r *Refresher) run(ctx context.Context, log *slog.Logger, job Job) (*Outcome, error) {
	// Step 1: Load both terms
	stage := time.Now()
	current, previous, err := r.load(ctx, job.Pair)
	if err != nil {
		return nil, err
	}
	r.metrics.ObserveStage("load", time.Since(stage))
	log.Debug("loaded terms", "current_snapshots", len(current), "previous_snapshots", len(previous))

	in := enrollment.Input{Current: current, Previous: previous, Params: job.Params}
	if job.Baseline == BaselinePrevious {
		in.Params.Capacity = previousCapacity{previous: previous, renames: job.Params.Renames}
	}

	// Step 2: Idempotency check against the last good refresh
	fingerprint, err := bundle.Fingerprint(in, job.Pair, job.RenameVersion)
	if err != nil {
		return nil, err
	}
	if !job.Force {
		if out := r.reuse(ctx, log, job.Pair, fingerprint); out != nil {
			return out, nil
		}
	}

	// Step 3: Compute
	stage = time.Now()
	res, err := enrollment.Run(in)
	if err != nil {
		return nil, fmt.Errorf("compute: %w", err)
	}
	r.metrics.ObserveStage("compute", time.Since(stage))

	validation := ValidateResult(res)
	for _, w := range validation.Warnings {
		log.Warn("result validation warning", "warning", w)
	}
	if err := validation.Err(); err != nil {
		return nil, err
	}
	r.metrics.SetUnmatched("capacity", len(res.UnmatchedCapacity))
	r.metrics.SetUnmatched("previous", len(res.UnmatchedPrevious))

	// Step 4: Publish
	stage = time.Now()
	b := &bundle.Bundle{
		FormatVersion: bundle.FormatVersion,
		BuildID:       NewBuildID(time.Now()),
		Terms:         job.Pair,
		ReferenceDate: job.Params.ReferenceDate,
		RenameVersion: job.RenameVersion,
		Fingerprint:   fingerprint,
		CreatedAt:     time.Now().UTC(),
		Producer:      bundle.Producer{Name: ProducerName, Version: Version, GitSHA: GitSHA},
		Result:        res,
	}
	out, err := r.publish(ctx, log, b)
	if err != nil {
		return nil, err
	}
	out.Validation = validation
	r.metrics.ObserveStage("publish", time.Since(stage))
	return out, nil
}

// load reads both terms concurrently.
func (r *Refresher) load(ctx context.Context, pair term.Pair) (current, previous enrollment.Collection, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := r.src.Load(gctx, pair.Current)
		if err != nil {
			r.metrics.IncSourceErrors(pair.Current.String())
			return fmt.Errorf("load %s: %w", pair.Current, err)
		}
		r.metrics.SetSnapshotsLoaded(pair.Current.String(), len(c))
		current = c
		return nil
	})
	g.Go(func() error {
		c, err := r.src.Load(gctx, pair.Previous)
		if err != nil {
			r.metrics.IncSourceErrors(pair.Previous.String())
			return fmt.Errorf("load %s: %w", pair.Previous, err)
		}
		r.metrics.SetSnapshotsLoaded(pair.Previous.String(), len(c))
		previous = c
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return current, previous, nil
}

// reuse returns the already published bundle when the checkpoint says the
// inputs are unchanged. Any problem reading it back means a fresh publish.
func (r *Refresher) reuse(ctx context.Context, log *slog.Logger, pair term.Pair, fingerprint string) *Outcome {
	cp, err := r.checkpoint.Load(ctx, pair)
	if err != nil {
		if !errors.Is(err, checkpoint.ErrNoCheckpoint) {
			log.Warn("failed to load checkpoint", "error", err)
		}
		return nil
	}
	if cp.Fingerprint != fingerprint {
		return nil
	}

	ref := storage.BundleRef{Term: pair.Current, BuildID: cp.BuildID}
	if exists, err := r.store.Exists(ctx, ref); err != nil || !exists {
		log.Warn("checkpointed build missing from storage, republishing", "build_id", cp.BuildID, "error", err)
		return nil
	}
	b, err := ReadBundle(ctx, r.store, ref)
	if err != nil {
		log.Warn("failed to read checkpointed build, republishing", "build_id", cp.BuildID, "error", err)
		return nil
	}
	log.Info("skipping publish (inputs unchanged)", "build_id", cp.BuildID)
	return &Outcome{Status: metrics.ResultSkipped, Ref: ref, Bundle: b}
}

// publish is the transactional lifecycle for committing a build.
//
// The order of operations must not be changed:
//  1. Encode the bundle and parquet export in memory
//  2. Stage both files, then finalize them together
//  3. Write the manifest
//  4. Move LATEST (the build becomes visible to readers here)
//  5. Record the refresh in the catalog
//  6. Emit the audit event (references the immutable build)
//  7. Update the checkpoint
func (r *Refresher) publish(ctx context.Context, log *slog.Logger, b *bundle.Bundle) (*Outcome, error) {
	ref := storage.BundleRef{Term: b.Terms.Current, BuildID: b.BuildID}
	log = log.With("build_id", b.BuildID)
	res := b.Result

	// Step 1: Encode
	bundleData, err := bundle.Encode(b)
	if err != nil {
		return nil, fmt.Errorf("encode bundle: %w", err)
	}
	pq, err := tables.ToParquet(tables.ExtractResult(res), r.parquet)
	if err != nil {
		return nil, fmt.Errorf("generate parquet: %w", err)
	}
	if err := ValidateOutput(bundleData, pq).Err(); err != nil {
		return nil, err
	}
	bundleSum := tables.ComputeChecksum(bundleData)

	// Step 2: Stage and finalize
	files := []struct {
		kind storage.Kind
		data []byte
	}{
		{storage.KindBundle, bundleData},
		{storage.KindParquet, pq.Data},
	}
	staged := make([]storage.Staged, 0, len(files))
	for _, f := range files {
		s, err := r.store.WriteTemp(ctx, ref, f.kind, f.data)
		if err != nil {
			r.metrics.IncStorageErrors("write")
			r.abort(ctx, log, staged)
			return nil, fmt.Errorf("stage %s: %w", f.kind.FileName(), err)
		}
		staged = append(staged, s)
	}
	if err := r.store.Finalize(ctx, ref, staged); err != nil {
		r.metrics.IncStorageErrors("finalize")
		r.abort(ctx, log, staged)
		return nil, fmt.Errorf("finalize build: %w", err)
	}

	// Step 3: Manifest
	courses, dates := len(res.Enrollment.Courses), len(res.Enrollment.Dates)
	manifest := &storage.Manifest{
		Build: storage.BuildInfo{
			BuildID:       b.BuildID,
			CurrentTerm:   b.Terms.Current.String(),
			PreviousTerm:  b.Terms.Previous.String(),
			ReferenceDate: b.ReferenceDate.String(),
			Fingerprint:   b.Fingerprint,
			Courses:       courses,
			Dates:         dates,
		},
		Files: map[string]storage.FileInfo{
			"bundle": {
				File:     storage.KindBundle.FileName(),
				Checksum: bundleSum,
				ByteSize: int64(len(bundleData)),
			},
			"parquet": {
				File:     storage.KindParquet.FileName(),
				Checksum: pq.Checksum,
				RowCount: pq.RowCount,
				ByteSize: int64(len(pq.Data)),
			},
		},
		Producer: storage.ProducerInfo{
			Name:    ProducerName,
			Version: Version,
			GitSHA:  GitSHA,
		},
		CreatedAt: b.CreatedAt,
	}
	if err := r.store.WriteManifest(ctx, ref, manifest); err != nil {
		r.metrics.IncStorageErrors("manifest")
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	// Step 4: LATEST
	if err := r.store.SetLatest(ctx, b.Terms, ref); err != nil {
		r.metrics.IncStorageErrors("latest")
		return nil, fmt.Errorf("set latest: %w", err)
	}
	r.metrics.SetBundleBytes("bundle", len(bundleData))
	r.metrics.SetBundleBytes("parquet", len(pq.Data))
	log.Info("published build",
		"courses", courses,
		"dates", dates,
		"bundle_bytes", len(bundleData),
		"parquet_rows", pq.RowCount,
		"checksum", bundleSum,
	)

	// Step 5: Catalog
	prefix := r.store.Prefix()
	rec, err := r.meta.RecordRefresh(ctx, metadata.RefreshRecord{
		CurrentTerm:     b.Terms.Current.String(),
		PreviousTerm:    b.Terms.Previous.String(),
		BuildID:         b.BuildID,
		ReferenceDate:   b.ReferenceDate.String(),
		RenameVersion:   b.RenameVersion,
		Fingerprint:     b.Fingerprint,
		Checksum:        bundleSum,
		StorageURI:      r.store.URI(ref.DirPath(prefix)),
		Courses:         courses,
		Dates:           dates,
		ProducerVersion: fmt.Sprintf("%s@%s", ProducerName, Version),
		CreatedAt:       b.CreatedAt,
	})
	if err != nil {
		r.metrics.IncCatalogErrors()
		if r.strictMeta {
			return nil, fmt.Errorf("record refresh (strict mode): %w", err)
		}
		log.Warn("failed to record refresh", "error", err)
	}

	// Step 6: Event
	if _, err := r.events.EmitRefresh(ctx, events.RefreshEvent{
		Refresh: events.RefreshInfo{
			CurrentTerm:   b.Terms.Current.String(),
			PreviousTerm:  b.Terms.Previous.String(),
			BuildID:       b.BuildID,
			ReferenceDate: b.ReferenceDate.String(),
			Fingerprint:   b.Fingerprint,
			Courses:       courses,
			Dates:         dates,
		},
		Files: map[string]events.FileInfo{
			"bundle": {
				Checksum:    bundleSum,
				StoragePath: ref.Path(prefix, storage.KindBundle),
				ByteSize:    int64(len(bundleData)),
			},
			"parquet": {
				Checksum:    pq.Checksum,
				RowCount:    pq.RowCount,
				StoragePath: ref.Path(prefix, storage.KindParquet),
				ByteSize:    int64(len(pq.Data)),
			},
		},
		Producer: events.ProducerInfo{Name: ProducerName, Version: Version, GitSHA: GitSHA},
	}); err != nil {
		r.metrics.IncEventErrors()
		if r.strictEvts {
			return nil, fmt.Errorf("emit refresh event (strict mode): %w", err)
		}
		log.Warn("failed to emit refresh event", "error", err)
	}

	// Step 7: Checkpoint
	if err := r.checkpoint.Save(ctx, &checkpoint.Checkpoint{
		CurrentTerm:   b.Terms.Current.String(),
		PreviousTerm:  b.Terms.Previous.String(),
		BuildID:       b.BuildID,
		BundleKey:     ref.Path(prefix, storage.KindBundle),
		Fingerprint:   b.Fingerprint,
		Checksum:      bundleSum,
		ReferenceDate: b.ReferenceDate.String(),
		UpdatedAt:     time.Now().UTC(),
	}); err != nil {
		// The build is live; a stale checkpoint only costs a republish.
		log.Warn("failed to save checkpoint", "error", err)
	}

	r.metrics.SetPublished(metrics.Labels{
		CurrentTerm:  b.Terms.Current.String(),
		PreviousTerm: b.Terms.Previous.String(),
	}, courses, dates, b.CreatedAt)

	return &Outcome{Status: metrics.ResultPublished, Ref: ref, Bundle: b, Record: rec}, nil
}

func (r *Refresher) abort(ctx context.Context, log *slog.Logger, staged []storage.Staged) {
	if len(staged) == 0 {
		return
	}
	if err := r.store.Abort(ctx, staged); err != nil {
		log.Warn("failed to clean up staged files", "error", err)
	}
}

// NewBuildID returns a sortable, unique build id such as
// 20210120T153000Z-1a2b3c4d.
func NewBuildID(now time.Time) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return now.UTC().Format("20060102T150405Z") + "-" + id[:8]
}

// previousCapacity measures capacity against the previous term's max,
// taken from its earliest snapshot with legacy course codes renamed.
type previousCapacity struct {
	previous enrollment.Collection
	renames  enrollment.RenameTable
}

func (p previousCapacity) Baseline(enrollment.Collection) (enrollment.Baseline, error) {
	snap, err := enrollment.FirstSnapshot(p.previous)
	if err != nil {
		return nil, err
	}
	b, err := enrollment.CapacityBaseline(snap)
	if err != nil {
		return nil, err
	}
	return enrollment.Reconcile(b, p.renames), nil
}
