package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"gocloud.dev/blob"
	"golang.org/x/sync/errgroup"

	"github.com/withObsrvr/enrollstat/internal/enrollment"
	"github.com/withObsrvr/enrollstat/internal/logging"
	"github.com/withObsrvr/enrollstat/internal/term"
)

// BlobSource reads report files from any gocloud.dev bucket. The local, GCS
// and S3 sources are BlobSources over different drivers.
type BlobSource struct {
	bucket  *blob.Bucket
	prefix  string
	opts    Options
	decoder *Decoder
	log     *slog.Logger
}

// NewBlobSource wraps an open bucket. The source takes ownership of bucket.
func NewBlobSource(bucket *blob.Bucket, prefix string, opts Options, name string) (*BlobSource, error) {
	decoder, err := NewDecoder()
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 4
	}
	return &BlobSource{
		bucket:  bucket,
		prefix:  prefix,
		opts:    opts,
		decoder: decoder,
		log:     logging.Component("source:" + name),
	}, nil
}

// Index lists every object under the prefix, at any depth, and keeps the
// report files of t.
func (s *BlobSource) Index(ctx context.Context, t term.Term) (*Index, error) {
	index := NewIndex(t)

	iter := s.bucket.List(&blob.ListOptions{Prefix: s.prefix})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		if obj.IsDir {
			continue
		}

		f, ok := ParseSnapshotKey(obj.Key)
		if !ok {
			continue
		}
		f.Size = obj.Size
		f.ModTime = obj.ModTime
		if _, err := index.Add(f); err != nil {
			return nil, err
		}
	}

	return index, nil
}

// Load decodes every report file of t into a collection keyed by date.
func (s *BlobSource) Load(ctx context.Context, t term.Term) (enrollment.Collection, error) {
	index, err := s.Index(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}

	s.log.Info("indexed snapshot files", "term", t.String(), "count", index.Count(), "prefix", s.prefix)

	if index.Count() == 0 {
		return nil, fmt.Errorf("%w: %s under %q", ErrNoSnapshotFiles, t, s.prefix)
	}
	if s.opts.MaxSnapshots > 0 && index.Count() > s.opts.MaxSnapshots {
		return nil, fmt.Errorf("%w: %s has %d files, limit %d", ErrTooManySnapshots, t, index.Count(), s.opts.MaxSnapshots)
	}

	files := index.Files()
	snaps := make([]*enrollment.Snapshot, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			data, err := s.bucket.ReadAll(gctx, f.Key)
			if err != nil {
				return fmt.Errorf("read %s: %w", f.Key, err)
			}
			snap, err := s.decoder.Decode(f, data)
			if err != nil {
				return err
			}
			logging.FileLogger(s.log, f.Key).Debug("decoded snapshot",
				"date", f.Date.String(), "records", len(snap.Records))
			snaps[i] = snap
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	coll := make(enrollment.Collection, len(snaps))
	for _, snap := range snaps {
		coll[snap.Date] = snap
	}

	first, last := files[0].Date, files[len(files)-1].Date
	s.log.Info("loaded term", "term", t.String(), "snapshots", len(coll), "first", first.String(), "last", last.String())
	return coll, nil
}

// Close releases resources.
func (s *BlobSource) Close() error {
	if s.decoder != nil {
		s.decoder.Close()
	}
	if s.bucket != nil {
		return s.bucket.Close()
	}
	return nil
}

var _ SnapshotSource = (*BlobSource)(nil)
