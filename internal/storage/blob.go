package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"gocloud.dev/blob"
	"gocloud.dev/blob/memblob"
	"gocloud.dev/gcerrors"

	"github.com/withObsrvr/enrollstat/internal/term"
)

// BlobStore writes builds to a gocloud.dev bucket. GCS, S3 and the in-memory
// store all share this implementation.
type BlobStore struct {
	bucket *blob.Bucket
	scheme string // "gs" | "s3" | "mem"
	name   string
	prefix string
}

// NewBlobStore wraps an open bucket. The store takes ownership of bucket.
func NewBlobStore(bucket *blob.Bucket, scheme, bucketName, prefix string) *BlobStore {
	return &BlobStore{
		bucket: bucket,
		scheme: scheme,
		name:   bucketName,
		prefix: NormalizePrefix(prefix),
	}
}

// NewMemStore returns a store backed by an in-memory bucket.
func NewMemStore(prefix string) *BlobStore {
	return NewBlobStore(memblob.OpenBucket(nil), "mem", "memory", prefix)
}

func notFound(err error) error {
	if gcerrors.Code(err) == gcerrors.NotFound {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}

// WriteObject writes one file of a build.
func (s *BlobStore) WriteObject(ctx context.Context, ref BundleRef, k Kind, data []byte) error {
	key := ref.Path(s.prefix, k)
	if err := s.bucket.WriteAll(ctx, key, data, nil); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// ReadObject reads one file of a build.
func (s *BlobStore) ReadObject(ctx context.Context, ref BundleRef, k Kind) ([]byte, error) {
	key := ref.Path(s.prefix, k)
	data, err := s.bucket.ReadAll(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, notFound(err))
	}
	return data, nil
}

// WriteManifest writes a manifest file to the bucket.
func (s *BlobStore) WriteManifest(ctx context.Context, ref BundleRef, manifest *Manifest) error {
	data, err := manifest.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return s.WriteObject(ctx, ref, KindManifest, data)
}

// ReadManifest reads a build's manifest.
func (s *BlobStore) ReadManifest(ctx context.Context, ref BundleRef) (*Manifest, error) {
	data, err := s.ReadObject(ctx, ref, KindManifest)
	if err != nil {
		return nil, err
	}
	return decodeManifest(data)
}

// Exists checks if a build's bundle has been published.
func (s *BlobStore) Exists(ctx context.Context, ref BundleRef) (bool, error) {
	return s.bucket.Exists(ctx, ref.Path(s.prefix, KindBundle))
}

// SetLatest points the pair's LATEST at ref. Single object writes are atomic
// on every supported bucket.
func (s *BlobStore) SetLatest(ctx context.Context, pair term.Pair, ref BundleRef) error {
	if ref.Term != pair.Current {
		return fmt.Errorf("build %s belongs to %s, not %s", ref.BuildID, ref.Term, pair.Current)
	}
	key := LatestPath(s.prefix, pair)
	if err := s.bucket.WriteAll(ctx, key, []byte(ref.BuildID+"\n"), nil); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// Latest returns the build the pair's LATEST points at.
func (s *BlobStore) Latest(ctx context.Context, pair term.Pair) (BundleRef, error) {
	key := LatestPath(s.prefix, pair)
	data, err := s.bucket.ReadAll(ctx, key)
	if err != nil {
		return BundleRef{}, fmt.Errorf("read %s: %w", key, notFound(err))
	}
	return decodeLatest(pair, data)
}

// URI returns the canonical URI for the given key.
func (s *BlobStore) URI(key string) string {
	return fmt.Sprintf("%s://%s/%s", s.scheme, s.name, key)
}

// Prefix returns the key prefix builds are written under.
func (s *BlobStore) Prefix() string {
	return s.prefix
}

// Close releases the bucket connection.
func (s *BlobStore) Close() error {
	if s.bucket != nil {
		return s.bucket.Close()
	}
	return nil
}

// --- AtomicStore implementation ---

// WriteTemp writes one file of a build to a temporary key.
func (s *BlobStore) WriteTemp(ctx context.Context, ref BundleRef, k Kind, data []byte) (Staged, error) {
	tempKey := ref.Path(s.prefix, k) + tempSuffix(uuid.New().String())
	if err := s.bucket.WriteAll(ctx, tempKey, data, nil); err != nil {
		return Staged{}, fmt.Errorf("write %s: %w", tempKey, err)
	}
	return Staged{Kind: k, TempKey: tempKey}, nil
}

// Finalize copies staged files to their canonical keys, then deletes the
// temporaries.
func (s *BlobStore) Finalize(ctx context.Context, ref BundleRef, staged []Staged) error {
	for i, st := range staged {
		finalKey := ref.Path(s.prefix, st.Kind)
		if err := s.bucket.Copy(ctx, finalKey, st.TempKey, nil); err != nil {
			// Rollback: delete any copied objects
			for _, done := range staged[:i] {
				s.bucket.Delete(ctx, ref.Path(s.prefix, done.Kind))
			}
			s.Abort(ctx, staged)
			return fmt.Errorf("finalize %s -> %s: %w", st.TempKey, finalKey, err)
		}
	}

	for _, st := range staged {
		s.bucket.Delete(ctx, st.TempKey) // ignore errors
	}
	return nil
}

// Abort removes staged files without publishing.
func (s *BlobStore) Abort(ctx context.Context, staged []Staged) error {
	var lastErr error
	for _, st := range staged {
		if err := s.bucket.Delete(ctx, st.TempKey); err != nil && gcerrors.Code(err) != gcerrors.NotFound {
			lastErr = err
		}
	}
	return lastErr
}

// Head returns metadata about a stored object.
func (s *BlobStore) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	attrs, err := s.bucket.Attributes(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get attributes for %s: %w", key, notFound(err))
	}

	return &ObjectInfo{
		Key:     key,
		Size:    attrs.Size,
		ETag:    attrs.ETag,
		ModTime: attrs.ModTime,
	}, nil
}

// List returns all keys with the given prefix.
func (s *BlobStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	iter := s.bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		if obj.IsDir {
			continue
		}
		keys = append(keys, obj.Key)
	}

	return keys, nil
}

// Verify BlobStore implements AtomicStore.
var _ AtomicStore = (*BlobStore)(nil)
