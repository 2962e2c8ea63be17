package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/withObsrvr/enrollstat/internal/term"
)

// LocalStore writes builds to the local filesystem.
type LocalStore struct {
	baseDir string
	prefix  string
}

// NewLocalStore creates a new local filesystem store.
func NewLocalStore(baseDir, prefix string) (*LocalStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create base directory %s: %w", baseDir, err)
	}

	return &LocalStore{
		baseDir: baseDir,
		prefix:  NormalizePrefix(prefix),
	}, nil
}

func (s *LocalStore) abs(key string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(key))
}

// writeFile writes data to key through a temp file + rename.
func (s *LocalStore) writeFile(key string, data []byte) error {
	path := s.abs(key)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tempPath := path + tempSuffix(uuid.New().String())
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("write temp file %s: %w", tempPath, err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename %s to %s: %w", tempPath, path, err)
	}
	return nil
}

func (s *LocalStore) readFile(key string) ([]byte, error) {
	data, err := os.ReadFile(s.abs(key))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// WriteObject writes one file of a build.
func (s *LocalStore) WriteObject(ctx context.Context, ref BundleRef, k Kind, data []byte) error {
	return s.writeFile(ref.Path(s.prefix, k), data)
}

// ReadObject reads one file of a build.
func (s *LocalStore) ReadObject(ctx context.Context, ref BundleRef, k Kind) ([]byte, error) {
	return s.readFile(ref.Path(s.prefix, k))
}

// WriteManifest writes a manifest file to the local filesystem.
func (s *LocalStore) WriteManifest(ctx context.Context, ref BundleRef, manifest *Manifest) error {
	data, err := manifest.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return s.writeFile(ref.ManifestPath(s.prefix), data)
}

// ReadManifest reads a build's manifest.
func (s *LocalStore) ReadManifest(ctx context.Context, ref BundleRef) (*Manifest, error) {
	data, err := s.readFile(ref.ManifestPath(s.prefix))
	if err != nil {
		return nil, err
	}
	return decodeManifest(data)
}

// Exists checks if a build's bundle has been published.
func (s *LocalStore) Exists(ctx context.Context, ref BundleRef) (bool, error) {
	_, err := os.Stat(s.abs(ref.Path(s.prefix, KindBundle)))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// SetLatest points the pair's LATEST at ref.
func (s *LocalStore) SetLatest(ctx context.Context, pair term.Pair, ref BundleRef) error {
	if ref.Term != pair.Current {
		return fmt.Errorf("build %s belongs to %s, not %s", ref.BuildID, ref.Term, pair.Current)
	}
	return s.writeFile(LatestPath(s.prefix, pair), []byte(ref.BuildID+"\n"))
}

// Latest returns the build the pair's LATEST points at.
func (s *LocalStore) Latest(ctx context.Context, pair term.Pair) (BundleRef, error) {
	data, err := s.readFile(LatestPath(s.prefix, pair))
	if err != nil {
		return BundleRef{}, err
	}
	return decodeLatest(pair, data)
}

// URI returns the canonical URI for the given key.
func (s *LocalStore) URI(key string) string {
	absPath, err := filepath.Abs(s.abs(key))
	if err != nil {
		absPath = s.abs(key)
	}
	return "file://" + filepath.ToSlash(absPath)
}

// Prefix returns the key prefix builds are written under.
func (s *LocalStore) Prefix() string {
	return s.prefix
}

// Close is a no-op for local storage.
func (s *LocalStore) Close() error {
	return nil
}

// --- AtomicStore implementation ---

// WriteTemp writes one file of a build next to its final path.
func (s *LocalStore) WriteTemp(ctx context.Context, ref BundleRef, k Kind, data []byte) (Staged, error) {
	tempKey := ref.Path(s.prefix, k) + tempSuffix(uuid.New().String())
	path := s.abs(tempKey)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return Staged{}, fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return Staged{}, fmt.Errorf("write temp file %s: %w", path, err)
	}
	return Staged{Kind: k, TempKey: tempKey}, nil
}

// Finalize renames staged files onto their final paths.
func (s *LocalStore) Finalize(ctx context.Context, ref BundleRef, staged []Staged) error {
	for i, st := range staged {
		finalPath := s.abs(ref.Path(s.prefix, st.Kind))
		if err := os.Rename(s.abs(st.TempKey), finalPath); err != nil {
			for _, done := range staged[:i] {
				os.Remove(s.abs(ref.Path(s.prefix, done.Kind)))
			}
			s.Abort(ctx, staged[i:])
			return fmt.Errorf("finalize %s: %w", st.TempKey, err)
		}
	}
	return nil
}

// Abort removes staged files without publishing.
func (s *LocalStore) Abort(ctx context.Context, staged []Staged) error {
	var lastErr error
	for _, st := range staged {
		if err := os.Remove(s.abs(st.TempKey)); err != nil && !os.IsNotExist(err) {
			lastErr = err
		}
	}
	return lastErr
}

// Head returns metadata about a stored object.
func (s *LocalStore) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	info, err := os.Stat(s.abs(key))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}
	return &ObjectInfo{
		Key:     key,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// List returns all keys with the given prefix, slash separated.
func (s *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.baseDir, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	return keys, nil
}

// Verify LocalStore implements AtomicStore.
var _ AtomicStore = (*LocalStore)(nil)
