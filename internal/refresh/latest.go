package refresh

import (
	"context"
	"fmt"

	"github.com/withObsrvr/enrollstat/internal/bundle"
	"github.com/withObsrvr/enrollstat/internal/storage"
	"github.com/withObsrvr/enrollstat/internal/tables"
	"github.com/withObsrvr/enrollstat/internal/term"
)

// ReadBundle reads and decodes the bundle of a published build. When the
// build has a manifest, the bundle checksum is verified against it.
func ReadBundle(ctx context.Context, store storage.BundleStore, ref storage.BundleRef) (*bundle.Bundle, error) {
	data, err := store.ReadObject(ctx, ref, storage.KindBundle)
	if err != nil {
		return nil, fmt.Errorf("read bundle %s/%s: %w", ref.Term, ref.BuildID, err)
	}
	if m, err := store.ReadManifest(ctx, ref); err == nil {
		if f, ok := m.Files["bundle"]; ok {
			if err := tables.VerifyChecksum(data, f.Checksum); err != nil {
				return nil, fmt.Errorf("bundle %s/%s: %w", ref.Term, ref.BuildID, err)
			}
		}
	}
	b, err := bundle.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode bundle %s/%s: %w", ref.Term, ref.BuildID, err)
	}
	return b, nil
}

// LoadLatest returns the build a term pair's LATEST pointer names.
func LoadLatest(ctx context.Context, store storage.BundleStore, pair term.Pair) (*bundle.Bundle, storage.BundleRef, error) {
	ref, err := store.Latest(ctx, pair)
	if err != nil {
		return nil, storage.BundleRef{}, err
	}
	b, err := ReadBundle(ctx, store, ref)
	if err != nil {
		return nil, ref, err
	}
	return b, ref, nil
}
