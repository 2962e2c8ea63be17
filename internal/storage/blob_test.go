package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestMemStoreFinalizeAndLatest(t *testing.T) {
	store := NewMemStore("bundles/")
	defer store.Close()
	ctx := context.Background()

	staged, err := store.WriteTemp(ctx, testRef, KindBundle, []byte("bundle"))
	if err != nil {
		t.Fatalf("WriteTemp failed: %v", err)
	}
	if err := store.WriteManifest(ctx, testRef, testManifest()); err != nil {
		t.Fatalf("WriteManifest failed: %v", err)
	}
	if err := store.Finalize(ctx, testRef, []Staged{staged}); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	keys, err := store.List(ctx, testRef.DirPath("bundles/"))
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	for _, k := range keys {
		if strings.Contains(k, ".tmp.") {
			t.Errorf("temp key left behind: %s", k)
		}
	}

	if err := store.SetLatest(ctx, testPair, testRef); err != nil {
		t.Fatalf("SetLatest failed: %v", err)
	}
	got, err := store.Latest(ctx, testPair)
	if err != nil || got != testRef {
		t.Errorf("Latest = %+v, %v", got, err)
	}

	info, err := store.Head(ctx, testRef.Path("bundles/", KindBundle))
	if err != nil || info.Size != int64(len("bundle")) {
		t.Errorf("Head = %+v, %v", info, err)
	}
	if uri := store.URI("k"); uri != "mem://memory/k" {
		t.Errorf("URI = %q", uri)
	}
}

func TestMemStoreNotFound(t *testing.T) {
	store := NewMemStore("")
	defer store.Close()
	ctx := context.Background()

	if _, err := store.ReadObject(ctx, testRef, KindBundle); !errors.Is(err, ErrNotFound) {
		t.Errorf("ReadObject error = %v, want ErrNotFound", err)
	}
	if _, err := store.Latest(ctx, testPair); !errors.Is(err, ErrNotFound) {
		t.Errorf("Latest error = %v, want ErrNotFound", err)
	}
	if err := store.Abort(ctx, []Staged{{Kind: KindBundle, TempKey: "missing"}}); err != nil {
		t.Errorf("Abort of missing key should be quiet, got %v", err)
	}
}

func TestNewAtomicStoreBackends(t *testing.T) {
	ctx := context.Background()
	if _, err := NewAtomicStore(ctx, Config{Backend: "local"}); err == nil {
		t.Error("local backend without LocalDir should fail")
	}
	if _, err := NewAtomicStore(ctx, Config{Backend: "tape"}); err == nil {
		t.Error("unknown backend should fail")
	}
	s, err := NewAtomicStore(ctx, Config{Backend: "mem", Prefix: "x/"})
	if err != nil {
		t.Fatalf("mem backend failed: %v", err)
	}
	defer s.Close()
	if s.Prefix() != "x/" {
		t.Errorf("Prefix = %q", s.Prefix())
	}
}
