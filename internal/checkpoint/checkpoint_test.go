package checkpoint

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/withObsrvr/enrollstat/internal/term"
)

func TestFileManagerRoundTrip(t *testing.T) {
	m, err := NewManager(Config{Enabled: true, Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	ctx := context.Background()
	pair := term.Pair{Current: term.MustParse("Spring2021"), Previous: term.MustParse("Spring2020")}

	if _, err := m.Load(ctx, pair); !errors.Is(err, ErrNoCheckpoint) {
		t.Fatalf("Load before Save error = %v, want ErrNoCheckpoint", err)
	}

	cp := &Checkpoint{
		CurrentTerm:  "Spring2021",
		PreviousTerm: "Spring2020",
		BuildID:      "b1",
		BundleKey:    "bundles/Spring2021/b1/bundle.json.zst",
		Fingerprint:  "fp",
		UpdatedAt:    time.Now().UTC(),
	}
	if err := m.Save(ctx, cp); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := m.Load(ctx, pair)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.BuildID != "b1" || got.Fingerprint != "fp" {
		t.Errorf("Load = %+v", got)
	}

	gotPair, err := got.Pair()
	if err != nil || gotPair != pair {
		t.Errorf("Pair() = %v, %v", gotPair, err)
	}

	other := term.Pair{Current: term.MustParse("Fall2021"), Previous: term.MustParse("Fall2020")}
	if _, err := m.Load(ctx, other); !errors.Is(err, ErrNoCheckpoint) {
		t.Errorf("Load of other pair error = %v, want ErrNoCheckpoint", err)
	}
}

func TestNoopManager(t *testing.T) {
	m, err := NewManager(Config{})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := m.Save(ctx, &Checkpoint{}); err != nil {
		t.Errorf("noop Save failed: %v", err)
	}
	if _, err := m.Load(ctx, term.Pair{}); !errors.Is(err, ErrNoCheckpoint) {
		t.Errorf("noop Load error = %v", err)
	}
}
