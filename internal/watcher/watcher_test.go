package watcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/withObsrvr/enrollstat/internal/refresh"
	"github.com/withObsrvr/enrollstat/internal/source"
	"github.com/withObsrvr/enrollstat/internal/term"
)

var pair = term.Pair{Current: term.MustParse("Spring2021"), Previous: term.MustParse("Spring2020")}

type fakeIndexer struct {
	mu    sync.Mutex
	files map[term.Term][]string
	err   error
}

func (f *fakeIndexer) add(t term.Term, key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[t] = append(f.files[t], key)
}

func (f *fakeIndexer) Index(ctx context.Context, t term.Term) (*source.Index, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	idx := source.NewIndex(t)
	for _, key := range f.files[t] {
		sf, ok := source.ParseSnapshotKey(key)
		if !ok {
			return nil, errors.New("bad key " + key)
		}
		if _, err := idx.Add(sf); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

func newFake() *fakeIndexer {
	return &fakeIndexer{files: map[term.Term][]string{
		pair.Current:  {"Spring2021_20201130.xlsx"},
		pair.Previous: {"Spring2020_20191125.xlsx"},
	}}
}

func TestPollTriggersOnChange(t *testing.T) {
	src := newFake()
	calls := 0
	w := New(src, pair, time.Minute, func(context.Context) error {
		calls++
		return nil
	})
	ctx := context.Background()

	if changed, err := w.Poll(ctx); err != nil || !changed {
		t.Fatalf("first poll = %v, %v; want a change", changed, err)
	}
	if changed, err := w.Poll(ctx); err != nil || changed {
		t.Fatalf("second poll = %v, %v; want no change", changed, err)
	}

	src.add(pair.Current, "Spring2021_20210110.csv.zst")
	if changed, err := w.Poll(ctx); err != nil || !changed {
		t.Fatalf("poll after new file = %v, %v; want a change", changed, err)
	}
	if calls != 2 {
		t.Errorf("trigger calls = %d, want 2", calls)
	}
}

func TestPollRetriesFailedTrigger(t *testing.T) {
	src := newFake()
	fail := true
	calls := 0
	w := New(src, pair, time.Minute, func(context.Context) error {
		calls++
		if fail {
			return errors.New("compute failed")
		}
		return nil
	})
	ctx := context.Background()

	if _, err := w.Poll(ctx); err == nil {
		t.Fatal("expected trigger error")
	}
	fail = false
	if changed, err := w.Poll(ctx); err != nil || !changed {
		t.Fatalf("retry poll = %v, %v", changed, err)
	}
	if calls != 2 {
		t.Errorf("trigger calls = %d, want 2", calls)
	}
}

func TestPollRetriesWhileRefreshBusy(t *testing.T) {
	src := newFake()
	busy := false
	calls := 0
	w := New(src, pair, time.Minute, func(context.Context) error {
		calls++
		if busy {
			return refresh.ErrInProgress
		}
		return nil
	})
	ctx := context.Background()

	if _, err := w.Poll(ctx); err != nil {
		t.Fatalf("first poll: %v", err)
	}

	// A new snapshot lands while another refresh holds the lock.
	src.add(pair.Current, "Spring2021_20210120.xlsx")
	busy = true
	if _, err := w.Poll(ctx); !errors.Is(err, refresh.ErrInProgress) {
		t.Fatalf("busy poll error = %v, want ErrInProgress", err)
	}

	busy = false
	if changed, err := w.Poll(ctx); err != nil || !changed {
		t.Fatalf("poll after busy = %v, %v; want the new file to trigger again", changed, err)
	}
	if calls != 3 {
		t.Errorf("trigger calls = %d, want 3", calls)
	}
}

func TestPollIndexError(t *testing.T) {
	src := newFake()
	src.err = source.ErrNoSnapshotFiles
	w := New(src, pair, time.Minute, func(context.Context) error {
		t.Error("trigger should not run")
		return nil
	})
	if _, err := w.Poll(context.Background()); !errors.Is(err, source.ErrNoSnapshotFiles) {
		t.Errorf("Poll error = %v, want ErrNoSnapshotFiles", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	src := newFake()
	triggered := make(chan struct{}, 10)
	w := New(src, pair, 10*time.Millisecond, func(context.Context) error {
		triggered <- struct{}{}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case <-triggered:
	case <-time.After(2 * time.Second):
		t.Fatal("first poll did not trigger")
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestRunRejectsZeroInterval(t *testing.T) {
	w := New(newFake(), pair, 0, func(context.Context) error { return nil })
	if err := w.Run(context.Background()); err == nil {
		t.Error("expected error for zero interval")
	}
}
