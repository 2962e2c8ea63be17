package events

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testEvent(checksum string) RefreshEvent {
	return RefreshEvent{
		Version:   SchemaVersion,
		EventType: EventTypeRefresh,
		Timestamp: time.Date(2021, 1, 20, 0, 0, 0, 0, time.UTC),
		Refresh: RefreshInfo{
			CurrentTerm:   "Spring2021",
			PreviousTerm:  "Spring2020",
			BuildID:       "b1",
			ReferenceDate: "2021-01-20",
			Fingerprint:   "fp",
			Courses:       12,
			Dates:         3,
		},
		Files: map[string]FileInfo{
			"bundle.json.zst":  {Checksum: checksum, ByteSize: 100},
			"matrices.parquet": {Checksum: "sha256:pq", RowCount: 36, ByteSize: 900},
		},
		Producer: ProducerInfo{Name: "enrollstat", Version: "test"},
	}
}

func TestComputeEventHash(t *testing.T) {
	evt := testEvent("sha256:abc")
	evt.SetChainHashes("")

	if !strings.HasPrefix(evt.Chain.EventHash, "sha256:") {
		t.Errorf("EventHash should start with sha256:, got %s", evt.Chain.EventHash)
	}
	if evt.Chain.PrevEventHash != "" {
		t.Errorf("PrevEventHash should be empty for first in chain, got %s", evt.Chain.PrevEventHash)
	}
}

func TestHashChainDeterminism(t *testing.T) {
	a, b := testEvent("sha256:abc"), testEvent("sha256:abc")
	a.SetChainHashes("prev")
	b.SetChainHashes("prev")
	if a.Chain.EventHash != b.Chain.EventHash {
		t.Errorf("identical events hash differently: %s vs %s", a.Chain.EventHash, b.Chain.EventHash)
	}

	c := testEvent("sha256:abc")
	c.SetChainHashes("other")
	if c.Chain.EventHash == a.Chain.EventHash {
		t.Error("different prev hash should change event hash")
	}

	d := testEvent("sha256:tampered")
	d.SetChainHashes("prev")
	if d.Chain.EventHash == a.Chain.EventHash {
		t.Error("different content should change event hash")
	}
}

func TestChainKey(t *testing.T) {
	if got := testEvent("x").Refresh.ChainKey(); got != "Spring2021/Spring2020" {
		t.Errorf("ChainKey() = %s", got)
	}
}

func readLines(t *testing.T, path string) []RefreshEvent {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	var out []RefreshEvent
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var evt RefreshEvent
		if err := json.Unmarshal(sc.Bytes(), &evt); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		out = append(out, evt)
	}
	return out
}

func TestFileEmitterChainsEvents(t *testing.T) {
	dir := t.TempDir()
	em := NewEmitter(Config{Enabled: true, Dir: dir})
	defer em.Close()
	ctx := context.Background()

	first, err := em.EmitRefresh(ctx, testEvent("sha256:one"))
	if err != nil {
		t.Fatalf("EmitRefresh failed: %v", err)
	}
	second, err := em.EmitRefresh(ctx, testEvent("sha256:two"))
	if err != nil {
		t.Fatalf("EmitRefresh failed: %v", err)
	}

	if second.Chain.PrevEventHash != first.Chain.EventHash {
		t.Errorf("second prev = %s, want %s", second.Chain.PrevEventHash, first.Chain.EventHash)
	}

	lines := readLines(t, filepath.Join(dir, LogFileName))
	if len(lines) != 2 {
		t.Fatalf("log has %d lines, want 2", len(lines))
	}
	for _, evt := range lines {
		if ComputeEventHash(&evt) != evt.Chain.EventHash {
			t.Errorf("stored event %s does not verify", evt.EventID)
		}
	}

	// Chain heads survive a restart.
	ct, err := NewChainTracker(dir)
	if err != nil {
		t.Fatal(err)
	}
	head, err := ct.Head("Spring2021/Spring2020")
	if err != nil || head != second.Chain.EventHash {
		t.Errorf("Head = %s, %v", head, err)
	}
}

func TestHTTPEmitterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	em, err := NewHTTPEmitter(Config{Enabled: true, Endpoint: srv.URL, Dir: t.TempDir(), RetryDelay: time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	evt := testEvent("sha256:abc")
	if err := em.Emit(context.Background(), &evt); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("endpoint called %d times, want 2", calls.Load())
	}
}

func TestHTTPEmitterGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	dir := t.TempDir()
	em, err := NewHTTPEmitter(Config{Endpoint: srv.URL, Dir: dir, Retries: 2, RetryDelay: time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	evt := testEvent("sha256:abc")
	if err := em.Emit(context.Background(), &evt); err == nil {
		t.Fatal("Emit should fail when every attempt fails")
	}
	if _, err := em.chain.Head(evt.Refresh.ChainKey()); err == nil {
		t.Error("chain head should not advance after a failed post")
	}
}

func TestDisabledEmitter(t *testing.T) {
	em := NewEmitter(Config{})
	evt, err := em.EmitRefresh(context.Background(), testEvent("x"))
	if err != nil || evt == nil {
		t.Errorf("noop EmitRefresh = %v, %v", evt, err)
	}
}
