package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/withObsrvr/enrollstat/internal/logging"
)

// LogFileName is the JSONL file events are appended to.
const LogFileName = "refresh-events.jsonl"

// FileLog appends events to a JSON-lines file.
type FileLog struct {
	mu   sync.Mutex
	path string
}

// NewFileLog creates dir if needed and returns a log writing into it.
func NewFileLog(dir string) (*FileLog, error) {
	if dir == "" {
		dir = "./events"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create event dir: %w", err)
	}
	return &FileLog{path: filepath.Join(dir, LogFileName)}, nil
}

// Path returns the file the log appends to.
func (f *FileLog) Path() string {
	return f.path
}

// Append writes evt as one line.
func (f *FileLog) Append(evt *RefreshEvent) error {
	line, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	line = append(line, '\n')

	f.mu.Lock()
	defer f.mu.Unlock()

	fh, err := os.OpenFile(f.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open %s: %w", f.path, err)
	}
	if _, err := fh.Write(line); err != nil {
		fh.Close()
		return fmt.Errorf("append %s: %w", f.path, err)
	}
	return fh.Close()
}

// FileEmitter writes events to the JSONL log only.
type FileEmitter struct {
	chain *ChainTracker
	log   *FileLog
	slog  *slog.Logger
}

// NewFileEmitter creates an emitter that keeps its log and chain heads in dir.
func NewFileEmitter(dir string) (*FileEmitter, error) {
	chain, err := NewChainTracker(dir)
	if err != nil {
		return nil, fmt.Errorf("create chain tracker: %w", err)
	}
	fl, err := NewFileLog(dir)
	if err != nil {
		return nil, err
	}
	return &FileEmitter{chain: chain, log: fl, slog: logging.Component("events")}, nil
}

// Emit chains evt to the previous event of its term pair and appends it.
func (e *FileEmitter) Emit(evt *RefreshEvent) error {
	key, err := link(e.chain, evt)
	if err != nil {
		return err
	}

	if err := e.log.Append(evt); err != nil {
		return err
	}

	e.slog.Info("emitted refresh event",
		"chain", key,
		"build_id", evt.Refresh.BuildID,
		"event_hash", evt.Chain.EventHash,
		"prev_event_hash", evt.Chain.PrevEventHash,
	)

	if err := e.chain.SetHead(key, evt.Chain.EventHash); err != nil {
		e.slog.Warn("failed to update chain head", "error", err)
	}
	return nil
}

// Close releases resources.
func (e *FileEmitter) Close() error {
	return nil
}
