// Package checkpoint remembers the last good refresh of each term pair.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/withObsrvr/enrollstat/internal/term"
)

var (
	// ErrNoCheckpoint is returned when no checkpoint exists.
	ErrNoCheckpoint = errors.New("no checkpoint found")
)

// Checkpoint is the state of the last published refresh.
type Checkpoint struct {
	CurrentTerm   string    `json:"current_term"`
	PreviousTerm  string    `json:"previous_term"`
	BuildID       string    `json:"build_id"`
	BundleKey     string    `json:"bundle_key"`
	Fingerprint   string    `json:"fingerprint"`
	Checksum      string    `json:"checksum,omitempty"`
	ReferenceDate string    `json:"reference_date,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Pair returns the term pair the checkpoint belongs to.
func (cp *Checkpoint) Pair() (term.Pair, error) {
	cur, err := term.Parse(cp.CurrentTerm)
	if err != nil {
		return term.Pair{}, err
	}
	prev, err := term.Parse(cp.PreviousTerm)
	if err != nil {
		return term.Pair{}, err
	}
	return term.NewPair(cur, prev)
}

// Manager handles checkpoint persistence and retrieval.
type Manager interface {
	// Load reads the checkpoint of a term pair.
	Load(ctx context.Context, pair term.Pair) (*Checkpoint, error)

	// Save persists the checkpoint.
	Save(ctx context.Context, cp *Checkpoint) error
}

// Config configures the checkpoint manager.
type Config struct {
	Enabled bool
	Dir     string // Directory for checkpoint files
}

// NewManager creates a checkpoint manager based on configuration.
func NewManager(cfg Config) (Manager, error) {
	if !cfg.Enabled {
		return &noopManager{}, nil
	}

	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create checkpoint directory %s: %w", cfg.Dir, err)
	}

	return &fileManager{dir: cfg.Dir}, nil
}

// fileManager keeps one JSON file per term pair.
type fileManager struct {
	dir string
}

func (m *fileManager) checkpointPath(current, previous string) string {
	return filepath.Join(m.dir, fmt.Sprintf("checkpoint_%s_%s.json", current, previous))
}

// Load reads the checkpoint of pair from its file.
func (m *fileManager) Load(ctx context.Context, pair term.Pair) (*Checkpoint, error) {
	path := m.checkpointPath(pair.Current.String(), pair.Previous.String())

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoCheckpoint
		}
		return nil, fmt.Errorf("read checkpoint file: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("parse checkpoint file: %w", err)
	}
	return &cp, nil
}

// Save persists the checkpoint through a temp file and rename.
func (m *fileManager) Save(ctx context.Context, cp *Checkpoint) error {
	if cp.CurrentTerm == "" || cp.PreviousTerm == "" {
		return fmt.Errorf("checkpoint without term pair")
	}
	path := m.checkpointPath(cp.CurrentTerm, cp.PreviousTerm)

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("write checkpoint temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename checkpoint file: %w", err)
	}
	return nil
}

// noopManager is used when checkpointing is disabled.
type noopManager struct{}

func (m *noopManager) Load(ctx context.Context, pair term.Pair) (*Checkpoint, error) {
	return nil, ErrNoCheckpoint
}

func (m *noopManager) Save(ctx context.Context, cp *Checkpoint) error {
	return nil
}
