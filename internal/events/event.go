// Package events emits tamper-evident audit events for published refreshes.
package events

import (
	"time"
)

const (
	// SchemaVersion is the version of the event document.
	SchemaVersion = "1.0"

	// EventTypeRefresh marks a published refresh.
	EventTypeRefresh = "enrollstat_refresh"
)

// RefreshEvent describes one published build.
type RefreshEvent struct {
	Version   string    `json:"version"`
	EventType string    `json:"event_type"`
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`

	Refresh  RefreshInfo         `json:"refresh"`
	Files    map[string]FileInfo `json:"files"`
	Producer ProducerInfo        `json:"producer"`
	Chain    ChainInfo           `json:"chain"`
}

// RefreshInfo identifies the build being audited.
type RefreshInfo struct {
	CurrentTerm   string `json:"current_term"`
	PreviousTerm  string `json:"previous_term"`
	BuildID       string `json:"build_id"`
	ReferenceDate string `json:"reference_date"`
	Fingerprint   string `json:"fingerprint"`
	Courses       int    `json:"courses"`
	Dates         int    `json:"dates"`
}

// FileInfo contains checksum and metadata for one published file.
type FileInfo struct {
	Checksum    string `json:"checksum"`
	RowCount    int64  `json:"row_count,omitempty"`
	StoragePath string `json:"storage_path"`
	ByteSize    int64  `json:"byte_size"`
}

// ProducerInfo identifies the software that produced the build.
type ProducerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	GitSHA  string `json:"git_sha,omitempty"`
}

// ChainInfo links an event to its predecessor.
type ChainInfo struct {
	PrevEventHash string `json:"prev_event_hash"`
	EventHash     string `json:"event_hash"`
}

// ChainKey returns the key of the chain this refresh belongs to.
func (r RefreshInfo) ChainKey() string {
	return r.CurrentTerm + "/" + r.PreviousTerm
}

// SetChainHashes links the event to prev and computes its own hash.
func (e *RefreshEvent) SetChainHashes(prev string) {
	e.Chain.PrevEventHash = prev
	e.Chain.EventHash = ComputeEventHash(e)
}
