// Package metadata keeps the catalog of published refreshes.
package metadata

import (
	"encoding/json"
	"os"
	"time"
)

// RefreshRecord describes one published build.
type RefreshRecord struct {
	ID              int64     `json:"id,omitempty"`
	CurrentTerm     string    `json:"current_term"`
	PreviousTerm    string    `json:"previous_term"`
	BuildID         string    `json:"build_id"`
	ReferenceDate   string    `json:"reference_date"`
	RenameVersion   int       `json:"rename_version"`
	Fingerprint     string    `json:"fingerprint"`
	Checksum        string    `json:"checksum"`
	PrevChecksum    string    `json:"prev_checksum,omitempty"`
	StorageURI      string    `json:"storage_uri"`
	Courses         int       `json:"courses"`
	Dates           int       `json:"dates"`
	ProducerVersion string    `json:"producer_version"`
	CreatedAt       time.Time `json:"created_at"`
}

// WriteJSON writes the record to path as indented JSON.
func (r *RefreshRecord) WriteJSON(path string) error {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}
