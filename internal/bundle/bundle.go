// Package bundle serialises a pipeline result together with the metadata of
// the refresh that produced it.
package bundle

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/withObsrvr/enrollstat/internal/enrollment"
	"github.com/withObsrvr/enrollstat/internal/term"
)

// FormatVersion is bumped on incompatible changes to the encoded bundle.
const FormatVersion = 1

// ErrFormatVersion is returned when decoding a bundle of another format version.
var ErrFormatVersion = errors.New("unsupported bundle format version")

// Producer identifies the build that wrote a bundle.
type Producer struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	GitSHA  string `json:"git_sha,omitempty"`
}

// Bundle is a precomputed pipeline result ready to be served.
type Bundle struct {
	FormatVersion int             `json:"format_version"`
	BuildID       string          `json:"build_id"`
	Terms         term.Pair       `json:"terms"`
	ReferenceDate enrollment.Date `json:"reference_date"`
	RenameVersion int             `json:"rename_version,omitempty"`
	Fingerprint   string          `json:"fingerprint"`
	CreatedAt     time.Time       `json:"created_at"`
	Producer      Producer        `json:"producer"`

	Result *enrollment.Result `json:"result"`
}

var (
	codecOnce sync.Once
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	codecErr  error
)

func codecs() (*zstd.Encoder, *zstd.Decoder, error) {
	codecOnce.Do(func() {
		encoder, codecErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
		if codecErr != nil {
			return
		}
		decoder, codecErr = zstd.NewReader(nil)
	})
	return encoder, decoder, codecErr
}

// Encode serialises b as zstd-compressed JSON.
func Encode(b *Bundle) ([]byte, error) {
	enc, _, err := codecs()
	if err != nil {
		return nil, fmt.Errorf("create zstd codec: %w", err)
	}
	if b.FormatVersion == 0 {
		b.FormatVersion = FormatVersion
	}
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("marshal bundle: %w", err)
	}
	return enc.EncodeAll(raw, nil), nil
}

// Decode is the inverse of Encode.
func Decode(data []byte) (*Bundle, error) {
	_, dec, err := codecs()
	if err != nil {
		return nil, fmt.Errorf("create zstd codec: %w", err)
	}
	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	var head struct {
		FormatVersion int `json:"format_version"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("unmarshal bundle: %w", err)
	}
	if head.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrFormatVersion, head.FormatVersion)
	}
	var b Bundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("unmarshal bundle: %w", err)
	}
	if b.Result == nil {
		return nil, errors.New("bundle has no result")
	}
	return &b, nil
}

// Fingerprint hashes everything a pipeline run depends on: both terms'
// snapshots and the run parameters, including the type of an injected capacity
// source. Equal fingerprints produce equal results.
func Fingerprint(in enrollment.Input, pair term.Pair, renameVersion int) (string, error) {
	renames := make([][2]string, 0, len(in.Params.Renames))
	for _, legacy := range in.Params.Renames.Legacy() {
		renames = append(renames, [2]string{legacy, in.Params.Renames[legacy]})
	}

	doc := struct {
		FormatVersion int                    `json:"format_version"`
		Terms         term.Pair              `json:"terms"`
		ReferenceDate enrollment.Date        `json:"reference_date"`
		RenameVersion int                    `json:"rename_version"`
		Renames       [][2]string            `json:"renames"`
		Capacity      string                 `json:"capacity,omitempty"`
		Current       []*enrollment.Snapshot `json:"current"`
		Previous      []*enrollment.Snapshot `json:"previous"`
	}{
		FormatVersion: FormatVersion,
		Terms:         pair,
		ReferenceDate: in.Params.ReferenceDate,
		RenameVersion: renameVersion,
		Renames:       renames,
		Capacity:      capacitySource(in.Params.Capacity),
		Current:       ordered(in.Current),
		Previous:      ordered(in.Previous),
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

func capacitySource(src enrollment.BaselineSource) string {
	if src == nil {
		return ""
	}
	return fmt.Sprintf("%T", src)
}

func ordered(c enrollment.Collection) []*enrollment.Snapshot {
	dates := c.Dates()
	out := make([]*enrollment.Snapshot, len(dates))
	for i, d := range dates {
		out[i] = c[d]
	}
	return out
}
