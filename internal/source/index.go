package source

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/withObsrvr/enrollstat/internal/enrollment"
	"github.com/withObsrvr/enrollstat/internal/term"
)

// Format is the container format of a report file.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// SnapshotFile is one report file in the archive.
type SnapshotFile struct {
	Key        string // object key relative to the bucket
	Term       string // term label from the file name
	Date       enrollment.Date
	Format     Format
	Compressed bool // zstd wrapped
	Size       int64
	ModTime    time.Time
}

// Report file naming pattern: {term}_{YYYYMMDD}.{xlsx|csv}[.zst]
// Example: Spring2021_20201130.xlsx
var snapshotFilePattern = regexp.MustCompile(`^([A-Za-z]+\d{4})_(\d{8})\.(xlsx|csv)(\.zst)?$`)

// ParseSnapshotKey extracts term, date and format from a report file key.
// Directory components are ignored.
func ParseSnapshotKey(key string) (SnapshotFile, bool) {
	matches := snapshotFilePattern.FindStringSubmatch(path.Base(key))
	if matches == nil {
		return SnapshotFile{}, false
	}

	date, err := enrollment.ParseDate(matches[2])
	if err != nil {
		return SnapshotFile{}, false
	}

	return SnapshotFile{
		Key:        key,
		Term:       matches[1],
		Date:       date,
		Format:     Format(matches[3]),
		Compressed: matches[4] != "",
	}, true
}

// Index is the ordered set of report files for one term.
type Index struct {
	term   term.Term
	files  []SnapshotFile
	byDate map[enrollment.Date]int
}

// NewIndex creates an empty index for t.
func NewIndex(t term.Term) *Index {
	return &Index{
		term:   t,
		byDate: make(map[enrollment.Date]int),
	}
}

// Term returns the term the index covers.
func (idx *Index) Term() term.Term {
	return idx.term
}

// Add inserts f when it belongs to the index's term. It reports whether the
// file was added and fails with ErrDuplicateSnapshot when the date is taken.
func (idx *Index) Add(f SnapshotFile) (bool, error) {
	if !strings.EqualFold(f.Term, idx.term.String()) {
		return false, nil
	}
	if i, ok := idx.byDate[f.Date]; ok {
		return false, fmt.Errorf("%w: %s in %s and %s", ErrDuplicateSnapshot, f.Date, idx.files[i].Key, f.Key)
	}
	idx.files = append(idx.files, f)
	idx.sort()
	return true, nil
}

func (idx *Index) sort() {
	sort.Slice(idx.files, func(i, j int) bool {
		return idx.files[i].Date.Before(idx.files[j].Date)
	})
	for i, f := range idx.files {
		idx.byDate[f.Date] = i
	}
}

// Files returns the indexed files, oldest first.
func (idx *Index) Files() []SnapshotFile {
	return append([]SnapshotFile(nil), idx.files...)
}

// Get returns the file for date.
func (idx *Index) Get(date enrollment.Date) (SnapshotFile, bool) {
	i, ok := idx.byDate[date]
	if !ok {
		return SnapshotFile{}, false
	}
	return idx.files[i], true
}

// Dates returns the indexed dates, oldest first.
func (idx *Index) Dates() []enrollment.Date {
	dates := make([]enrollment.Date, len(idx.files))
	for i, f := range idx.files {
		dates[i] = f.Date
	}
	return dates
}

// Count returns the number of indexed files.
func (idx *Index) Count() int {
	return len(idx.files)
}

// Latest returns the newest file.
func (idx *Index) Latest() (SnapshotFile, bool) {
	if len(idx.files) == 0 {
		return SnapshotFile{}, false
	}
	return idx.files[len(idx.files)-1], true
}

// Fingerprint summarises the file set so callers can detect additions,
// removals and rewrites without reading file contents.
func (idx *Index) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\n", idx.term)
	for _, f := range idx.files {
		fmt.Fprintf(h, "%s\t%d\t%d\n", f.Key, f.Size, f.ModTime.UnixNano())
	}
	return hex.EncodeToString(h.Sum(nil))
}
