package term

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/withObsrvr/enrollstat/internal/enrollment"
)

// ErrNoRenameSet is returned when no rename set covers a term pair.
var ErrNoRenameSet = errors.New("no rename set for term pair")

// ErrDuplicateRenameSet is returned when two rename sets share a version for
// the same term pair.
var ErrDuplicateRenameSet = errors.New("duplicate rename set")

// RenameSet is one versioned list of course code changes between two terms.
type RenameSet struct {
	Version  int               `yaml:"version"`
	FromTerm Term              `yaml:"from_term"`
	ToTerm   Term              `yaml:"to_term"`
	Renames  map[string]string `yaml:"renames"`
}

// Table returns the renames as an enrollment.RenameTable.
func (s RenameSet) Table() enrollment.RenameTable {
	rt := make(enrollment.RenameTable, len(s.Renames))
	for k, v := range s.Renames {
		rt[k] = v
	}
	return rt
}

// Covers reports whether the set reconciles previous into current.
func (s RenameSet) Covers(p Pair) bool {
	return s.FromTerm == p.Previous && s.ToTerm == p.Current
}

type renameFile struct {
	Sets []RenameSet `yaml:"sets"`
}

// ParseRenames decodes a rename file. Both a single set at the top level and a
// list under "sets" are accepted.
func ParseRenames(data []byte) ([]RenameSet, error) {
	var file renameFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse renames: %w", err)
	}
	if len(file.Sets) > 0 {
		return file.Sets, nil
	}

	var single RenameSet
	if err := yaml.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("parse renames: %w", err)
	}
	if single.FromTerm.IsZero() && single.ToTerm.IsZero() && len(single.Renames) == 0 {
		return nil, nil
	}
	return []RenameSet{single}, nil
}

// LoadRenames reads and decodes a rename file from disk.
func LoadRenames(path string) ([]RenameSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read renames: %w", err)
	}
	return ParseRenames(data)
}

// Router selects the rename set for a term pair. For each pair the highest
// version wins.
type Router struct {
	sets []RenameSet
}

// NewRouter validates sets and builds a router. Every set's table must be
// valid, its terms must form a valid pair, and no two sets may share a
// version for the same pair.
func NewRouter(sets []RenameSet) (*Router, error) {
	sorted := make([]RenameSet, len(sets))
	copy(sorted, sets)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.ToTerm != b.ToTerm {
			return a.ToTerm.Before(b.ToTerm)
		}
		if a.FromTerm != b.FromTerm {
			return a.FromTerm.Before(b.FromTerm)
		}
		return a.Version > b.Version
	})

	for i, s := range sorted {
		pair := Pair{Current: s.ToTerm, Previous: s.FromTerm}
		if err := pair.Validate(); err != nil {
			return nil, fmt.Errorf("rename set v%d: %w", s.Version, err)
		}
		if err := s.Table().Validate(); err != nil {
			return nil, fmt.Errorf("rename set %s v%d: %w", pair, s.Version, err)
		}
		if i > 0 {
			prev := sorted[i-1]
			if prev.Covers(pair) && prev.Version == s.Version {
				return nil, fmt.Errorf("%w: %s v%d", ErrDuplicateRenameSet, pair, s.Version)
			}
		}
	}
	return &Router{sets: sorted}, nil
}

// Route returns the newest rename set for p.
func (r *Router) Route(p Pair) (*RenameSet, error) {
	for i := range r.sets {
		if r.sets[i].Covers(p) {
			return &r.sets[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoRenameSet, p)
}

// Table returns the rename table for p, or an empty table when none is
// configured. A pair without renames is common and not an error.
func (r *Router) Table(p Pair) enrollment.RenameTable {
	set, err := r.Route(p)
	if err != nil {
		return enrollment.RenameTable{}
	}
	return set.Table()
}

// Sets returns every configured set, grouped by pair with the newest version first.
func (r *Router) Sets() []RenameSet {
	return r.sets
}
