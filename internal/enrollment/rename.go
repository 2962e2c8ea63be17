package enrollment

import (
	"fmt"
	"sort"
)

// RenameTable maps legacy course codes to the codes that replaced them.
type RenameTable map[string]string

// Validate rejects self-mappings and chains, where a current code is itself
// renamed again.
func (rt RenameTable) Validate() error {
	for legacy, current := range rt {
		if legacy == "" || current == "" {
			return fmt.Errorf("rename %q -> %q: empty course code", legacy, current)
		}
		if legacy == current {
			return fmt.Errorf("rename %q: maps to itself", legacy)
		}
		if next, ok := rt[current]; ok {
			return fmt.Errorf("rename %q -> %q -> %q: chained renames are not supported", legacy, current, next)
		}
	}
	return nil
}

// Legacy returns the legacy codes in ascending order.
func (rt RenameTable) Legacy() []string {
	out := make([]string, 0, len(rt))
	for k := range rt {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Reconcile returns a copy of b keyed by current course codes. Each entry is
// moved to rt[code] when the code was renamed and kept otherwise. When a
// previous term lists both the legacy and the current code, their values are
// summed, so every legacy entry counts exactly once.
func Reconcile(b Baseline, rt RenameTable) Baseline {
	out := make(Baseline, len(b))
	for course, v := range b {
		if current, ok := rt[course]; ok {
			course = current
		}
		out[course] += v
	}
	return out
}
