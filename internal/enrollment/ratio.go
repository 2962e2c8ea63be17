package enrollment

import "sort"

// Ratio divides value by the baseline of course. A course missing from the
// baseline, or with a zero baseline, yields 0. The result is not clamped, so
// over-enrolled courses exceed 1.
func Ratio(value float64, course string, b Baseline) float64 {
	denom, ok := b[course]
	if !ok {
		return 0
	}
	if denom == 0 {
		return 0
	}
	return value / denom
}

// RatioMatrix applies Ratio to every present cell of m. It also returns the
// courses of m that had no baseline entry, sorted, so callers can tell "no
// baseline" apart from a genuine zero.
func RatioMatrix(m *Matrix, b Baseline) (*Matrix, []string) {
	out := NewMatrix(m.Courses, m.Dates)
	var unmatched []string
	for i, course := range m.Courses {
		if _, ok := b[course]; !ok {
			unmatched = append(unmatched, course)
		}
		for j := range m.Dates {
			c := m.cells[i][j]
			if !c.Valid {
				continue
			}
			out.cells[i][j] = Cell{Value: Ratio(c.Value, course, b), Valid: true}
		}
	}
	sort.Strings(unmatched)
	return out, unmatched
}

// BaselineMatrix renders a baseline as a single-column matrix dated date.
func BaselineMatrix(b Baseline, date Date) *Matrix {
	courses := b.Courses()
	m := NewMatrix(courses, []Date{date})
	for _, c := range courses {
		m.Set(c, date, b[c])
	}
	return m
}
