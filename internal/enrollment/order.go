package enrollment

import "sort"

// OrderColumns returns a copy of m with its dates sorted newest first.
func OrderColumns(m *Matrix) *Matrix {
	dates := append([]Date(nil), m.Dates...)
	sort.Slice(dates, func(i, j int) bool { return dates[i].After(dates[j]) })

	out := NewMatrix(m.Courses, dates)
	for i := range m.Courses {
		for j, d := range dates {
			out.cells[i][j] = m.cells[i][m.dateIdx[d]]
		}
	}
	return out
}

// NewestFirst reports whether the columns of m are strictly descending.
func NewestFirst(m *Matrix) bool {
	for j := 1; j < len(m.Dates); j++ {
		if !m.Dates[j-1].After(m.Dates[j]) {
			return false
		}
	}
	return true
}
