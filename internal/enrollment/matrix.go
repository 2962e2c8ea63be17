package enrollment

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Cell is one matrix value. Valid is false where the source data had no
// observation for the (course, date) pair.
type Cell struct {
	Value float64
	Valid bool
}

// Matrix is a course-by-date table of a single metric.
type Matrix struct {
	Courses []string
	Dates   []Date

	cells     [][]Cell
	courseIdx map[string]int
	dateIdx   map[Date]int
}

// NewMatrix allocates an empty matrix with the given row and column keys.
func NewMatrix(courses []string, dates []Date) *Matrix {
	m := &Matrix{
		Courses:   append([]string(nil), courses...),
		Dates:     append([]Date(nil), dates...),
		cells:     make([][]Cell, len(courses)),
		courseIdx: make(map[string]int, len(courses)),
		dateIdx:   make(map[Date]int, len(dates)),
	}
	for i, c := range m.Courses {
		m.cells[i] = make([]Cell, len(dates))
		m.courseIdx[c] = i
	}
	for j, d := range m.Dates {
		m.dateIdx[d] = j
	}
	return m
}

// Set stores v at (course, date). Unknown keys are ignored.
func (m *Matrix) Set(course string, date Date, v float64) {
	i, ok := m.courseIdx[course]
	if !ok {
		return
	}
	j, ok := m.dateIdx[date]
	if !ok {
		return
	}
	m.cells[i][j] = Cell{Value: v, Valid: true}
}

// Get returns the value at (course, date) and whether it is present.
func (m *Matrix) Get(course string, date Date) (float64, bool) {
	i, ok := m.courseIdx[course]
	if !ok {
		return 0, false
	}
	j, ok := m.dateIdx[date]
	if !ok {
		return 0, false
	}
	c := m.cells[i][j]
	return c.Value, c.Valid
}

// At returns the cell at row i, column j.
func (m *Matrix) At(i, j int) Cell {
	return m.cells[i][j]
}

// Row returns a copy of the cells for course in column order.
func (m *Matrix) Row(course string) ([]Cell, bool) {
	i, ok := m.courseIdx[course]
	if !ok {
		return nil, false
	}
	return append([]Cell(nil), m.cells[i]...), true
}

// HasCourse reports whether course is a row of m.
func (m *Matrix) HasCourse(course string) bool {
	_, ok := m.courseIdx[course]
	return ok
}

// Column returns the column index of date, or -1.
func (m *Matrix) Column(date Date) int {
	if j, ok := m.dateIdx[date]; ok {
		return j
	}
	return -1
}

// Each calls fn for every present cell in row-major order.
func (m *Matrix) Each(fn func(course string, date Date, v float64)) {
	for i, course := range m.Courses {
		for j, date := range m.Dates {
			if c := m.cells[i][j]; c.Valid {
				fn(course, date, c.Value)
			}
		}
	}
}

// Select returns a copy of m restricted to the given courses (in the given
// order, unknown ones dropped) and the first limit columns. limit <= 0 keeps
// every column.
func (m *Matrix) Select(courses []string, limit int) *Matrix {
	if courses == nil {
		courses = m.Courses
	}
	keep := make([]string, 0, len(courses))
	for _, c := range courses {
		if m.HasCourse(c) {
			keep = append(keep, c)
		}
	}
	dates := m.Dates
	if limit > 0 && limit < len(dates) {
		dates = dates[:limit]
	}
	out := NewMatrix(keep, dates)
	for i, c := range keep {
		src := m.cells[m.courseIdx[c]]
		for j, d := range dates {
			out.cells[i][j] = src[m.dateIdx[d]]
		}
	}
	return out
}

// Without returns a copy of m with the given courses removed.
func (m *Matrix) Without(courses ...string) *Matrix {
	drop := make(map[string]bool, len(courses))
	for _, c := range courses {
		drop[c] = true
	}
	keep := make([]string, 0, len(m.Courses))
	for _, c := range m.Courses {
		if !drop[c] {
			keep = append(keep, c)
		}
	}
	return m.Select(keep, 0)
}

// Clone returns a deep copy of m.
func (m *Matrix) Clone() *Matrix {
	return m.Select(nil, 0)
}

type matrixJSON struct {
	Courses []string     `json:"courses"`
	Dates   []Date       `json:"dates"`
	Values  [][]*float64 `json:"values"`
}

// MarshalJSON encodes absent cells as null.
func (m *Matrix) MarshalJSON() ([]byte, error) {
	out := matrixJSON{
		Courses: m.Courses,
		Dates:   m.Dates,
		Values:  make([][]*float64, len(m.Courses)),
	}
	if out.Courses == nil {
		out.Courses = []string{}
	}
	if out.Dates == nil {
		out.Dates = []Date{}
	}
	for i := range m.Courses {
		row := make([]*float64, len(m.Dates))
		for j := range m.Dates {
			if c := m.cells[i][j]; c.Valid {
				v := c.Value
				row[j] = &v
			}
		}
		out.Values[i] = row
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Matrix) UnmarshalJSON(b []byte) error {
	var in matrixJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	if len(in.Values) != len(in.Courses) {
		return fmt.Errorf("matrix: %d rows for %d courses", len(in.Values), len(in.Courses))
	}
	*m = *NewMatrix(in.Courses, in.Dates)
	for i, row := range in.Values {
		if len(row) != len(in.Dates) {
			return fmt.Errorf("matrix: row %q has %d values for %d dates", in.Courses[i], len(row), len(in.Dates))
		}
		for j, v := range row {
			if v != nil {
				m.cells[i][j] = Cell{Value: *v, Valid: true}
			}
		}
	}
	return nil
}

// Pivot reshapes a LongForm aggregate into an absolute-count matrix. Rows are
// the distinct courses and columns every snapshot date of the input, both
// ascending; pairs that were never observed stay absent, so a snapshot with
// no usable rows still keeps its column.
func Pivot(lf *LongForm) *Matrix {
	courseSet := make(map[string]struct{})
	for k := range lf.sums {
		courseSet[k.course] = struct{}{}
	}

	courses := make([]string, 0, len(courseSet))
	for c := range courseSet {
		courses = append(courses, c)
	}
	sort.Strings(courses)

	dates := lf.Dates()

	m := NewMatrix(courses, dates)
	for k, v := range lf.sums {
		m.Set(k.course, k.date, float64(v))
	}
	return m
}
