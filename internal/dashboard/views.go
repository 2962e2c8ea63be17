package dashboard

import (
	"errors"
	"fmt"
	"slices"

	"github.com/withObsrvr/enrollstat/internal/enrollment"
)

// View names one of the displayable matrices.
type View string

const (
	ViewEnrollment View = "enrollment"
	ViewPercentMax View = "percent-max"
	ViewVsPrevious View = "vs-previous"
	ViewHeatmap    View = "heatmap"
)

// ErrUnknownView is returned for a view name not in Views.
var ErrUnknownView = errors.New("unknown view")

// Views lists every view in display order.
var Views = []View{ViewEnrollment, ViewPercentMax, ViewVsPrevious, ViewHeatmap}

// ParseView validates a view name.
func ParseView(name string) (View, error) {
	v := View(name)
	if slices.Contains(Views, v) {
		return v, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownView, name)
}

// Query selects what part of a view to return.
type Query struct {
	Group string
	// Limit caps the number of newest columns. 0 uses the dashboard default
	// for bar views and every column for the heatmap; negative means all.
	Limit int
}

// Matrix returns the requested view of res restricted to q.
func (d *Dashboard) Matrix(res *enrollment.Result, v View, q Query) (*enrollment.Matrix, error) {
	if res == nil {
		return nil, errors.New("no result")
	}
	g, err := d.Group(q.Group)
	if err != nil {
		return nil, err
	}

	var src *enrollment.Matrix
	limit := q.Limit
	switch v {
	case ViewEnrollment:
		src = res.Enrollment
	case ViewPercentMax:
		src = res.PercentMax
	case ViewVsPrevious:
		src = res.VsPrevious
	case ViewHeatmap:
		return d.heatmap(res.PercentMax, g, limit), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownView, v)
	}
	if limit == 0 {
		limit = d.cfg.Limit
	}
	return src.Select(rowsOf(src, g, nil), max(limit, 0)), nil
}

// rowsOf returns the courses of m in g and not in exclude, in matrix order.
func rowsOf(m *enrollment.Matrix, g Group, exclude []string) []string {
	rows := make([]string, 0, len(m.Courses))
	for _, c := range m.Courses {
		if g.Contains(c) && !slices.Contains(exclude, c) {
			rows = append(rows, c)
		}
	}
	return rows
}

// heatmap drops the excluded courses and lists rows in reverse course order,
// so the first course ends up at the top of a bottom-up y axis.
func (d *Dashboard) heatmap(m *enrollment.Matrix, g Group, limit int) *enrollment.Matrix {
	rows := rowsOf(m, g, d.cfg.HeatmapExclude)
	slices.Reverse(rows)
	return m.Select(rows, max(limit, 0))
}

// Point is one dated value of a series.
type Point struct {
	Date  enrollment.Date `json:"date"`
	Value float64         `json:"value"`
}

// Series is the values of one course over time, newest first. Absent cells
// are left out.
type Series struct {
	Course string  `json:"course"`
	Points []Point `json:"points"`
}

// SeriesOf splits m into one series per course.
func SeriesOf(m *enrollment.Matrix) []Series {
	out := make([]Series, 0, len(m.Courses))
	for _, course := range m.Courses {
		row, _ := m.Row(course)
		s := Series{Course: course, Points: make([]Point, 0, len(row))}
		for j, c := range row {
			if c.Valid {
				s.Points = append(s.Points, Point{Date: m.Dates[j], Value: c.Value})
			}
		}
		out = append(out, s)
	}
	return out
}

// OverlayPoint is the previous-term marker drawn over a course's bars.
type OverlayPoint struct {
	Course     string  `json:"course"`
	Count      float64 `json:"count"`
	PercentMax float64 `json:"percent_max"`
}

// Overlay is the previous-term reference for every current course of a group.
type Overlay struct {
	Date   enrollment.Date `json:"date"`
	Points []OverlayPoint  `json:"points"`
}

// Overlay returns the previous-term counts and percent of max for the courses
// of group that are offered in both terms.
func (d *Dashboard) Overlay(res *enrollment.Result, group string) (*Overlay, error) {
	if res == nil {
		return nil, errors.New("no result")
	}
	g, err := d.Group(group)
	if err != nil {
		return nil, err
	}

	out := &Overlay{Date: res.PreviousDate, Points: []OverlayPoint{}}
	for _, course := range res.Enrollment.Courses {
		if !g.Contains(course) {
			continue
		}
		count, ok := res.PreviousCounts.Get(course, res.PreviousDate)
		if !ok {
			continue
		}
		pct, _ := res.PreviousPercentMax.Get(course, res.PreviousDate)
		out.Points = append(out.Points, OverlayPoint{Course: course, Count: count, PercentMax: pct})
	}
	return out, nil
}
