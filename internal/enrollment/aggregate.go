package enrollment

import (
	"slices"
	"sort"
	"strings"
)

// AggregateRow is one (course, date) entry of a LongForm aggregate.
type AggregateRow struct {
	Course   string
	Date     Date
	Enrolled int
}

type courseDate struct {
	course string
	date   Date
}

// LongForm holds enrollment summed per (course, date), plus every snapshot
// date of the input, including dates that contributed no rows.
type LongForm struct {
	sums  map[courseDate]int
	dates []Date
}

// Aggregate sums enrolled counts across all sections of each course, per
// snapshot date. Records with a blank course code are skipped.
func Aggregate(coll Collection) (*LongForm, error) {
	lf := &LongForm{sums: make(map[courseDate]int), dates: coll.Dates()}
	for _, date := range lf.dates {
		snap := coll[date]
		if err := snap.require(requiredAggregate); err != nil {
			return nil, err
		}
		for _, rec := range snap.Records {
			course := strings.TrimSpace(rec.Course)
			if course == "" {
				continue
			}
			lf.sums[courseDate{course: course, date: date}] += rec.Enrolled
		}
	}
	return lf, nil
}

// Len returns the number of (course, date) entries.
func (lf *LongForm) Len() int {
	return len(lf.sums)
}

// Dates returns the snapshot dates of the input, ascending.
func (lf *LongForm) Dates() []Date {
	return slices.Clone(lf.dates)
}

// Value returns the summed enrollment for course on date.
func (lf *LongForm) Value(course string, date Date) (int, bool) {
	v, ok := lf.sums[courseDate{course: course, date: date}]
	return v, ok
}

// Rows returns every entry ordered by course, then date.
func (lf *LongForm) Rows() []AggregateRow {
	rows := make([]AggregateRow, 0, len(lf.sums))
	for k, v := range lf.sums {
		rows = append(rows, AggregateRow{Course: k.course, Date: k.date, Enrolled: v})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Course != rows[j].Course {
			return rows[i].Course < rows[j].Course
		}
		return rows[i].Date.Before(rows[j].Date)
	})
	return rows
}
