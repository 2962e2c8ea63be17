// Package enrollment reshapes dated enrollment snapshots into course-by-date
// matrices and derives capacity and year-over-year ratios from them.
//
// Everything in this package is pure computation over values passed in. No call
// reads files, talks to storage, or keeps state between invocations.
package enrollment

import (
	"fmt"
	"sort"
	"time"
)

// Date is a calendar date used as a snapshot key.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate returns the Date for the given calendar day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Year: year, Month: month, Day: day}
}

// ParseDate parses a YYYYMMDD stamp, as found in snapshot file names.
func ParseDate(stamp string) (Date, error) {
	if len(stamp) != 8 {
		return Date{}, fmt.Errorf("date stamp %q: want YYYYMMDD", stamp)
	}
	t, err := time.Parse("20060102", stamp)
	if err != nil {
		return Date{}, fmt.Errorf("date stamp %q: %w", stamp, err)
	}
	return DateOf(t), nil
}

// ParseISODate parses a 2006-01-02 formatted date.
func ParseISODate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Date{}, fmt.Errorf("date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// DateOf truncates t to its calendar date.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Time returns midnight UTC of the date.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool {
	return d == Date{}
}

// Before reports whether d falls before o.
func (d Date) Before(o Date) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

// After reports whether d falls after o.
func (d Date) After(o Date) bool {
	return o.Before(d)
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Stamp returns the YYYYMMDD form of d.
func (d Date) Stamp() string {
	return fmt.Sprintf("%04d%02d%02d", d.Year, int(d.Month), d.Day)
}

// MarshalText implements encoding.TextMarshaler. The zero Date encodes as "".
func (d Date) MarshalText() ([]byte, error) {
	if d.IsZero() {
		return []byte{}, nil
	}
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Date) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := ParseISODate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Column names of a processed enrollment report. Only the ones listed in
// requiredAggregate and requiredCapacity are needed by the math; the rest are
// carried for the data table.
const (
	ColSubject      = "Subj"
	ColNumber       = "Nmbr"
	ColCRN          = "CRN"
	ColSection      = "Sec"
	ColStatus       = "S"
	ColCampus       = "Cam"
	ColCourse       = "Course"
	ColTitle        = "Title"
	ColCredit       = "Credit"
	ColMax          = "Max"
	ColEnrolled     = "Enrolled"
	ColWaitCapacity = "WCap"
	ColWaitList     = "WList"
	ColDays         = "Days"
	ColTime         = "Time"
	ColLocation     = "Loc"
	ColRoomCapacity = "Rcap"
	ColPercentFull  = "Full"
	ColBeginEnd     = "Begin/End"
	ColInstructor   = "Instructor"
	ColRatio        = "Ratio"
)

// DefaultColumns is the header of a processed enrollment report.
var DefaultColumns = []string{
	ColSubject, ColNumber, ColCRN, ColSection, ColStatus, ColCampus, ColCourse,
	ColTitle, ColCredit, ColMax, ColEnrolled, ColWaitCapacity, ColWaitList,
	ColDays, ColTime, ColLocation, ColRoomCapacity, ColPercentFull, ColBeginEnd,
	ColInstructor, ColRatio,
}

var (
	requiredAggregate = []string{ColCourse, ColCRN, ColEnrolled}
	requiredCapacity  = []string{ColCourse, ColMax}
)

// Record is one course section in a snapshot.
type Record struct {
	Course       string  `json:"course"`
	Subject      string  `json:"subject,omitempty"`
	Number       string  `json:"number,omitempty"`
	CRN          string  `json:"crn"`
	Section      string  `json:"section,omitempty"`
	Status       string  `json:"status,omitempty"`
	Campus       string  `json:"campus,omitempty"`
	Title        string  `json:"title,omitempty"`
	Credit       string  `json:"credit,omitempty"`
	Max          int     `json:"max"`
	Enrolled     int     `json:"enrolled"`
	WaitCapacity int     `json:"wait_capacity,omitempty"`
	WaitList     int     `json:"wait_list,omitempty"`
	Days         string  `json:"days,omitempty"`
	Time         string  `json:"time,omitempty"`
	Location     string  `json:"location,omitempty"`
	RoomCapacity int     `json:"room_capacity,omitempty"`
	PercentFull  float64 `json:"percent_full,omitempty"`
	BeginEnd     string  `json:"begin_end,omitempty"`
	Instructor   string  `json:"instructor,omitempty"`
	Ratio        float64 `json:"ratio,omitempty"`
}

// Snapshot is one dated extract of section records for a term.
type Snapshot struct {
	Date    Date     `json:"date"`
	Columns []string `json:"columns"`
	Records []Record `json:"records"`
}

// NewSnapshot builds a snapshot with the default report header.
func NewSnapshot(date Date, records []Record) *Snapshot {
	cols := make([]string, len(DefaultColumns))
	copy(cols, DefaultColumns)
	return &Snapshot{Date: date, Columns: cols, Records: records}
}

// HasColumn reports whether the snapshot header contains name.
func (s *Snapshot) HasColumn(name string) bool {
	for _, c := range s.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// require returns a *SchemaError listing the columns of names missing from
// the snapshot header, or nil.
func (s *Snapshot) require(names []string) error {
	var missing []string
	for _, n := range names {
		if !s.HasColumn(n) {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return &SchemaError{Date: s.Date, Missing: missing}
	}
	return nil
}

// Collection maps snapshot dates to snapshots for one term.
type Collection map[Date]*Snapshot

// Dates returns the collection's dates, oldest first.
func (c Collection) Dates() []Date {
	dates := make([]Date, 0, len(c))
	for d := range c {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// Latest returns the snapshot with the greatest date, or nil when empty.
func (c Collection) Latest() *Snapshot {
	dates := c.Dates()
	if len(dates) == 0 {
		return nil
	}
	return c[dates[len(dates)-1]]
}

// Baseline maps a course code to the denominator used for its ratios.
type Baseline map[string]float64

// Courses returns the baseline keys in ascending order.
func (b Baseline) Courses() []string {
	out := make([]string, 0, len(b))
	for c := range b {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
