package dashboard

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/withObsrvr/enrollstat/internal/enrollment"
)

func day(d int) enrollment.Date {
	return enrollment.NewDate(2021, time.January, d)
}

// sampleResult has 20 daily columns and courses from several groups.
func sampleResult(t *testing.T) *enrollment.Result {
	t.Helper()
	courses := []string{"CHE1010", "CHE1150", "CHE3980", "CHE4460", "CHE4700"}
	current := make(enrollment.Collection)
	for d := 1; d <= 20; d++ {
		var recs []enrollment.Record
		for i, c := range courses {
			recs = append(recs, enrollment.Record{Course: c, CRN: c, Enrolled: d + i, Max: 40, Status: "A"})
		}
		current[day(d)] = enrollment.NewSnapshot(day(d), recs)
	}
	prevDate := enrollment.NewDate(2019, time.November, 25)
	previous := enrollment.Collection{prevDate: enrollment.NewSnapshot(prevDate, []enrollment.Record{
		{Course: "CHE1010", CRN: "9", Enrolled: 30, Max: 40},
		{Course: "CHE3260", CRN: "8", Enrolled: 10, Max: 20},
	})}

	res, err := enrollment.Run(enrollment.Input{
		Current:  current,
		Previous: previous,
		Params: enrollment.Params{
			ReferenceDate: day(1),
			Renames:       enrollment.RenameTable{"CHE3260": "CHE4460"},
		},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return res
}

func TestGroupLookup(t *testing.T) {
	d := New(Config{})

	for _, name := range []string{"", "all", "Core Lectures", "core-lectures", "CORE LABS", "upper-division", "criminalistics"} {
		if _, err := d.Group(name); err != nil {
			t.Errorf("Group(%q) failed: %v", name, err)
		}
	}
	if _, err := d.Group("organic"); !errors.Is(err, ErrUnknownGroup) {
		t.Errorf("Group(organic) error = %v, want ErrUnknownGroup", err)
	}

	g, _ := d.Group("upper division")
	if !g.Contains("CHE4460") || g.Contains("CHE1010") {
		t.Errorf("upper division membership wrong: %v", g.Courses)
	}
	all, _ := d.Group("")
	if !all.Contains("ANYTHING") {
		t.Error("all group should contain every course")
	}
}

func TestCustomGroupsKeepAll(t *testing.T) {
	groups := []Group{{Name: "Intro", Courses: []string{"CHE1010"}}}
	d := New(Config{Groups: groups, Limit: 3})

	if got := d.Groups(); len(got) != 2 || got[0].Slug != AllGroup || got[1].Slug != "intro" {
		t.Errorf("groups = %+v", got)
	}
	if groups[0].Slug != "" {
		t.Error("New should not modify the caller's groups")
	}
	if d.Limit() != 3 {
		t.Errorf("limit = %d", d.Limit())
	}
}

func TestMatrixLimitAndGroup(t *testing.T) {
	d := New(DefaultConfig())
	res := sampleResult(t)

	m, err := d.Matrix(res, ViewEnrollment, Query{})
	if err != nil {
		t.Fatalf("Matrix failed: %v", err)
	}
	if len(m.Dates) != DefaultLimit {
		t.Errorf("columns = %d, want %d", len(m.Dates), DefaultLimit)
	}
	if m.Dates[0] != day(20) {
		t.Errorf("first column = %s, want newest", m.Dates[0])
	}
	if len(m.Courses) != 5 {
		t.Errorf("rows = %v", m.Courses)
	}

	m, err = d.Matrix(res, ViewPercentMax, Query{Group: "core-labs", Limit: 3})
	if err != nil {
		t.Fatalf("Matrix failed: %v", err)
	}
	if !slices.Equal(m.Courses, []string{"CHE1150"}) || len(m.Dates) != 3 {
		t.Errorf("core labs = %v x %d", m.Courses, len(m.Dates))
	}

	m, err = d.Matrix(res, ViewVsPrevious, Query{Limit: -1})
	if err != nil {
		t.Fatalf("Matrix failed: %v", err)
	}
	if len(m.Dates) != 20 {
		t.Errorf("negative limit should keep all columns, got %d", len(m.Dates))
	}

	if _, err := d.Matrix(res, View("bubble"), Query{}); !errors.Is(err, ErrUnknownView) {
		t.Errorf("unknown view error = %v", err)
	}
	if _, err := d.Matrix(res, ViewEnrollment, Query{Group: "nope"}); !errors.Is(err, ErrUnknownGroup) {
		t.Errorf("unknown group error = %v", err)
	}
}

func TestHeatmap(t *testing.T) {
	d := New(DefaultConfig())
	res := sampleResult(t)

	m, err := d.Matrix(res, ViewHeatmap, Query{})
	if err != nil {
		t.Fatalf("Matrix failed: %v", err)
	}
	want := []string{"CHE4460", "CHE1150", "CHE1010"}
	if !slices.Equal(m.Courses, want) {
		t.Errorf("heatmap rows = %v, want %v", m.Courses, want)
	}
	if len(m.Dates) != 20 {
		t.Errorf("heatmap should show every column by default, got %d", len(m.Dates))
	}
}

func TestParseView(t *testing.T) {
	for _, v := range Views {
		if got, err := ParseView(string(v)); err != nil || got != v {
			t.Errorf("ParseView(%s) = %s, %v", v, got, err)
		}
	}
	if _, err := ParseView("percent_max"); !errors.Is(err, ErrUnknownView) {
		t.Errorf("ParseView error = %v", err)
	}
}

func TestSeriesOf(t *testing.T) {
	m := enrollment.NewMatrix([]string{"A", "B"}, []enrollment.Date{day(2), day(1)})
	m.Set("A", day(2), 5)
	m.Set("A", day(1), 3)
	m.Set("B", day(1), 7)

	series := SeriesOf(m)
	if len(series) != 2 {
		t.Fatalf("series = %d, want 2", len(series))
	}
	if len(series[0].Points) != 2 || series[0].Points[0].Value != 5 {
		t.Errorf("A = %+v", series[0])
	}
	if len(series[1].Points) != 1 || series[1].Points[0].Date != day(1) {
		t.Errorf("B should skip the absent cell: %+v", series[1])
	}
}

func TestOverlay(t *testing.T) {
	d := New(DefaultConfig())
	res := sampleResult(t)

	ov, err := d.Overlay(res, "")
	if err != nil {
		t.Fatalf("Overlay failed: %v", err)
	}
	if ov.Date != res.PreviousDate {
		t.Errorf("date = %s", ov.Date)
	}
	got := map[string]OverlayPoint{}
	for _, p := range ov.Points {
		got[p.Course] = p
	}
	if len(got) != 2 {
		t.Fatalf("overlay courses = %v", ov.Points)
	}
	if p := got["CHE1010"]; p.Count != 30 || p.PercentMax != 0.75 {
		t.Errorf("CHE1010 = %+v", p)
	}
	if p := got["CHE4460"]; p.Count != 10 || p.PercentMax != 0.5 {
		t.Errorf("renamed CHE4460 = %+v", p)
	}

	ov, err = d.Overlay(res, "core-labs")
	if err != nil {
		t.Fatal(err)
	}
	if len(ov.Points) != 0 {
		t.Errorf("core labs have no previous-term courses, got %v", ov.Points)
	}
}

func TestFlags(t *testing.T) {
	tests := []struct {
		name string
		rec  enrollment.Record
		want []string
	}{
		{"healthy", enrollment.Record{Status: "A", Enrolled: 30, Max: 40, Ratio: 75}, []string{}},
		{"waitlisted", enrollment.Record{Status: "A", Enrolled: 40, Max: 40, WaitList: 3, Ratio: 100}, []string{FlagWaitlisted, FlagFull}},
		{"low large section", enrollment.Record{Status: "A", Enrolled: 9, Max: 20, Ratio: 45}, []string{FlagLow}},
		{"small section not low", enrollment.Record{Status: "A", Enrolled: 9, Max: 12, Ratio: 75}, []string{}},
		{"very low", enrollment.Record{Status: "A", Enrolled: 5, Max: 8, Ratio: 62}, []string{FlagLow}},
		{"inactive not low", enrollment.Record{Status: "", Enrolled: 2, Max: 30}, []string{}},
		{"near full", enrollment.Record{Status: "A", Enrolled: 17, Max: 20, Ratio: 85}, []string{FlagNearFull}},
		{"full boundary", enrollment.Record{Status: "A", Enrolled: 47, Max: 50, Ratio: 94}, []string{FlagNearFull}},
		{"cancelled", enrollment.Record{Status: "C", Enrolled: 0, Max: 20}, []string{FlagCancelled}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Flags(tt.rec); !slices.Equal(got, tt.want) {
				t.Errorf("Flags() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTable(t *testing.T) {
	snap := enrollment.NewSnapshot(day(1), []enrollment.Record{
		{Course: "CHE1010", CRN: "1", Status: "A", Enrolled: 3, Max: 30, WaitList: 1},
		{Course: "CHE3120", CRN: "2", Status: "A", Enrolled: 20, Max: 24, Ratio: 83},
	})
	rows := Table(snap)
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[0].FlagList != "waitlisted;low" {
		t.Errorf("flag list = %q", rows[0].FlagList)
	}

	labs, _ := New(DefaultConfig()).Group("core-labs")
	if got := FilterTable(rows, labs); len(got) != 1 || got[0].CRN != "2" {
		t.Errorf("filtered = %+v", got)
	}
	if len(Table(nil)) != 0 {
		t.Error("nil snapshot should give an empty table")
	}
}
