package dashboard

import (
	"strings"

	"github.com/withObsrvr/enrollstat/internal/enrollment"
)

// Highlight flags of a table row.
const (
	FlagWaitlisted = "waitlisted"
	FlagLow        = "low"
	FlagNearFull   = "near_full"
	FlagFull       = "full"
	FlagCancelled  = "cancelled"
)

// Ratio thresholds, in percent of max.
const (
	nearFullRatio = 80
	fullRatio     = 94
)

// TableRow is one section of the latest snapshot as shown in the data table.
// The csv tags give the report's column headers.
type TableRow struct {
	Subject      string   `csv:"Subj" json:"subject"`
	Number       string   `csv:"Nmbr" json:"number"`
	CRN          string   `csv:"CRN" json:"crn"`
	Section      string   `csv:"Sec" json:"section"`
	Status       string   `csv:"S" json:"status"`
	Campus       string   `csv:"Cam" json:"campus"`
	Course       string   `csv:"Course" json:"course"`
	Title        string   `csv:"Title" json:"title"`
	Credit       string   `csv:"Credit" json:"credit"`
	Max          int      `csv:"Max" json:"max"`
	Enrolled     int      `csv:"Enrl" json:"enrolled"`
	WaitCapacity int      `csv:"WCap" json:"wait_capacity"`
	WaitList     int      `csv:"WLst" json:"wait_list"`
	Days         string   `csv:"Days" json:"days"`
	Time         string   `csv:"Time" json:"time"`
	Location     string   `csv:"Loc" json:"location"`
	RoomCapacity int      `csv:"Rcap" json:"room_capacity"`
	PercentFull  float64  `csv:"%Ful" json:"percent_full"`
	BeginEnd     string   `csv:"Begin/End" json:"begin_end"`
	Instructor   string   `csv:"Instructor" json:"instructor"`
	Ratio        float64  `csv:"Ratio" json:"ratio"`
	Flags        []string `csv:"-" json:"flags"`
	FlagList     string   `csv:"Flags" json:"-"`
}

// Flags returns the highlight flags of a section. Full and near full are
// exclusive: a full section is only flagged full.
func Flags(r enrollment.Record) []string {
	flags := []string{}
	active := strings.Contains(r.Status, "A")
	if r.WaitList > 0 {
		flags = append(flags, FlagWaitlisted)
	}
	if active && (r.Enrolled < 6 || (r.Enrolled < 10 && r.Max >= 20)) {
		flags = append(flags, FlagLow)
	}
	switch {
	case r.Ratio > fullRatio:
		flags = append(flags, FlagFull)
	case r.Ratio > nearFullRatio:
		flags = append(flags, FlagNearFull)
	}
	if strings.Contains(r.Status, "C") {
		flags = append(flags, FlagCancelled)
	}
	return flags
}

// Table returns the flagged rows of snap in report order.
func Table(snap *enrollment.Snapshot) []TableRow {
	if snap == nil {
		return []TableRow{}
	}
	rows := make([]TableRow, 0, len(snap.Records))
	for _, r := range snap.Records {
		flags := Flags(r)
		rows = append(rows, TableRow{
			Subject:      r.Subject,
			Number:       r.Number,
			CRN:          r.CRN,
			Section:      r.Section,
			Status:       r.Status,
			Campus:       r.Campus,
			Course:       r.Course,
			Title:        r.Title,
			Credit:       r.Credit,
			Max:          r.Max,
			Enrolled:     r.Enrolled,
			WaitCapacity: r.WaitCapacity,
			WaitList:     r.WaitList,
			Days:         r.Days,
			Time:         r.Time,
			Location:     r.Location,
			RoomCapacity: r.RoomCapacity,
			PercentFull:  r.PercentFull,
			BeginEnd:     r.BeginEnd,
			Instructor:   r.Instructor,
			Ratio:        r.Ratio,
			Flags:        flags,
			FlagList:     strings.Join(flags, ";"),
		})
	}
	return rows
}

// FilterTable keeps the rows whose course is in g.
func FilterTable(rows []TableRow, g Group) []TableRow {
	out := make([]TableRow, 0, len(rows))
	for _, r := range rows {
		if g.Contains(r.Course) {
			out = append(out, r)
		}
	}
	return out
}
