package enrollment

import "fmt"

// Params are the per-run settings of the pipeline.
type Params struct {
	// ReferenceDate selects the current-term snapshot whose Max column is the
	// capacity baseline.
	ReferenceDate Date

	// Renames maps previous-term course codes onto current ones.
	Renames RenameTable

	// Capacity overrides the same-term baseline. When nil,
	// ReferenceCapacity{ReferenceDate} is used.
	Capacity BaselineSource
}

// Input is everything one pipeline run consumes.
type Input struct {
	Current  Collection
	Previous Collection
	Params   Params
}

// Result holds the matrices and summaries of one run. All matrices have
// courses as rows and dates newest first.
type Result struct {
	Enrollment *Matrix `json:"enrollment"`
	PercentMax *Matrix `json:"percent_max"`
	VsPrevious *Matrix `json:"vs_previous"`

	Capacity           Baseline `json:"capacity"`
	PreviousEnrollment Baseline `json:"previous_enrollment"`
	PreviousCounts     *Matrix  `json:"previous_counts"`
	PreviousPercentMax *Matrix  `json:"previous_percent_max"`
	PreviousDate       Date     `json:"previous_date"`

	Latest     *Snapshot `json:"latest"`
	LatestDate Date      `json:"latest_date"`

	UnmatchedCapacity []string `json:"unmatched_capacity,omitempty"`
	UnmatchedPrevious []string `json:"unmatched_previous,omitempty"`
}

// Run executes the reshaping pipeline. It either returns a complete Result or
// an error; structural problems such as a *SchemaError or a
// *MissingReferenceSnapshotError abort the whole run.
func Run(in Input) (*Result, error) {
	if len(in.Current) == 0 {
		return nil, fmt.Errorf("current term: %w", ErrNoSnapshots)
	}
	if len(in.Previous) == 0 {
		return nil, fmt.Errorf("previous term: %w", ErrNoSnapshots)
	}
	if err := in.Params.Renames.Validate(); err != nil {
		return nil, err
	}

	lf, err := Aggregate(in.Current)
	if err != nil {
		return nil, fmt.Errorf("current term: %w", err)
	}
	absolute := Pivot(lf)

	capSource := in.Params.Capacity
	if capSource == nil {
		capSource = ReferenceCapacity{Date: in.Params.ReferenceDate}
	}
	capacity, err := capSource.Baseline(in.Current)
	if err != nil {
		return nil, fmt.Errorf("capacity baseline: %w", err)
	}
	percentMax, unmatchedCap := RatioMatrix(absolute, capacity)

	prevSnap, err := FirstSnapshot(in.Previous)
	if err != nil {
		return nil, fmt.Errorf("previous term: %w", err)
	}
	prevSource := PreviousEnrollment{Snapshot: prevSnap, Renames: in.Params.Renames}
	prevEnrollment, err := prevSource.Baseline(in.Current)
	if err != nil {
		return nil, fmt.Errorf("previous term baseline: %w", err)
	}
	vsPrevious, unmatchedPrev := RatioMatrix(absolute, prevEnrollment)

	prevCapacity, err := CapacityBaseline(prevSnap)
	if err != nil {
		return nil, fmt.Errorf("previous term capacity: %w", err)
	}
	prevCapacity = Reconcile(prevCapacity, in.Params.Renames)
	prevPercent := make(Baseline, len(prevEnrollment))
	for course, v := range prevEnrollment {
		prevPercent[course] = Ratio(v, course, prevCapacity)
	}

	latest := in.Current.Latest()

	return &Result{
		Enrollment:         OrderColumns(absolute),
		PercentMax:         OrderColumns(percentMax),
		VsPrevious:         OrderColumns(vsPrevious),
		Capacity:           capacity,
		PreviousEnrollment: prevEnrollment,
		PreviousCounts:     BaselineMatrix(prevEnrollment, prevSnap.Date),
		PreviousPercentMax: BaselineMatrix(prevPercent, prevSnap.Date),
		PreviousDate:       prevSnap.Date,
		Latest:             latest,
		LatestDate:         latest.Date,
		UnmatchedCapacity:  unmatchedCap,
		UnmatchedPrevious:  unmatchedPrev,
	}, nil
}
