package enrollment

import "strings"

// CapacityBaseline sums the Max field per course across all sections of snap.
// A course is the unit of capacity, so sections with differing caps add up.
func CapacityBaseline(snap *Snapshot) (Baseline, error) {
	if err := snap.require(requiredCapacity); err != nil {
		return nil, err
	}
	b := make(Baseline)
	for _, rec := range snap.Records {
		course := strings.TrimSpace(rec.Course)
		if course == "" {
			continue
		}
		b[course] += float64(rec.Max)
	}
	return b, nil
}

// EnrollmentBaseline sums the Enrolled field per course across all sections
// of snap.
func EnrollmentBaseline(snap *Snapshot) (Baseline, error) {
	if err := snap.require([]string{ColCourse, ColEnrolled}); err != nil {
		return nil, err
	}
	b := make(Baseline)
	for _, rec := range snap.Records {
		course := strings.TrimSpace(rec.Course)
		if course == "" {
			continue
		}
		b[course] += float64(rec.Enrolled)
	}
	return b, nil
}

// ReferenceSnapshot returns the snapshot taken on date.
func ReferenceSnapshot(coll Collection, date Date) (*Snapshot, error) {
	snap, ok := coll[date]
	if !ok {
		return nil, &MissingReferenceSnapshotError{Date: date, Available: coll.Dates()}
	}
	return snap, nil
}

// FirstSnapshot returns the earliest snapshot of coll.
func FirstSnapshot(coll Collection) (*Snapshot, error) {
	dates := coll.Dates()
	if len(dates) == 0 {
		return nil, ErrNoSnapshots
	}
	return coll[dates[0]], nil
}

// BaselineSource yields the denominators for a ratio matrix.
type BaselineSource interface {
	Baseline(current Collection) (Baseline, error)
}

// ReferenceCapacity is the same-term baseline: course capacity summed from the
// current-term snapshot taken on Date.
type ReferenceCapacity struct {
	Date Date
}

// Baseline implements BaselineSource.
func (r ReferenceCapacity) Baseline(current Collection) (Baseline, error) {
	snap, err := ReferenceSnapshot(current, r.Date)
	if err != nil {
		return nil, err
	}
	return CapacityBaseline(snap)
}

// PreviousEnrollment is the cross-term baseline: enrollment per course in a
// previous-term snapshot, with legacy course codes mapped onto current ones.
type PreviousEnrollment struct {
	Snapshot *Snapshot
	Renames  RenameTable
}

// Baseline implements BaselineSource. The current collection is not consulted.
func (p PreviousEnrollment) Baseline(Collection) (Baseline, error) {
	if p.Snapshot == nil {
		return nil, ErrNoSnapshots
	}
	b, err := EnrollmentBaseline(p.Snapshot)
	if err != nil {
		return nil, err
	}
	return Reconcile(b, p.Renames), nil
}
