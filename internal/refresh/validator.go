package refresh

import (
	"fmt"
	"slices"
	"strings"

	"github.com/withObsrvr/enrollstat/internal/enrollment"
	"github.com/withObsrvr/enrollstat/internal/tables"
)

// ValidationResult contains the outcome of result validation.
type ValidationResult struct {
	Passed   bool
	Errors   []string
	Warnings []string
	Courses  int
	Dates    int
	ByteSize int64
}

// Err returns the errors joined into one error, or nil when validation passed.
func (r ValidationResult) Err() error {
	if r.Passed {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(r.Errors, "; "))
}

func (r *ValidationResult) fail(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Passed = false
}

func (r *ValidationResult) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// ValidateResult performs shape checks on a pipeline result before publish:
//   - the enrollment matrix is not empty
//   - every matrix is newest first
//   - the three course-by-date matrices share rows and columns
//   - the latest snapshot is the newest column
func ValidateResult(res *enrollment.Result) ValidationResult {
	result := ValidationResult{Passed: true}
	if res == nil {
		result.fail("no result")
		return result
	}

	named := []struct {
		name string
		m    *enrollment.Matrix
	}{
		{tables.MatrixEnrollment, res.Enrollment},
		{tables.MatrixPercentMax, res.PercentMax},
		{tables.MatrixVsPrevious, res.VsPrevious},
		{tables.MatrixPreviousCounts, res.PreviousCounts},
		{tables.MatrixPreviousPercentMax, res.PreviousPercentMax},
	}
	for _, n := range named {
		if n.m == nil {
			result.fail("matrix %s is missing", n.name)
			continue
		}
		if !enrollment.NewestFirst(n.m) {
			result.fail("matrix %s columns are not newest first", n.name)
		}
	}
	if !result.Passed {
		return result
	}

	abs := res.Enrollment
	result.Courses = len(abs.Courses)
	result.Dates = len(abs.Dates)
	if result.Courses == 0 || result.Dates == 0 {
		result.fail("enrollment matrix is empty (%d courses, %d dates)", result.Courses, result.Dates)
	}

	for _, other := range named[1:3] {
		if !slices.Equal(abs.Courses, other.m.Courses) {
			result.fail("matrix %s rows differ from enrollment", other.name)
		}
		if !slices.Equal(abs.Dates, other.m.Dates) {
			result.fail("matrix %s columns differ from enrollment", other.name)
		}
	}

	if len(abs.Dates) > 0 && res.LatestDate != abs.Dates[0] {
		result.fail("latest snapshot %s is not the newest column %s", res.LatestDate, abs.Dates[0])
	}

	if n := len(res.UnmatchedCapacity); n > 0 {
		result.warn("%d courses have no capacity baseline: %s", n, strings.Join(res.UnmatchedCapacity, ","))
	}
	if n := len(res.UnmatchedPrevious); n > 0 {
		result.warn("%d courses have no previous-term counterpart", n)
	}
	res.PercentMax.Each(func(course string, date enrollment.Date, v float64) {
		if v < 0 {
			result.fail("negative percent of capacity for %s on %s", course, date)
		}
	})

	return result
}

// ValidateOutput checks the encoded files of a build before they are staged.
func ValidateOutput(bundleData []byte, pq *tables.ParquetOutput) ValidationResult {
	result := ValidationResult{Passed: true}

	if len(bundleData) == 0 {
		result.fail("empty bundle")
	}
	result.ByteSize += int64(len(bundleData))

	if pq == nil {
		result.fail("no parquet output provided")
		return result
	}
	if len(pq.Data) == 0 {
		result.fail("empty parquet data")
	}
	if pq.RowCount == 0 {
		result.warn("parquet export has no rows")
	}
	if !strings.HasPrefix(pq.Checksum, "sha256:") {
		result.fail("parquet checksum in non-standard format: %.20s", pq.Checksum)
	} else if err := tables.VerifyChecksum(pq.Data, pq.Checksum); err != nil {
		result.fail("parquet %v", err)
	}
	result.ByteSize += int64(len(pq.Data))

	return result
}
