package source

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/klauspost/compress/zstd"
	"github.com/xuri/excelize/v2"

	"github.com/withObsrvr/enrollstat/internal/enrollment"
)

// maxColumns limits how many leading columns of a report are read. Reports
// carry scratch columns past this point.
const maxColumns = 25

// DecodeError reports a cell that could not be converted.
type DecodeError struct {
	Key    string
	Row    int // 1-based, header is row 1
	Column string
	Value  string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: row %d column %s: invalid value %q: %v", e.Key, e.Row, e.Column, e.Value, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decoder turns report file bytes into snapshots.
type Decoder struct {
	zstdDecoder *zstd.Decoder
}

// NewDecoder creates a new report decoder.
func NewDecoder() (*Decoder, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Decoder{zstdDecoder: dec}, nil
}

// Close releases decoder resources.
func (d *Decoder) Close() {
	if d.zstdDecoder != nil {
		d.zstdDecoder.Close()
	}
}

// Decode parses the contents of f. It is safe for concurrent use.
func (d *Decoder) Decode(f SnapshotFile, data []byte) (*enrollment.Snapshot, error) {
	if f.Compressed {
		raw, err := d.zstdDecoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("%s: zstd decompress: %w", f.Key, err)
		}
		data = raw
	}

	var (
		rows [][]string
		err  error
	)
	switch f.Format {
	case FormatXLSX:
		rows, err = readXLSX(data)
	case FormatCSV:
		rows, err = readCSV(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f.Key)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Key, err)
	}
	return buildSnapshot(f.Key, f.Date, rows)
}

func readXLSX(data []byte) ([][]string, error) {
	book, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return rows, nil
}

func readCSV(data []byte) ([][]string, error) {
	rows, err := gocsv.LazyCSVReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return rows, nil
}

type fieldSetter func(r *enrollment.Record, v string) error

var fieldSetters = map[string]fieldSetter{
	enrollment.ColSubject:      func(r *enrollment.Record, v string) error { r.Subject = v; return nil },
	enrollment.ColNumber:       func(r *enrollment.Record, v string) error { r.Number = v; return nil },
	enrollment.ColCRN:          func(r *enrollment.Record, v string) error { r.CRN = v; return nil },
	enrollment.ColSection:      func(r *enrollment.Record, v string) error { r.Section = v; return nil },
	enrollment.ColStatus:       func(r *enrollment.Record, v string) error { r.Status = v; return nil },
	enrollment.ColCampus:       func(r *enrollment.Record, v string) error { r.Campus = v; return nil },
	enrollment.ColCourse:       func(r *enrollment.Record, v string) error { r.Course = v; return nil },
	enrollment.ColTitle:        func(r *enrollment.Record, v string) error { r.Title = v; return nil },
	enrollment.ColCredit:       func(r *enrollment.Record, v string) error { r.Credit = v; return nil },
	enrollment.ColMax:          intSetter(func(r *enrollment.Record, n int) { r.Max = n }),
	enrollment.ColEnrolled:     intSetter(func(r *enrollment.Record, n int) { r.Enrolled = n }),
	enrollment.ColWaitCapacity: intSetter(func(r *enrollment.Record, n int) { r.WaitCapacity = n }),
	enrollment.ColWaitList:     intSetter(func(r *enrollment.Record, n int) { r.WaitList = n }),
	enrollment.ColDays:         func(r *enrollment.Record, v string) error { r.Days = v; return nil },
	enrollment.ColTime:         func(r *enrollment.Record, v string) error { r.Time = v; return nil },
	enrollment.ColLocation:     func(r *enrollment.Record, v string) error { r.Location = v; return nil },
	enrollment.ColRoomCapacity: intSetter(func(r *enrollment.Record, n int) { r.RoomCapacity = n }),
	enrollment.ColPercentFull:  floatSetter(func(r *enrollment.Record, f float64) { r.PercentFull = f }),
	enrollment.ColBeginEnd:     func(r *enrollment.Record, v string) error { r.BeginEnd = v; return nil },
	enrollment.ColInstructor:   func(r *enrollment.Record, v string) error { r.Instructor = v; return nil },
	enrollment.ColRatio:        floatSetter(func(r *enrollment.Record, f float64) { r.Ratio = f }),
}

// headerAliases maps alternative report headings, lowercased, to column names.
var headerAliases = map[string]string{
	"enrl":    enrollment.ColEnrolled,
	"wlst":    enrollment.ColWaitList,
	"%ful":    enrollment.ColPercentFull,
	"% full":  enrollment.ColPercentFull,
	"subject": enrollment.ColSubject,
	"number":  enrollment.ColNumber,
	"status":  enrollment.ColStatus,
}

func canonicalColumn(heading string) (string, bool) {
	heading = strings.TrimSpace(heading)
	if _, ok := fieldSetters[heading]; ok {
		return heading, true
	}
	lower := strings.ToLower(heading)
	if col, ok := headerAliases[lower]; ok {
		return col, true
	}
	for col := range fieldSetters {
		if strings.ToLower(col) == lower {
			return col, true
		}
	}
	return "", false
}

// buildSnapshot maps rows onto records by header position. The first non-empty
// row is the header. Unknown headings are ignored, blank rows are skipped.
func buildSnapshot(key string, date enrollment.Date, rows [][]string) (*enrollment.Snapshot, error) {
	start := 0
	for start < len(rows) && blankRow(rows[start]) {
		start++
	}
	if start == len(rows) {
		return &enrollment.Snapshot{Date: date}, nil
	}

	header := rows[start]
	if len(header) > maxColumns {
		header = header[:maxColumns]
	}
	positions := make([]string, len(header))
	var columns []string
	seen := make(map[string]bool)
	for i, h := range header {
		col, ok := canonicalColumn(h)
		if !ok || seen[col] {
			continue
		}
		seen[col] = true
		positions[i] = col
		columns = append(columns, col)
	}

	snap := &enrollment.Snapshot{Date: date, Columns: columns}
	for n, row := range rows[start+1:] {
		if blankRow(row) {
			continue
		}
		var rec enrollment.Record
		for i, col := range positions {
			if col == "" || i >= len(row) {
				continue
			}
			v := strings.TrimSpace(row[i])
			if err := fieldSetters[col](&rec, v); err != nil {
				return nil, &DecodeError{Key: key, Row: start + n + 2, Column: col, Value: v, Err: err}
			}
		}
		snap.Records = append(snap.Records, rec)
	}
	return snap, nil
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// parseCount reads a whole count. Blank cells are 0; spreadsheet exports may
// render integers as "12.0".
func parseCount(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("not a whole number")
	}
	return int(f), nil
}

func parseDecimal(v string) (float64, error) {
	v = strings.TrimSuffix(v, "%")
	if v == "" {
		return 0, nil
	}
	return strconv.ParseFloat(strings.TrimSpace(v), 64)
}

func intSetter(set func(*enrollment.Record, int)) fieldSetter {
	return func(r *enrollment.Record, v string) error {
		n, err := parseCount(v)
		if err != nil {
			return err
		}
		set(r, n)
		return nil
	}
}

func floatSetter(set func(*enrollment.Record, float64)) fieldSetter {
	return func(r *enrollment.Record, v string) error {
		f, err := parseDecimal(v)
		if err != nil {
			return err
		}
		set(r, f)
		return nil
	}
}
