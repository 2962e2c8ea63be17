package tables

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/withObsrvr/enrollstat/internal/enrollment"
)

// ParquetOutput is an encoded table with its integrity data.
type ParquetOutput struct {
	Data     []byte
	Checksum string
	RowCount int64
}

// Extract flattens the present cells of m into rows tagged with name.
func Extract(name string, m *enrollment.Matrix) []MatrixRow {
	if m == nil {
		return nil
	}
	var rows []MatrixRow
	m.Each(func(course string, date enrollment.Date, v float64) {
		rows = append(rows, MatrixRow{
			Matrix: name,
			Course: course,
			Date:   date.String(),
			Value:  v,
			Column: int32(m.Column(date)),
		})
	})
	return rows
}

// ExtractResult flattens every matrix of a pipeline result.
func ExtractResult(res *enrollment.Result) []MatrixRow {
	var rows []MatrixRow
	rows = append(rows, Extract(MatrixEnrollment, res.Enrollment)...)
	rows = append(rows, Extract(MatrixPercentMax, res.PercentMax)...)
	rows = append(rows, Extract(MatrixVsPrevious, res.VsPrevious)...)
	rows = append(rows, Extract(MatrixPreviousCounts, res.PreviousCounts)...)
	rows = append(rows, Extract(MatrixPreviousPercentMax, res.PreviousPercentMax)...)
	return rows
}

func codec(name string) (compress.Codec, error) {
	switch name {
	case "", "snappy":
		return &parquet.Snappy, nil
	case "zstd":
		return &parquet.Zstd, nil
	case "none":
		return &parquet.Uncompressed, nil
	default:
		return nil, fmt.Errorf("unknown parquet compression %q", name)
	}
}

// ToParquet encodes rows as a single parquet file.
func ToParquet(rows []MatrixRow, cfg ParquetConfig) (*ParquetOutput, error) {
	c, err := codec(cfg.Compression)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := parquet.NewGenericWriter[MatrixRow](&buf, parquet.Compression(c))
	if _, err := w.Write(rows); err != nil {
		return nil, fmt.Errorf("write rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close writer: %w", err)
	}

	data := buf.Bytes()
	return &ParquetOutput{
		Data:     data,
		Checksum: ComputeChecksum(data),
		RowCount: int64(len(rows)),
	}, nil
}

// ReadParquet decodes a file written by ToParquet.
func ReadParquet(data []byte) ([]MatrixRow, error) {
	rows, err := parquet.Read[MatrixRow](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("read parquet: %w", err)
	}
	return rows, nil
}

// ToMatrices rebuilds matrices from long-form rows. Columns follow the stored
// column positions; rows are sorted by course.
func ToMatrices(rows []MatrixRow) (map[string]*enrollment.Matrix, error) {
	type shape struct {
		courses map[string]struct{}
		dates   map[int32]enrollment.Date
	}
	shapes := make(map[string]*shape)
	for _, r := range rows {
		s, ok := shapes[r.Matrix]
		if !ok {
			s = &shape{courses: make(map[string]struct{}), dates: make(map[int32]enrollment.Date)}
			shapes[r.Matrix] = s
		}
		d, err := enrollment.ParseISODate(r.Date)
		if err != nil {
			return nil, fmt.Errorf("matrix %s: %w", r.Matrix, err)
		}
		if prev, ok := s.dates[r.Column]; ok && prev != d {
			return nil, fmt.Errorf("matrix %s: column %d has dates %s and %s", r.Matrix, r.Column, prev, d)
		}
		s.courses[r.Course] = struct{}{}
		s.dates[r.Column] = d
	}

	out := make(map[string]*enrollment.Matrix, len(shapes))
	for name, s := range shapes {
		courses := make([]string, 0, len(s.courses))
		for c := range s.courses {
			courses = append(courses, c)
		}
		sort.Strings(courses)

		cols := make([]int32, 0, len(s.dates))
		for c := range s.dates {
			cols = append(cols, c)
		}
		sort.Slice(cols, func(i, j int) bool { return cols[i] < cols[j] })
		dates := make([]enrollment.Date, len(cols))
		for i, c := range cols {
			dates[i] = s.dates[c]
		}

		out[name] = enrollment.NewMatrix(courses, dates)
	}
	for _, r := range rows {
		d, _ := enrollment.ParseISODate(r.Date)
		out[r.Matrix].Set(r.Course, d, r.Value)
	}
	return out, nil
}
