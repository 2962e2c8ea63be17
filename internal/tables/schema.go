package tables

// MatrixRow is one present cell of a result matrix in long form. Absent cells
// are not written.
type MatrixRow struct {
	Matrix string  `parquet:"matrix,dict"`
	Course string  `parquet:"course,dict"`
	Date   string  `parquet:"date"` // 2006-01-02
	Value  float64 `parquet:"value"`
	// Column is the position of Date in the matrix, newest first.
	Column int32 `parquet:"column"`
}

// TableName returns the canonical table name.
func (MatrixRow) TableName() string {
	return "matrices"
}

// Matrix names used in the long-form table.
const (
	MatrixEnrollment         = "enrollment"
	MatrixPercentMax         = "percent_max"
	MatrixVsPrevious         = "vs_previous"
	MatrixPreviousCounts     = "previous_counts"
	MatrixPreviousPercentMax = "previous_percent_max"
)

// ParquetConfig configures parquet output generation.
type ParquetConfig struct {
	Compression string // "snappy" | "zstd" | "none"
}

// DefaultParquetConfig returns sensible defaults.
func DefaultParquetConfig() ParquetConfig {
	return ParquetConfig{Compression: "snappy"}
}

// SchemaVersion returns the version of the schema.
// Increment this when making breaking changes.
const SchemaVersion = "1.0.0"
