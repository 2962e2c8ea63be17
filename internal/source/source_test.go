package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/xuri/excelize/v2"
	"gocloud.dev/blob/memblob"

	"github.com/withObsrvr/enrollstat/internal/enrollment"
	"github.com/withObsrvr/enrollstat/internal/term"
)

var spring21 = term.MustParse("Spring2021")

func TestParseSnapshotKey(t *testing.T) {
	tests := []struct {
		key        string
		ok         bool
		term       string
		date       enrollment.Date
		format     Format
		compressed bool
	}{
		{"count/Spring2021_20201130.xlsx", true, "Spring2021", enrollment.NewDate(2020, 11, 30), FormatXLSX, false},
		{"Spring2021_20210105.csv.zst", true, "Spring2021", enrollment.NewDate(2021, 1, 5), FormatCSV, true},
		{"a/b/Fall2020_20200901.xlsx.zst", true, "Fall2020", enrollment.NewDate(2020, 9, 1), FormatXLSX, true},
		{"~$Spring2021_20201130.xlsx", false, "", enrollment.Date{}, "", false},
		{"Spring2021_2020113.xlsx", false, "", enrollment.Date{}, "", false},
		{"Spring2021_20201130.xls", false, "", enrollment.Date{}, "", false},
		{"Spring2021_20201399.csv", false, "", enrollment.Date{}, "", false},
	}

	for _, tt := range tests {
		f, ok := ParseSnapshotKey(tt.key)
		if ok != tt.ok {
			t.Errorf("ParseSnapshotKey(%q) ok = %v, want %v", tt.key, ok, tt.ok)
			continue
		}
		if !ok {
			continue
		}
		if f.Term != tt.term || f.Date != tt.date || f.Format != tt.format || f.Compressed != tt.compressed {
			t.Errorf("ParseSnapshotKey(%q) = %+v", tt.key, f)
		}
	}
}

func TestIndexOrdersAndRejectsDuplicates(t *testing.T) {
	idx := NewIndex(spring21)
	for _, key := range []string{
		"Spring2021_20210120.xlsx",
		"Spring2021_20201130.xlsx",
		"Spring2020_20191130.xlsx",
		"Spring2021_20210110.csv",
	} {
		f, ok := ParseSnapshotKey(key)
		if !ok {
			t.Fatalf("ParseSnapshotKey(%q) failed", key)
		}
		if _, err := idx.Add(f); err != nil {
			t.Fatalf("Add(%q) failed: %v", key, err)
		}
	}

	if idx.Count() != 3 {
		t.Fatalf("Count() = %d, want 3 (other term skipped)", idx.Count())
	}
	dates := idx.Dates()
	for i := 1; i < len(dates); i++ {
		if !dates[i-1].Before(dates[i]) {
			t.Errorf("dates not ascending: %v", dates)
		}
	}
	if latest, _ := idx.Latest(); latest.Date != enrollment.NewDate(2021, 1, 20) {
		t.Errorf("Latest() = %v", latest.Date)
	}

	dup, _ := ParseSnapshotKey("archive/Spring2021_20210110.xlsx")
	if _, err := idx.Add(dup); !errors.Is(err, ErrDuplicateSnapshot) {
		t.Errorf("duplicate date: error = %v, want ErrDuplicateSnapshot", err)
	}
}

func xlsxReport(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()
	book := excelize.NewFile()
	defer book.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		if err := book.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	buf, err := book.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func compress(t *testing.T, data []byte) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil)
}

func TestDecoderFormats(t *testing.T) {
	dec, err := NewDecoder()
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()

	csvData := []byte("Subj,Nmbr,CRN,S,Course,Max,Enrl,WLst,%Ful\n" +
		"CHE,1010,101,A,CHE1010,30,25,2,83%\n" +
		",,,,,,,,\n" +
		"CHE,1010,102,A,CHE1010,30,,0,0\n")
	xlsxData := xlsxReport(t, [][]interface{}{
		{"Course", "CRN", "Max", "Enrolled", "S"},
		{"CHE1010", "101", 30, 25, "A"},
		{"CHE1010", "102", 30, 12, "C"},
	})

	tests := []struct {
		key  string
		data []byte
	}{
		{"Spring2021_20201130.csv", csvData},
		{"Spring2021_20201130.csv.zst", compress(t, csvData)},
		{"Spring2021_20201130.xlsx", xlsxData},
		{"Spring2021_20201130.xlsx.zst", compress(t, xlsxData)},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			f, ok := ParseSnapshotKey(tt.key)
			if !ok {
				t.Fatalf("bad key %q", tt.key)
			}
			snap, err := dec.Decode(f, tt.data)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if len(snap.Records) != 2 {
				t.Fatalf("got %d records, want 2", len(snap.Records))
			}
			for _, col := range []string{enrollment.ColCourse, enrollment.ColCRN, enrollment.ColEnrolled, enrollment.ColMax} {
				if !snap.HasColumn(col) {
					t.Errorf("missing column %s in %v", col, snap.Columns)
				}
			}
			if got := snap.Records[0].Enrolled; got != 25 {
				t.Errorf("first record Enrolled = %d, want 25", got)
			}
			if got := snap.Records[0].Max; got != 30 {
				t.Errorf("first record Max = %d, want 30", got)
			}
		})
	}
}

func TestDecoderBlankAndInvalidCounts(t *testing.T) {
	dec, err := NewDecoder()
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()

	f, _ := ParseSnapshotKey("Spring2021_20201130.csv")

	snap, err := dec.Decode(f, []byte("Course,CRN,Enrolled,Max\nX101,1,,12.0\n"))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if r := snap.Records[0]; r.Enrolled != 0 || r.Max != 12 {
		t.Errorf("blank/float counts decoded as %+v", r)
	}

	_, err = dec.Decode(f, []byte("Course,CRN,Enrolled\nX101,1,many\n"))
	var decErr *DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("error = %v, want *DecodeError", err)
	}
	if decErr.Row != 2 || decErr.Column != enrollment.ColEnrolled {
		t.Errorf("DecodeError = %+v", decErr)
	}
}

func newMemSource(t *testing.T, files map[string][]byte, opts Options) *BlobSource {
	t.Helper()
	ctx := context.Background()
	bucket := memblob.OpenBucket(nil)
	for key, data := range files {
		if err := bucket.WriteAll(ctx, key, data, nil); err != nil {
			t.Fatal(err)
		}
	}
	src, err := NewBlobSource(bucket, "count/", opts, "mem")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { src.Close() })
	return src
}

func TestBlobSourceLoad(t *testing.T) {
	report := func(enrolled string) []byte {
		return []byte("Course,CRN,Enrolled,Max\nX101,1," + enrolled + ",50\n")
	}
	src := newMemSource(t, map[string][]byte{
		"count/Spring2021_20210110.csv":         report("20"),
		"count/nested/Spring2021_20210120.csv":  report("25"),
		"count/Spring2020_20200110.csv":         report("40"),
		"count/notes.txt":                       []byte("ignored"),
		"elsewhere/Spring2021_20210130.csv":     report("99"),
		"count/Spring2021_20210125.csv.partial": report("1"),
	}, Options{Concurrency: 2})

	coll, err := src.Load(context.Background(), spring21)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(coll) != 2 {
		t.Fatalf("got %d snapshots, want 2", len(coll))
	}
	snap := coll[enrollment.NewDate(2021, 1, 20)]
	if snap == nil || snap.Records[0].Enrolled != 25 {
		t.Errorf("snapshot 2021-01-20 = %+v", snap)
	}
}

func TestBlobSourceLimits(t *testing.T) {
	files := map[string][]byte{}
	for _, key := range []string{"20210110", "20210111", "20210112"} {
		files["count/Spring2021_"+key+".csv"] = []byte("Course,CRN,Enrolled\nX,1,1\n")
	}
	src := newMemSource(t, files, Options{MaxSnapshots: 2})

	if _, err := src.Load(context.Background(), spring21); !errors.Is(err, ErrTooManySnapshots) {
		t.Errorf("error = %v, want ErrTooManySnapshots", err)
	}
	if _, err := src.Load(context.Background(), term.MustParse("Fall2021")); !errors.Is(err, ErrNoSnapshotFiles) {
		t.Errorf("error = %v, want ErrNoSnapshotFiles", err)
	}
}

func TestLocalSource(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "2021"), 0o755); err != nil {
		t.Fatal(err)
	}
	data := xlsxReport(t, [][]interface{}{
		{"Course", "CRN", "Max", "Enrolled"},
		{"X101", "1", 50, 20},
	})
	if err := os.WriteFile(filepath.Join(dir, "2021", "Spring2021_20210110.xlsx"), data, 0o644); err != nil {
		t.Fatal(err)
	}

	src, err := NewLocalSource(dir, Options{})
	if err != nil {
		t.Fatalf("NewLocalSource failed: %v", err)
	}
	defer src.Close()

	idx, err := src.Index(context.Background(), spring21)
	if err != nil {
		t.Fatalf("Index failed: %v", err)
	}
	if idx.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", idx.Count())
	}
	if idx.Fingerprint() == NewIndex(spring21).Fingerprint() {
		t.Error("fingerprint should change with the file set")
	}

	if _, err := NewLocalSource(filepath.Join(dir, "missing"), Options{}); err == nil {
		t.Error("missing directory should fail")
	}
}
