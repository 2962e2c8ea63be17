package enrollment

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatrixJSON_NullForAbsent(t *testing.T) {
	m := NewMatrix([]string{"A1", "B2"}, []Date{jan20, jan10})
	m.Set("A1", jan20, 3)
	m.Set("B2", jan10, 0)

	b, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"courses": ["A1", "B2"],
		"dates": ["2021-01-20", "2021-01-10"],
		"values": [[3, null], [null, 0]]
	}`, string(b))

	var back Matrix
	require.NoError(t, json.Unmarshal(b, &back))
	v, ok := back.Get("B2", jan10)
	assert.True(t, ok)
	assert.Equal(t, 0.0, v)
	_, ok = back.Get("A1", jan10)
	assert.False(t, ok)
}

func TestMatrixJSON_RejectsRaggedRows(t *testing.T) {
	var m Matrix
	err := json.Unmarshal([]byte(`{"courses":["A1"],"dates":["2021-01-10"],"values":[[1,2]]}`), &m)
	assert.Error(t, err)
}

func TestMatrixSelect(t *testing.T) {
	m := NewMatrix([]string{"A1", "B2", "C3"}, []Date{jan20, jan10})
	m.Set("A1", jan20, 1)
	m.Set("C3", jan10, 2)

	sel := m.Select([]string{"C3", "ZZZ", "A1"}, 1)
	assert.Equal(t, []string{"C3", "A1"}, sel.Courses)
	assert.Equal(t, []Date{jan20}, sel.Dates)
	v, ok := sel.Get("A1", jan20)
	assert.True(t, ok)
	assert.Equal(t, 1.0, v)

	without := m.Without("B2")
	assert.Equal(t, []string{"A1", "C3"}, without.Courses)
	assert.Len(t, without.Dates, 2)
}

func TestPivotOrdersRowsAndColumns(t *testing.T) {
	lf, err := Aggregate(collection(
		NewSnapshot(jan20, []Record{section("B2", "1", 4, 0), section("B2", "2", 6, 0)}),
		NewSnapshot(jan10, []Record{section("A1", "3", 1, 0), section(" ", "4", 99, 0)}),
	))
	require.NoError(t, err)
	assert.Equal(t, 2, lf.Len())

	m := Pivot(lf)
	assert.Equal(t, []string{"A1", "B2"}, m.Courses)
	assert.Equal(t, []Date{jan10, jan20}, m.Dates)

	v, ok := m.Get("B2", jan20)
	require.True(t, ok)
	assert.Equal(t, 10.0, v)

	ordered := OrderColumns(m)
	assert.Equal(t, []Date{jan20, jan10}, ordered.Dates)
	assert.True(t, NewestFirst(ordered))
	assert.False(t, NewestFirst(m))
}

func TestPivotKeepsDatesWithoutRows(t *testing.T) {
	lf, err := Aggregate(collection(
		NewSnapshot(jan10, []Record{section("A1", "1", 3, 0)}),
		NewSnapshot(jan20, []Record{section("", "2", 5, 0)}),
	))
	require.NoError(t, err)
	assert.Equal(t, []Date{jan10, jan20}, lf.Dates())

	m := Pivot(lf)
	assert.Equal(t, []string{"A1"}, m.Courses)
	assert.Equal(t, []Date{jan10, jan20}, m.Dates)
	_, ok := m.Get("A1", jan20)
	assert.False(t, ok)
}

func TestRenameTableValidate(t *testing.T) {
	cases := map[string]struct {
		table   RenameTable
		wantErr bool
	}{
		"empty":      {table: nil},
		"simple":     {table: RenameTable{"CHE3260": "CHE4460", "CHE3290": "CHE4490"}},
		"self":       {table: RenameTable{"A": "A"}, wantErr: true},
		"chain":      {table: RenameTable{"A": "B", "B": "C"}, wantErr: true},
		"blank code": {table: RenameTable{"A": ""}, wantErr: true},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := tc.table.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRatio(t *testing.T) {
	b := Baseline{"A": 50, "Z": 0}
	assert.Equal(t, 0.5, Ratio(25, "A", b))
	assert.Equal(t, 0.0, Ratio(25, "Z", b))
	assert.Equal(t, 0.0, Ratio(25, "missing", b))
	assert.Equal(t, 1.2, Ratio(60, "A", b))
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("20201130")
	require.NoError(t, err)
	assert.Equal(t, nov30, d)
	assert.Equal(t, "20201130", d.Stamp())

	_, err = ParseDate("2020113")
	assert.Error(t, err)
	_, err = ParseDate("20201345")
	assert.Error(t, err)
}

func TestDateJSON_ZeroRoundTrip(t *testing.T) {
	type holder struct {
		Latest   Date `json:"latest"`
		Previous Date `json:"previous"`
	}
	data, err := json.Marshal(holder{Latest: jan20})
	require.NoError(t, err)
	assert.JSONEq(t, `{"latest":"2021-01-20","previous":""}`, string(data))

	var back holder
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, jan20, back.Latest)
	assert.True(t, back.Previous.IsZero())

	var d Date
	assert.Error(t, json.Unmarshal([]byte(`"0000-00-00"`), &d))
}
