package parser

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raid-health-check/pkg/types"
)

func TestRowSplitYieldsExactlySpecFields(t *testing.T) {
	specs := []RowSpec{
		{Key: "unit", Columns: []Column{Token("unit", 0), Token("status", 2), Token("cache", -2)}},
		{Key: "number", Columns: []Column{Token("number", 0), Range("name", 4, 22), Token("status", -1)}},
		{Key: "ctl", Columns: []Column{Range("ctl", 0, 4), Range("rest", 4, ToEOL)}},
	}
	line := "1   Raid Set # 000   4   2000.0GB    0.0GB    500.0GB  Normal"

	for _, spec := range specs {
		_, record, err := spec.Split(line)
		require.NoError(t, err)
		assert.ElementsMatch(t, spec.Fields(), record.Fields())
	}
}

func TestHybridSplit(t *testing.T) {
	spec := RowSpec{
		Key: "number",
		Columns: []Column{
			Token("number", 0),
			Range("name", 4, 22),
			Token("disk count", -5),
			Token("total capacity", -4),
			Token("free capacity", -3),
			Token("mindiskcap", -2),
			Token("status", -1),
		},
	}
	line := "  1 Raid Set # 000      4 2000.0GB    0.0GB  500.0GB  Normal"

	key, record, err := spec.Split(line)
	require.NoError(t, err)
	assert.Equal(t, "1", key)

	expected := types.Record{
		"number":         "1",
		"name":           "Raid Set # 000",
		"disk count":     "4",
		"total capacity": "2000.0GB",
		"free capacity":  "0.0GB",
		"mindiskcap":     "500.0GB",
		"status":         "Normal",
	}
	if diff := cmp.Diff(expected, record); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestNegativeIndicesResolvePerRow(t *testing.T) {
	spec := RowSpec{
		Key:     "name",
		Columns: []Column{Token("name", 0), Token("last", -1), Range("tail", -3, ToEOL), Range("trimmed", 0, -2)},
	}

	testCases := []struct {
		line    string
		last    string
		tail    string
		trimmed string
	}{
		{"a 1", "1", "a 1", "a"},
		{"b 2 3 4", "4", "3 4", "b 2 3"},
		{"c x y z w v", "v", "w v", "c x y z w"},
	}

	for _, tc := range testCases {
		_, record, err := spec.Split(tc.line)
		require.NoError(t, err, tc.line)
		assert.Equal(t, tc.last, record["last"], tc.line)
		assert.Equal(t, tc.tail, record["tail"], tc.line)
		assert.Equal(t, tc.trimmed, record["trimmed"], tc.line)
	}
}

func TestMissingColumnIsFault(t *testing.T) {
	testCases := []struct {
		name string
		spec RowSpec
		line string
	}{
		{"token beyond row", RowSpec{Key: "a", Columns: []Column{Token("a", 0), Token("b", 3)}}, "x y"},
		{"negative token beyond row", RowSpec{Key: "a", Columns: []Column{Token("a", 0), Token("b", -4)}}, "x y"},
		{"range beyond line", RowSpec{Key: "a", Columns: []Column{Token("a", 0), Range("b", 20, 30)}}, "short line"},
		{"range starts at line end", RowSpec{Key: "a", Columns: []Column{Token("a", 0), Range("b", 5, 12)}}, "u1 xy"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := tc.spec.Split(tc.line)
			assert.ErrorIs(t, err, ErrMissingColumn)
		})
	}
}

func TestRangeEndClampedToLine(t *testing.T) {
	spec := RowSpec{Key: "ctl", Columns: []Column{Range("ctl", 0, 4), Range("interface", 8, 50)}}

	_, record, err := spec.Split("  1     PCI")
	require.NoError(t, err)
	assert.Equal(t, "1", record["ctl"])
	assert.Equal(t, "PCI", record["interface"])
}

func TestRangeToEOLMayBeEmpty(t *testing.T) {
	spec := RowSpec{Key: "a", Columns: []Column{Token("a", 0), Range("rest", 5, ToEOL)}}

	_, record, err := spec.Split("u1 xy")
	require.NoError(t, err)
	assert.Equal(t, "", record["rest"])
}

func TestCompositeKey(t *testing.T) {
	spec := RowSpec{Key: "number", KeyWith: []string{"slot"}, Columns: []Column{Token("number", 0), Token("slot", 3), Token("state", 4)}}

	testCases := []struct {
		line string
		key  string
	}{
		{"   -       0        0        2      removed", "-:2"},
		{"   -       0        0        3      removed", "-:3"},
		{"   4       8       65        -      faulty   /dev/sde1", "4:-"},
	}
	for _, tc := range testCases {
		t.Run(tc.key, func(t *testing.T) {
			key, _, err := spec.Split(tc.line)
			require.NoError(t, err)
			assert.Equal(t, tc.key, key)
		})
	}

	_, _, err := RowSpec{Key: "number", KeyWith: []string{"slot"}, Columns: []Column{Token("number", 0)}}.Split("1 2")
	assert.ErrorIs(t, err, ErrMissingKey)
}

func TestSkipShortRows(t *testing.T) {
	spec := RowSpec{Key: "name", SkipShortRows: true, Columns: []Column{Token("name", 0), Token("state", 1), Token("read", 2)}}

	_, _, err := spec.Split("spares")
	assert.True(t, errors.Is(err, errShortRow))

	key, record, err := spec.Split("sda ONLINE 0")
	require.NoError(t, err)
	assert.Equal(t, "sda", key)
	assert.Equal(t, "0", record["read"])
}

func TestPairSplit(t *testing.T) {
	testCases := []struct {
		name  string
		spec  PairSpec
		line  string
		key   string
		value string
	}{
		{"plain", PairSpec{Delimiter: ":"}, "State               : Optimal", "State", "Optimal"},
		{"value holds delimiter", PairSpec{Delimiter: ":"}, "     Update Time : Tue Mar  4 10:15:02 2025", "Update Time", "Tue Mar  4 10:15:02 2025"},
		{"extra cutset", PairSpec{Delimiter: ":", Cutset: "."}, "Controller Count: 1.", "Controller Count", "1"},
		{"empty value", PairSpec{Delimiter: ":"}, "Name                :", "Name", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			key, value, err := tc.spec.Split(tc.line)
			require.NoError(t, err)
			assert.Equal(t, tc.key, key)
			assert.Equal(t, tc.value, value)
		})
	}

	_, _, err := PairSpec{Delimiter: ":"}.Split("no delimiter here")
	assert.ErrorIs(t, err, ErrMissingDelimiter)
}

func TestPairOrphans(t *testing.T) {
	appending := newPairs(PairSpec{Delimiter: ":", Orphans: OrphanAppend})
	_, err := appending.add("status: One or more devices has been taken offline")
	require.NoError(t, err)
	_, err = appending.add("\tsufficient replicas exist")
	require.NoError(t, err)
	assert.Equal(t, "One or more devices has been taken offline sufficient replicas exist", appending.record["status"])

	ignoring := newPairs(PairSpec{Delimiter: ":", Orphans: OrphanIgnore})
	_, err = ignoring.add("Number of enclosures on adapter 0 -- 1")
	require.NoError(t, err)
	assert.Empty(t, ignoring.record)

	strict := newPairs(PairSpec{Delimiter: ":"})
	_, err = strict.add("garbage")
	assert.ErrorIs(t, err, ErrMissingDelimiter)
}
