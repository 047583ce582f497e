package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSniffDelimiter(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want rune
	}{
		{"comma", "a,b,c\n1,2,3\n", ','},
		{"semicolon", "a;b\n1;2\n", ';'},
		{"tab", "a\tb\tc\n1\t2\t3\n", '\t'},
		{"pipe", "a|b\n1|2\n", '|'},
		{"quoted commas ignored", "\"x,y\";b\n\"1,2\";3\n", ';'},
		{"single column", "name\nalice\n", ','},
		{"inconsistent picks most frequent", "a;b;c\n1;2\n", ';'},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SniffDelimiter([]byte(tt.in)))
		})
	}
}

func TestParseCSV_Empty(t *testing.T) {
	for _, in := range []string{"", "  \n\n"} {
		res, err := ParseCSV([]byte(in))
		require.NoError(t, err)
		assert.Zero(t, res.RowCount())
		assert.NotEqual(t, KindError, res.Kind)
		assert.Equal(t, "CSV file is empty", res.Note)
	}
}

func TestParseCSV_HeaderAndRows(t *testing.T) {
	in := "id,name,joined,score\n1,Ann,2024-01-02,9.5\n2,Bob,2024-02-03,7\n3,Cy,,\n"
	res, err := ParseCSV([]byte(in))
	require.NoError(t, err)
	assert.Equal(t, KindTable, res.Kind)
	require.Len(t, res.Tables, 1)
	tbl := res.Tables[0]
	assert.Equal(t, []string{"id", "name", "joined", "score"}, tbl.Columns)
	require.Len(t, tbl.Rows, 3)
	assert.Equal(t, "Bob", tbl.Rows[1]["name"])
	assert.Equal(t, "", tbl.Rows[2]["score"])

	types := res.Metadata.Extras["inferred_data_types"].(map[string]string)
	assert.Equal(t, TypeNumeric, types["id"])
	assert.Equal(t, TypeText, types["name"])
	assert.Equal(t, TypeDate, types["joined"])
	assert.Equal(t, TypeNumeric, types["score"])
	assert.Contains(t, res.Text, "Total rows: 3")
}

func TestParseCSV_HeaderOnly(t *testing.T) {
	res, err := ParseCSV([]byte("a,b\n"))
	require.NoError(t, err)
	require.Len(t, res.Tables, 1)
	assert.Zero(t, res.RowCount())
	assert.Equal(t, TypeUnknown, res.Metadata.Extras["inferred_data_types"].(map[string]string)["a"])
}

func TestParseCSV_PreviewTruncates(t *testing.T) {
	in := "n\n1\n2\n3\n4\n5\n6\n7\n"
	res, err := ParseCSV([]byte(in))
	require.NoError(t, err)
	assert.Equal(t, 7, res.RowCount())
	assert.Contains(t, res.Text, "... and 2 more rows")
}

func TestAssembleTables_OrdersRowsAndColumns(t *testing.T) {
	cells := []Cell{
		{"b", 1, 1, "K"},
		{"a", 2, 2, "y"},
		{"a", 1, 2, "B"},
		{"a", 2, 1, "x"},
		{"a", 1, 1, "A"},
		{"b", 2, 1, "v"},
	}
	tables := AssembleTables(cells)
	require.Len(t, tables, 2)
	assert.Equal(t, "Table_b", tables[0].Name)
	assert.Equal(t, []string{"A", "B"}, tables[1].Columns)
	assert.Equal(t, map[string]string{"A": "x", "B": "y"}, tables[1].Rows[0])
	assert.Equal(t, [][]string{{"A", "B"}, {"x", "y"}}, tables[1].RawRows)
}
