package extract

import (
	"cmp"
	"fmt"
	"slices"
)

// Cell is one positioned table cell as reported by a backend.
type Cell struct {
	TableID string
	Row     int
	Col     int
	Text    string
}

// AssembleTables groups cells by table (in first-seen table order), orders
// each table's rows by row index then column index, and treats the first
// non-empty row as the header.
func AssembleTables(cells []Cell) []Table {
	var order []string
	byTable := map[string][]Cell{}
	for _, c := range cells {
		if _, ok := byTable[c.TableID]; !ok {
			order = append(order, c.TableID)
		}
		byTable[c.TableID] = append(byTable[c.TableID], c)
	}

	var out []Table
	for _, id := range order {
		if t, ok := buildTable(fmt.Sprintf("Table_%s", id), byTable[id]); ok {
			out = append(out, t)
		}
	}
	return out
}

func buildTable(name string, cells []Cell) (Table, bool) {
	slices.SortStableFunc(cells, func(a, b Cell) int {
		if c := cmp.Compare(a.Row, b.Row); c != 0 {
			return c
		}
		return cmp.Compare(a.Col, b.Col)
	})

	var rows [][]string
	var cur []string
	curRow := -1
	for _, c := range cells {
		if c.Row != curRow {
			if len(cur) > 0 {
				rows = append(rows, cur)
			}
			cur, curRow = nil, c.Row
		}
		if c.Text != "" {
			cur = append(cur, c.Text)
		}
	}
	if len(cur) > 0 {
		rows = append(rows, cur)
	}
	if len(rows) == 0 {
		return Table{}, false
	}
	return tableFromRows(name, rows), true
}

// tableFromRows keys rows[1:] by rows[0]. Short rows get empty values and
// cells beyond the header are dropped from the keyed view (RawRows keeps them).
func tableFromRows(name string, rows [][]string) Table {
	header := rows[0]
	t := Table{
		Name:    name,
		Columns: header,
		Rows:    make([]map[string]string, 0, len(rows)-1),
		RawRows: rows,
	}
	for _, r := range rows[1:] {
		m := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(r) {
				m[col] = r[i]
			} else {
				m[col] = ""
			}
		}
		t.Rows = append(t.Rows, m)
	}
	return t
}
