package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

func (d *Dispatcher) extractXLSX(_ context.Context, doc document) (Result, error) {
	d.report(doc.jobID, 40, "Reading workbook", "", 0)

	f, err := excelize.OpenReader(bytes.NewReader(doc.data))
	if err != nil {
		return Result{}, newExtractionError("xlsx", fmt.Errorf("open workbook: %w", err))
	}
	defer func() {
		if err := f.Close(); err != nil {
			d.logger.Warn("extract.xlsx.close_error", "job_id", doc.jobID, "error", err)
		}
	}()

	var (
		tables []Table
		text   []string
	)
	sheets := f.GetSheetList()
	for _, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return Result{}, newExtractionError("xlsx", fmt.Errorf("read sheet %q: %w", sheet, err))
		}
		rows = trimEmptyRows(rows)
		if len(rows) == 0 {
			continue
		}
		t := tableFromRows(sheet, rows)
		tables = append(tables, t)
		text = append(text, fmt.Sprintf("Sheet %s: %d rows, columns: %s", sheet, len(t.Rows), strings.Join(t.Columns, ", ")))
	}
	d.report(doc.jobID, 80, fmt.Sprintf("Read %d sheets", len(tables)), "", 0)

	types := map[string]map[string]string{}
	for _, t := range tables {
		types[t.Name] = InferColumnTypes(t)
	}
	return Result{
		Kind:   kindOf(tables, nil),
		Text:   strings.Join(text, "\n"),
		Tables: tables,
		Metadata: Metadata{
			Pages:      len(sheets),
			Confidence: 1.0,
			Method:     "xlsx_parser",
			Backend:    BackendLocal,
			Extras: map[string]any{
				"sheets":              sheets,
				"inferred_data_types": types,
			},
		},
	}, nil
}

func trimEmptyRows(rows [][]string) [][]string {
	out := rows[:0]
	for _, r := range rows {
		for _, c := range r {
			if strings.TrimSpace(c) != "" {
				out = append(out, r)
				break
			}
		}
	}
	return out
}
