// Package export renders batch results as XLSX workbooks.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/ape/internal/entity"
	"github.com/joseph-ayodele/ape/internal/extract"
)

const (
	summarySheet = "Summary"
	filesSheet   = "Files"
	maxSheetName = 31
	// maxTableSheets caps how many extracted tables get their own sheet.
	maxTableSheets = 20
	previewChars   = 140
)

// BatchSource is satisfied by *batch.Controller.
type BatchSource interface {
	Get(ctx context.Context, batchID, userID uuid.UUID) (*entity.BatchJob, error)
}

// Service produces XLSX bytes for batch exports.
type Service struct {
	batches BatchSource
	logger  *slog.Logger
}

func NewService(batches BatchSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{batches: batches, logger: logger}
}

// ExportBatchXLSX returns a workbook with a summary sheet, one row per file,
// and one sheet per extracted table.
func (s *Service) ExportBatchXLSX(ctx context.Context, batchID, userID uuid.UUID) ([]byte, error) {
	start := time.Now()
	job, err := s.batches.Get(ctx, batchID, userID)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	writeSummary(f, job)

	if _, err := f.NewSheet(filesSheet); err != nil {
		return nil, err
	}
	headers := []string{"Filename", "Status", "Kind", "Method", "Characters", "Rows", "Cost (USD)", "Services", "Error", "Preview"}
	writeRow(f, filesSheet, 1, toAny(headers))

	used := map[string]bool{summarySheet: true, filesSheet: true}
	tables := 0
	for i, file := range job.Files {
		var res extract.Result
		if len(file.Result) > 0 {
			if err := json.Unmarshal(file.Result, &res); err != nil {
				s.logger.Warn("export.result.decode_failed", "batch_id", batchID, "file_id", file.ID, "error", err)
			}
		}
		errText := ""
		if file.Error != nil {
			errText = *file.Error
		}
		writeRow(f, filesSheet, i+2, []any{
			file.FileName,
			string(file.Status),
			string(res.Kind),
			res.Metadata.Method,
			res.Metadata.Characters,
			res.RowCount(),
			file.CostEstimate,
			strings.Join(file.ServicesUsed, ", "),
			errText,
			truncate(strings.Join(strings.Fields(res.Text), " "), previewChars),
		})

		for _, t := range res.Tables {
			if tables >= maxTableSheets {
				break
			}
			name := sheetName(file.FileName, t.Name, used)
			if _, err := f.NewSheet(name); err != nil {
				return nil, err
			}
			writeTable(f, name, t)
			tables++
		}
	}

	_ = f.SetColWidth(filesSheet, "A", "A", 28) // filename
	_ = f.SetColWidth(filesSheet, "B", "D", 16)
	_ = f.SetColWidth(filesSheet, "I", "I", 40) // error
	_ = f.SetColWidth(filesSheet, "J", "J", 60) // preview
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"batch_id", batchID.String(),
		"files", len(job.Files),
		"tables", tables,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func writeSummary(f *excelize.File, job *entity.BatchJob) {
	rows := [][]any{
		{"Batch", job.Name},
		{"Batch ID", job.ID.String()},
		{"Status", string(job.Status)},
		{"Total files", job.TotalFiles},
		{"Processed files", job.ProcessedFiles},
		{"Failed files", job.FailedFiles},
		{"Progress (%)", job.Progress},
		{"Estimated cost (USD)", job.EstimatedCost},
		{"Actual cost (USD)", job.ActualCost},
		{"Created", job.CreatedAt.UTC().Format(time.RFC3339)},
	}
	for i, r := range rows {
		writeRow(f, summarySheet, i+1, r)
	}
	_ = f.SetColWidth(summarySheet, "A", "A", 22)
	_ = f.SetColWidth(summarySheet, "B", "B", 40)
}

func writeTable(f *excelize.File, sheet string, t extract.Table) {
	writeRow(f, sheet, 1, toAny(t.Columns))
	for i, r := range t.Rows {
		vals := make([]any, len(t.Columns))
		for j, c := range t.Columns {
			vals[j] = r[c]
		}
		writeRow(f, sheet, i+2, vals)
	}
}

func writeRow(f *excelize.File, sheet string, row int, vals []any) {
	cell, _ := excelize.CoordinatesToCellName(1, row)
	_ = f.SetSheetRow(sheet, cell, &vals)
}

// sheetName builds a unique sheet name within Excel's 31 character limit.
func sheetName(fileName, table string, used map[string]bool) string {
	base := strings.TrimSuffix(fileName, fileExt(fileName)) + " " + table
	base = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '_'
		}
		return r
	}, base)
	name := clip(base, maxSheetName)
	for n := 2; used[name]; n++ {
		suffix := fmt.Sprintf(" (%d)", n)
		name = clip(base, maxSheetName-len(suffix)) + suffix
	}
	used[name] = true
	return name
}

func fileExt(name string) string {
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		return name[i:]
	}
	return ""
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
