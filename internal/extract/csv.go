package extract

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/ape/internal/cost"
)

// Delimiters tried by SniffDelimiter, in preference order on ties.
var Delimiters = []rune{',', ';', '\t', '|'}

const (
	sniffBytes   = 4 << 10
	sniffLines   = 20
	previewRows  = 5
	inferSamples = 10
)

func (d *Dispatcher) extractCSV(ctx context.Context, doc document) (Result, error) {
	d.report(doc.jobID, 40, "Processing CSV data", "", 0)

	data := bytes.TrimPrefix(doc.data, []byte("\xef\xbb\xbf"))
	res, err := ParseCSV(data)
	if err != nil {
		return Result{}, newExtractionError("csv", err)
	}
	if len(res.Tables) == 0 || d.analyzer == nil {
		return res, nil
	}

	cols := res.Tables[0].Columns
	header := strings.Join(cols, " ")
	if strings.TrimSpace(header) == "" {
		return res, nil
	}
	ents, err := d.analyzer.Entities(ctx, clip(header, analyzerLimit))
	if err != nil {
		d.logger.Warn("extract.csv.analyzer_failed", "job_id", doc.jobID, "error", err)
		res.setExtra("comprehend_error", err.Error())
		return res, nil
	}
	c := d.pricer.Comprehend([]string{cost.OpDetectEntities}, len(header))
	d.report(doc.jobID, 70, "Analyzing data types with AWS Comprehend", d.analyzer.Name(), c)
	res.setExtra("column_entities", ents)
	return res, nil
}

// ParseCSV sniffs the delimiter and keys every data row by the header. An
// empty input yields a text result with no tables.
func ParseCSV(data []byte) (Result, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Result{
			Kind:     KindText,
			Metadata: csvMetadata(0, 0, ','),
			Note:     "CSV file is empty",
		}, nil
	}

	delim := SniffDelimiter(data)
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("read csv: %w", err)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		rows = append(rows, rec)
	}
	if len(rows) == 0 {
		return Result{Kind: KindText, Metadata: csvMetadata(0, 0, delim), Note: "CSV file is empty"}, nil
	}

	for i, h := range rows[0] {
		rows[0][i] = strings.TrimSpace(h)
	}
	t := tableFromRows("CSV_Data", rows)

	md := csvMetadata(len(t.Rows), len(t.Columns), delim)
	md.Extras["inferred_data_types"] = InferColumnTypes(t)
	res := Result{
		Kind:     KindTable,
		Text:     csvSummary(t),
		Tables:   []Table{t},
		Metadata: md,
		Note:     "CSV data extracted",
	}
	return res, nil
}

func csvMetadata(rows, cols int, delim rune) Metadata {
	return Metadata{
		Pages:      1,
		Confidence: 1.0,
		Method:     "csv_parser",
		Backend:    BackendLocal,
		Extras: map[string]any{
			"rows":      rows,
			"columns":   cols,
			"delimiter": string(delim),
		},
	}
}

func csvSummary(t Table) string {
	lines := []string{
		"Columns: " + strings.Join(t.Columns, ", "),
		fmt.Sprintf("Total rows: %d", len(t.Rows)),
	}
	for i, row := range t.Rows {
		if i == previewRows {
			break
		}
		vals := make([]string, len(t.Columns))
		for j, c := range t.Columns {
			vals[j] = row[c]
		}
		lines = append(lines, fmt.Sprintf("Row %d: %s", i+1, strings.Join(vals, ", ")))
	}
	if len(t.Rows) > previewRows {
		lines = append(lines, fmt.Sprintf("... and %d more rows", len(t.Rows)-previewRows))
	}
	return strings.Join(lines, "\n")
}

// SniffDelimiter picks the candidate that splits the leading lines into the
// same, largest number of fields. Quoted sections are ignored. Falls back to
// the most frequent candidate, then ','.
func SniffDelimiter(data []byte) rune {
	sample := data
	if len(sample) > sniffBytes {
		sample = sample[:sniffBytes]
	}
	var lines []string
	for _, l := range strings.Split(string(sample), "\n") {
		l = strings.TrimRight(l, "\r")
		if strings.TrimSpace(l) == "" {
			continue
		}
		lines = append(lines, l)
		if len(lines) == sniffLines {
			break
		}
	}
	// a truncated last line would skew the counts
	if len(data) > sniffBytes && len(lines) > 1 {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return ','
	}

	best, bestCount := rune(0), 0
	fallback, fallbackTotal := rune(0), 0
	for _, d := range Delimiters {
		first := countOutsideQuotes(lines[0], d)
		consistent := first > 0
		total := 0
		for _, l := range lines {
			n := countOutsideQuotes(l, d)
			total += n
			if n != first {
				consistent = false
			}
		}
		if consistent && first > bestCount {
			best, bestCount = d, first
		}
		if total > fallbackTotal {
			fallback, fallbackTotal = d, total
		}
	}
	switch {
	case best != 0:
		return best
	case fallback != 0:
		return fallback
	default:
		return ','
	}
}

func countOutsideQuotes(line string, d rune) int {
	n, quoted := 0, false
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
		case r == d && !quoted:
			n++
		}
	}
	return n
}

// Column type labels.
const (
	TypeNumeric = "numeric"
	TypeDate    = "date"
	TypeText    = "text"
	TypeUnknown = "unknown"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"02/01/2006",
	"1/2/2006",
	"01-02-2006",
	"02.01.2006",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"Jan 2, 2006",
	"2 Jan 2006",
}

// InferColumnTypes labels each column from up to the first 10 non-empty
// values: numeric, date, text, or unknown when there is nothing to sample.
func InferColumnTypes(t Table) map[string]string {
	out := make(map[string]string, len(t.Columns))
	for _, col := range t.Columns {
		var samples []string
		for _, row := range t.Rows {
			if v := strings.TrimSpace(row[col]); v != "" {
				samples = append(samples, v)
				if len(samples) == inferSamples {
					break
				}
			}
		}
		out[col] = inferType(samples)
	}
	return out
}

func inferType(samples []string) string {
	if len(samples) == 0 {
		return TypeUnknown
	}
	numeric, date := true, true
	for _, s := range samples {
		if numeric && !isNumeric(s) {
			numeric = false
		}
		if date && !isDate(s) {
			date = false
		}
	}
	switch {
	case numeric:
		return TypeNumeric
	case date:
		return TypeDate
	default:
		return TypeText
	}
}

func isNumeric(s string) bool {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "$"), "€")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSuffix(s, "%")
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

func isDate(s string) bool {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}
