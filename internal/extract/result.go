package extract

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

// Kind tags which variant of Result is populated.
type Kind string

const (
	KindText        Kind = "text"
	KindTable       Kind = "table"
	KindForm        Kind = "form"
	KindUnavailable Kind = "unavailable"
	KindError       Kind = "error"
)

const (
	BackendLocal = "local"
	BackendNone  = "none"
)

// Table is a header plus rows keyed by header name. RawRows keeps every row
// including the header as it was read.
type Table struct {
	Name    string              `json:"name"`
	Columns []string            `json:"columns"`
	Rows    []map[string]string `json:"rows"`
	RawRows [][]string          `json:"raw_rows,omitempty"`
}

type Metadata struct {
	Pages      int            `json:"pages"`
	Confidence float64        `json:"confidence"`
	Characters int            `json:"characters"`
	Format     string         `json:"format"`
	Method     string         `json:"method"`
	Backend    string         `json:"backend"`
	Fallback   bool           `json:"fallback,omitempty"`
	Extras     map[string]any `json:"extras,omitempty"`
}

// Result is the normalized output of one extraction. Consumers switch on
// Kind: text carries Text; table carries Tables (and usually Text); form
// carries Forms; unavailable and error carry Note.
type Result struct {
	Kind     Kind              `json:"kind"`
	Text     string            `json:"text"`
	Tables   []Table           `json:"tables"`
	Forms    map[string]string `json:"forms"`
	Metadata Metadata          `json:"metadata"`
	Note     string            `json:"note,omitempty"`
	Error    string            `json:"error,omitempty"`
	JobID    string            `json:"job_id,omitempty"`
}

// Failed reports whether the extraction produced nothing usable.
func (r Result) Failed() bool { return r.Kind == KindError }

// RowCount sums data rows over all tables.
func (r Result) RowCount() int {
	n := 0
	for _, t := range r.Tables {
		n += len(t.Rows)
	}
	return n
}

// Clone copies the tables, forms and extras so the copy can be mutated
// without touching r. Extras values are shared.
func (r Result) Clone() Result {
	out := r
	if r.Tables != nil {
		out.Tables = make([]Table, len(r.Tables))
		for i, t := range r.Tables {
			out.Tables[i] = t.clone()
		}
	}
	out.Forms = maps.Clone(r.Forms)
	out.Metadata.Extras = maps.Clone(r.Metadata.Extras)
	return out
}

func (t Table) clone() Table {
	out := t
	out.Columns = slices.Clone(t.Columns)
	if t.Rows != nil {
		out.Rows = make([]map[string]string, len(t.Rows))
		for i, row := range t.Rows {
			out.Rows[i] = maps.Clone(row)
		}
	}
	if t.RawRows != nil {
		out.RawRows = make([][]string, len(t.RawRows))
		for i, row := range t.RawRows {
			out.RawRows[i] = slices.Clone(row)
		}
	}
	return out
}

func (r *Result) setExtra(k string, v any) {
	if r.Metadata.Extras == nil {
		r.Metadata.Extras = map[string]any{}
	}
	r.Metadata.Extras[k] = v
}

// kindOf picks the most structured variant the content supports.
func kindOf(tables []Table, forms map[string]string) Kind {
	switch {
	case len(tables) > 0:
		return KindTable
	case len(forms) > 0:
		return KindForm
	default:
		return KindText
	}
}

// ErrExtraction marks a strategy failure after every fallback was tried.
var ErrExtraction = errors.New("extraction failed")

type ExtractionError struct {
	Format string
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Format, e.Err)
}

func (e *ExtractionError) Unwrap() []error { return []error{ErrExtraction, e.Err} }

func newExtractionError(format string, err error) *ExtractionError {
	return &ExtractionError{Format: format, Err: err}
}
