package extract

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/joseph-ayodele/ape/internal/cost"
)

const noPDFText = "No extractable text found in PDF. The document may contain only images or scanned content."

func (d *Dispatcher) extractPDF(ctx context.Context, doc document) (Result, error) {
	var backendErr error
	if d.backend != nil {
		d.report(doc.jobID, 40, "Analyzing PDF with AWS Textract", "", 0)
		res, err := d.analyzeWithBackend(ctx, doc, "aws_textract_parser")
		if err == nil {
			return res, nil
		}
		backendErr = err
		d.logger.Warn("extract.pdf.fallback", "job_id", doc.jobID, "backend", d.backend.Name(), "error", err)
	} else {
		d.report(doc.jobID, 40, "Extracting PDF text", "", 0)
	}

	text, pages, err := d.pdfToText(ctx, doc.path)
	if err != nil {
		if backendErr != nil {
			var merr *multierror.Error
			merr = multierror.Append(merr, backendErr, err)
			return Result{}, newExtractionError("pdf", merr)
		}
		return Result{}, newExtractionError("pdf", err)
	}

	text = strings.TrimSpace(text)
	conf := 0.3
	if text != "" {
		conf = 0.8
	}
	if backendErr != nil {
		conf = 0.5
	}
	res := Result{
		Kind: KindText,
		Text: text,
		Metadata: Metadata{
			Pages:      pages,
			Confidence: conf,
			Characters: len(text),
			Method:     "pdf_parser",
			Backend:    BackendLocal,
			Fallback:   backendErr != nil,
			Extras:     map[string]any{"has_text": text != ""},
		},
	}
	if backendErr != nil {
		res.setExtra("backend_error", backendErr.Error())
	}
	if text == "" {
		res.Text = noPDFText
	}
	d.report(doc.jobID, 80, fmt.Sprintf("Extracted %d pages", pages), "", 0)
	return res, nil
}

func (d *Dispatcher) pdfToText(ctx context.Context, path string) (string, int, error) {
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := d.runner.Run(ctx, d.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		if msg := strings.TrimSpace(string(errb)); msg != "" {
			return "", 0, fmt.Errorf("pdftotext: %w: %s", err, truncate(msg, 512))
		}
		return "", 0, fmt.Errorf("pdftotext: %w", err)
	}
	text := string(out)
	// form feed separates pages; pdftotext also ends with one
	pages := max(1, strings.Count(strings.TrimRight(text, "\f\n"), "\f")+1)
	return text, pages, nil
}

// analyzeWithBackend runs table/form analysis and shapes it into a Result.
func (d *Dispatcher) analyzeWithBackend(ctx context.Context, doc document, method string) (Result, error) {
	a, err := d.backend.AnalyzeDocument(ctx, doc.data)
	if err != nil {
		return Result{}, err
	}
	pages := max(a.Pages, 1)
	c := d.pricer.Textract(cost.OpAnalyzeDoc, pages)
	d.report(doc.jobID, 80, fmt.Sprintf("Detected %d tables, %d forms", len(a.Tables), len(a.Forms)), d.backend.Name(), c)

	text := strings.Join(a.Lines, "\n")
	res := Result{
		Kind:   kindOf(a.Tables, a.Forms),
		Text:   text,
		Tables: a.Tables,
		Forms:  a.Forms,
		Metadata: Metadata{
			Pages:      pages,
			Confidence: round2(a.Confidence),
			Characters: len(text),
			Method:     method,
			Backend:    d.backend.Name(),
			Extras: map[string]any{
				"tables_detected": len(a.Tables),
				"forms_detected":  len(a.Forms),
				"feature_types":   []string{"TABLES", "FORMS"},
			},
		},
	}
	if text == "" && len(a.Tables) == 0 && len(a.Forms) == 0 {
		res.Text = fmt.Sprintf("No extractable content found in %s. The document may be image-only or corrupted.", strings.ToUpper(doc.ext))
	}
	return res, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
