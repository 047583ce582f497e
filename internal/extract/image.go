package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/joseph-ayodele/ape/internal/cost"
)

// extractImage needs the backend; there is no local OCR. Missing or failing
// backends yield KindUnavailable, which is not an error.
func (d *Dispatcher) extractImage(ctx context.Context, doc document) (Result, error) {
	if d.backend == nil {
		d.logger.Info("extract.image.unavailable", "job_id", doc.jobID)
		return Result{
			Kind: KindUnavailable,
			Metadata: Metadata{
				Method:  "none",
				Backend: BackendNone,
				Extras:  map[string]any{"error": "aws_textract_unavailable"},
			},
			Note: "AWS Textract not configured. Add AWS credentials to enable image processing.",
		}, nil
	}

	d.report(doc.jobID, 40, "Processing image with AWS Textract", "", 0)
	a, err := d.backend.DetectText(ctx, doc.data)
	if err != nil {
		d.logger.Warn("extract.image.backend_failed", "job_id", doc.jobID, "backend", d.backend.Name(), "error", err)
		return Result{
			Kind: KindUnavailable,
			Metadata: Metadata{
				Method:   "aws_textract_error",
				Backend:  d.backend.Name(),
				Fallback: true,
				Extras:   map[string]any{"error": err.Error()},
			},
			Note: fmt.Sprintf("AWS Textract processing failed: %v", err),
		}, nil
	}

	c := d.pricer.Textract(cost.OpDetectText, max(a.Pages, 1))
	d.report(doc.jobID, 80, "OCR completed", d.backend.Name(), c)

	text := strings.Join(a.Lines, "\n")
	return Result{
		Kind: KindText,
		Text: text,
		Metadata: Metadata{
			Pages:      1,
			Confidence: round2(a.Confidence),
			Characters: len(text),
			Method:     "aws_textract",
			Backend:    d.backend.Name(),
			Extras: map[string]any{
				"lines":    len(a.Lines),
				"has_text": strings.TrimSpace(text) != "",
			},
		},
		Note: "Image processed with AWS Textract OCR",
	}, nil
}
