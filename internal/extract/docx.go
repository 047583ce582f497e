package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

const docxBody = "word/document.xml"

func (d *Dispatcher) extractDOCX(ctx context.Context, doc document) (Result, error) {
	var backendErr error
	if d.backend != nil {
		d.report(doc.jobID, 40, "Analyzing DOCX with AWS Textract", "", 0)
		res, err := d.analyzeWithBackend(ctx, doc, "aws_textract_parser")
		if err == nil {
			return res, nil
		}
		backendErr = err
		d.logger.Warn("extract.docx.fallback", "job_id", doc.jobID, "backend", d.backend.Name(), "error", err)
	} else {
		d.report(doc.jobID, 40, "Reading DOCX document", "", 0)
	}

	body, err := parseDOCX(doc.data)
	if err != nil {
		if backendErr != nil {
			return Result{}, newExtractionError("docx", fmt.Errorf("backend: %v; local: %w", backendErr, err))
		}
		return Result{}, newExtractionError("docx", err)
	}

	var tables []Table
	for i, rows := range body.tables {
		if len(rows) > 0 {
			tables = append(tables, tableFromRows(fmt.Sprintf("Table_%d", i+1), rows))
		}
	}

	text := body.text()
	conf := 0.9
	if backendErr != nil {
		conf = 0.7
	}
	res := Result{
		Kind:   kindOf(tables, nil),
		Text:   text,
		Tables: tables,
		Metadata: Metadata{
			Pages:      1,
			Confidence: conf,
			Characters: len(text),
			Method:     "docx_parser",
			Backend:    BackendLocal,
			Fallback:   backendErr != nil,
			Extras: map[string]any{
				"paragraphs": len(body.paragraphs),
				"tables":     len(body.tables),
			},
		},
	}
	if backendErr != nil {
		res.setExtra("backend_error", backendErr.Error())
	}
	if text == "" {
		res.Text = "No extractable text found in DOCX document."
	}
	d.report(doc.jobID, 80, fmt.Sprintf("Detected %d tables", len(tables)), "", 0)
	return res, nil
}

type docxBodyContent struct {
	paragraphs []string
	tables     [][][]string
}

// text renders paragraphs, then each table row as "cell | cell".
func (b docxBodyContent) text() string {
	var sb strings.Builder
	for _, p := range b.paragraphs {
		sb.WriteString(p)
		sb.WriteByte('\n')
	}
	for _, t := range b.tables {
		for _, row := range t {
			sb.WriteString(strings.Join(row, " | "))
			sb.WriteByte('\n')
		}
	}
	return strings.TrimSpace(sb.String())
}

func parseDOCX(data []byte) (docxBodyContent, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return docxBodyContent{}, fmt.Errorf("open docx archive: %w", err)
	}
	for _, f := range zr.File {
		if f.Name != docxBody {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return docxBodyContent{}, fmt.Errorf("open %s: %w", docxBody, err)
		}
		defer rc.Close()
		return parseDocumentXML(rc)
	}
	return docxBodyContent{}, fmt.Errorf("%s not found", docxBody)
}

// parseDocumentXML walks WordprocessingML. Paragraphs inside table cells
// become cell text; nested tables are flattened into their parent cell.
func parseDocumentXML(r io.Reader) (docxBodyContent, error) {
	var (
		out       docxBodyContent
		para      strings.Builder
		inPara    bool
		inText    bool
		tblDepth  int
		rows      [][]string
		row       []string
		cell      strings.Builder
		cellParas int
	)

	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return docxBodyContent{}, fmt.Errorf("parse %s: %w", docxBody, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				tblDepth++
				if tblDepth == 1 {
					rows = nil
				}
			case "tr":
				if tblDepth == 1 {
					row = nil
				}
			case "tc":
				if tblDepth == 1 {
					cell.Reset()
					cellParas = 0
				}
			case "p":
				inPara = true
				para.Reset()
			case "t":
				inText = true
			case "tab":
				if inPara {
					para.WriteByte('\t')
				}
			case "br", "cr":
				if inPara {
					para.WriteByte('\n')
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				inPara = false
				p := strings.TrimSpace(para.String())
				if tblDepth > 0 {
					if p != "" {
						if cellParas > 0 {
							cell.WriteByte(' ')
						}
						cell.WriteString(p)
						cellParas++
					}
				} else if p != "" {
					out.paragraphs = append(out.paragraphs, p)
				}
			case "tc":
				if tblDepth == 1 {
					row = append(row, cell.String())
				}
			case "tr":
				if tblDepth == 1 && len(row) > 0 {
					rows = append(rows, row)
				}
			case "tbl":
				if tblDepth == 1 {
					out.tables = append(out.tables, rows)
				}
				tblDepth--
			}
		case xml.CharData:
			if inText && inPara {
				para.Write(t)
			}
		}
	}
	return out, nil
}
