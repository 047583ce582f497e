// Package textract implements the extract Backend and Analyzer on AWS
// Textract and Comprehend.
package textract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"

	"github.com/joseph-ayodele/ape/internal/extract"
)

// API is the subset of *textract.Client used here.
type API interface {
	AnalyzeDocument(ctx context.Context, in *textract.AnalyzeDocumentInput, optFns ...func(*textract.Options)) (*textract.AnalyzeDocumentOutput, error)
	DetectDocumentText(ctx context.Context, in *textract.DetectDocumentTextInput, optFns ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error)
}

// Backend implements extract.Backend.
type Backend struct {
	api    API
	logger *slog.Logger
}

func NewBackend(cfg aws.Config, logger *slog.Logger) *Backend {
	return NewBackendWithAPI(textract.NewFromConfig(cfg), logger)
}

func NewBackendWithAPI(api API, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{api: api, logger: logger}
}

func (b *Backend) Name() string { return "textract" }

func (b *Backend) AnalyzeDocument(ctx context.Context, data []byte) (extract.Analysis, error) {
	start := time.Now()
	out, err := b.api.AnalyzeDocument(ctx, &textract.AnalyzeDocumentInput{
		Document:     &types.Document{Bytes: data},
		FeatureTypes: []types.FeatureType{types.FeatureTypeTables, types.FeatureTypeForms},
	})
	if err != nil {
		b.logger.Error("textract.analyze.error", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return extract.Analysis{}, fmt.Errorf("textract analyze_document: %w", err)
	}
	a := FromBlocks(out.Blocks)
	if out.DocumentMetadata != nil && out.DocumentMetadata.Pages != nil {
		a.Pages = int(*out.DocumentMetadata.Pages)
	}
	b.logger.Info("textract.analyze.ok",
		"lines", len(a.Lines),
		"tables", len(a.Tables),
		"forms", len(a.Forms),
		"pages", a.Pages,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return a, nil
}

func (b *Backend) DetectText(ctx context.Context, data []byte) (extract.Analysis, error) {
	start := time.Now()
	out, err := b.api.DetectDocumentText(ctx, &textract.DetectDocumentTextInput{
		Document: &types.Document{Bytes: data},
	})
	if err != nil {
		b.logger.Error("textract.detect.error", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return extract.Analysis{}, fmt.Errorf("textract detect_document_text: %w", err)
	}
	a := FromBlocks(out.Blocks)
	if out.DocumentMetadata != nil && out.DocumentMetadata.Pages != nil {
		a.Pages = int(*out.DocumentMetadata.Pages)
	}
	b.logger.Debug("textract.detect.ok", "lines", len(a.Lines), "elapsed_ms", time.Since(start).Milliseconds())
	return a, nil
}

// FromBlocks converts a Textract block graph into an Analysis. Confidence is
// the mean LINE confidence scaled to 0..1.
func FromBlocks(blocks []types.Block) extract.Analysis {
	byID := make(map[string]types.Block, len(blocks))
	for _, bl := range blocks {
		if bl.Id != nil {
			byID[*bl.Id] = bl
		}
	}

	var (
		a     = extract.Analysis{Forms: map[string]string{}}
		cells []extract.Cell
		conf  float64
		nconf int
		pages int
	)
	for _, bl := range blocks {
		switch bl.BlockType {
		case types.BlockTypePage:
			pages++
		case types.BlockTypeLine:
			a.Lines = append(a.Lines, aws.ToString(bl.Text))
			if bl.Confidence != nil {
				conf += float64(*bl.Confidence)
				nconf++
			}
		case types.BlockTypeTable:
			tableID := aws.ToString(bl.Id)
			for _, id := range childIDs(bl, types.RelationshipTypeChild) {
				cell, ok := byID[id]
				if !ok || cell.BlockType != types.BlockTypeCell {
					continue
				}
				cells = append(cells, extract.Cell{
					TableID: tableID,
					Row:     int(aws.ToInt32(cell.RowIndex)),
					Col:     int(aws.ToInt32(cell.ColumnIndex)),
					Text:    wordsOf(cell, byID),
				})
			}
		case types.BlockTypeKeyValueSet:
			if !hasEntity(bl, types.EntityTypeKey) {
				continue
			}
			key := wordsOf(bl, byID)
			var vals []string
			for _, id := range childIDs(bl, types.RelationshipTypeValue) {
				if v, ok := byID[id]; ok {
					if s := wordsOf(v, byID); s != "" {
						vals = append(vals, s)
					}
				}
			}
			if val := strings.Join(vals, " "); key != "" && val != "" {
				a.Forms[key] = val
			}
		}
	}

	a.Tables = extract.AssembleTables(cells)
	a.Pages = pages
	if nconf > 0 {
		a.Confidence = conf / float64(nconf) / 100
	}
	return a
}

func childIDs(bl types.Block, rt types.RelationshipType) []string {
	var ids []string
	for _, r := range bl.Relationships {
		if r.Type == rt {
			ids = append(ids, r.Ids...)
		}
	}
	return ids
}

// wordsOf joins the WORD children of a block; selection marks render as
// their status.
func wordsOf(bl types.Block, byID map[string]types.Block) string {
	var words []string
	for _, id := range childIDs(bl, types.RelationshipTypeChild) {
		child, ok := byID[id]
		if !ok {
			continue
		}
		switch child.BlockType {
		case types.BlockTypeWord:
			words = append(words, aws.ToString(child.Text))
		case types.BlockTypeSelectionElement:
			words = append(words, string(child.SelectionStatus))
		}
	}
	return strings.Join(words, " ")
}

func hasEntity(bl types.Block, et types.EntityType) bool {
	for _, e := range bl.EntityTypes {
		if e == et {
			return true
		}
	}
	return false
}
