package assist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/ape/internal/common"
	"github.com/joseph-ayodele/ape/internal/llm"
)

const (
	DefaultMaxSources = 5
	sourceChars       = 2000
)

// Source is one document the brief may cite.
type Source struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type ResearchRequest struct {
	Query      string   `json:"query"`
	Sources    []Source `json:"sources"`
	MaxSources int      `json:"max_sources,omitempty"`
	Sampling
}

type Citation struct {
	Index int    `json:"index"`
	Title string `json:"title"`
}

// Brief is the structured answer the model must return.
type Brief struct {
	Summary    string     `json:"summary"`
	KeyPoints  []string   `json:"key_points"`
	Citations  []Citation `json:"citations,omitempty"`
	Gaps       []string   `json:"gaps,omitempty"`
	Confidence *float64   `json:"confidence,omitempty"`
}

type ResearchResult struct {
	Query    string   `json:"query"`
	Brief    Brief    `json:"brief"`
	Sources  []string `json:"sources"`
	Provider string   `json:"provider"`
	Model    string   `json:"model"`
	Lenient  bool     `json:"lenient,omitempty"`
}

var briefSchema = map[string]any{
	"type":                 "object",
	"required":             []any{"summary", "key_points"},
	"additionalProperties": false,
	"properties": map[string]any{
		"summary":    map[string]any{"type": "string", "minLength": 1},
		"key_points": map[string]any{"type": "array", "minItems": 1, "items": map[string]any{"type": "string"}},
		"citations": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"index"},
				"properties": map[string]any{
					"index": map[string]any{"type": "integer", "minimum": 1},
					"title": map[string]any{"type": "string"},
				},
			},
		},
		"gaps":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"confidence": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
	},
}

type ResearchService struct {
	gen     Generator
	lenient bool
	logger  *slog.Logger
}

func NewResearchService(gen Generator, lenient bool, logger *slog.Logger) *ResearchService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResearchService{gen: gen, lenient: lenient, logger: logger}
}

func researchPrompt(query string, sources []Source) []llm.Message {
	var b strings.Builder
	for i, s := range sources {
		if i > 0 {
			b.WriteString("\n\n---\n\n")
		}
		content := s.Content
		if r := []rune(content); len(r) > sourceChars {
			content = string(r[:sourceChars])
		}
		fmt.Fprintf(&b, "Source %d: %s\n\n%s", i+1, s.Title, content)
	}
	sys := "You are a research assistant. Synthesize information from the sources to answer the question. " +
		"Reply with a single JSON object and nothing else, with keys: summary (string), key_points (array of strings), " +
		"citations (array of {index, title} referring to source numbers), gaps (array of strings), confidence (number 0..1)."
	usr := fmt.Sprintf("Research Question: %s\n\nSources:\n%s", query, b.String())
	return []llm.Message{system(sys), user(usr)}
}

func (s *ResearchService) Research(ctx context.Context, req ResearchRequest) (ResearchResult, error) {
	if err := common.NewValidator().
		Field("query", req.Query, common.Required, common.MaxLength(2000)).
		Field("sources", len(req.Sources), common.CountBetween(1, 1<<10)).
		Error(); err != nil {
		return ResearchResult{}, err
	}
	limit := req.MaxSources
	if limit <= 0 {
		limit = DefaultMaxSources
	}
	sources := req.Sources
	if len(sources) > limit {
		sources = sources[:limit]
	}

	start := time.Now()
	res, err := s.gen.Generate(ctx, researchPrompt(req.Query, sources), req.options()...)
	if err != nil {
		s.logger.Error("assist.research.failed", "error", err)
		return ResearchResult{}, err
	}

	raw := llm.ExtractJSONObject(res.Content)
	lenient := false
	if err := llm.ValidateJSONAgainstSchema(briefSchema, raw); err != nil {
		if !s.lenient {
			s.logger.Error("assist.research.schema_validation_failed", "error", err, "provider", res.Provider)
			return ResearchResult{}, invalidOutput(err)
		}
		cleaned, dropped, sErr := SanitizeBrief(raw)
		if sErr != nil {
			s.logger.Error("assist.research.sanitize_failed", "error", sErr, "provider", res.Provider)
			return ResearchResult{}, invalidOutput(sErr)
		}
		if vErr := llm.ValidateJSONAgainstSchema(briefSchema, cleaned); vErr != nil {
			s.logger.Error("assist.research.schema_validation_failed", "error", vErr, "provider", res.Provider)
			return ResearchResult{}, invalidOutput(vErr)
		}
		s.logger.Warn("assist.research.lenient_sanitize_applied", "dropped", dropped)
		raw, lenient = cleaned, true
	}

	var brief Brief
	if err := json.Unmarshal(raw, &brief); err != nil {
		return ResearchResult{}, invalidOutput(err)
	}

	titles := make([]string, len(sources))
	for i, src := range sources {
		titles[i] = src.Title
	}
	s.logger.Info("assist.research.ok",
		"provider", res.Provider,
		"sources", len(sources),
		"key_points", len(brief.KeyPoints),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return ResearchResult{
		Query:    req.Query,
		Brief:    brief,
		Sources:  titles,
		Provider: res.Provider,
		Model:    res.Model,
		Lenient:  lenient,
	}, nil
}

func invalidOutput(err error) error {
	return common.NewAppError("INVALID_MODEL_OUTPUT", "model reply did not match the research brief schema",
		fmt.Errorf("%w: %v", common.ErrUpstream, err))
}

var briefKeys = map[string]bool{"summary": true, "key_points": true, "citations": true, "gaps": true, "confidence": true}

// SanitizeBrief repairs or drops fields that fail the brief schema. Required
// fields are only coerced, never invented.
func SanitizeBrief(doc []byte) ([]byte, []string, error) {
	var m map[string]any
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil, nil, err
	}
	var dropped []string
	drop := func(k string) {
		delete(m, k)
		dropped = append(dropped, k)
	}

	for k := range m {
		if !briefKeys[k] {
			drop(k)
		}
	}

	if v, ok := m["summary"]; ok {
		if s, isStr := v.(string); isStr {
			m["summary"] = strings.TrimSpace(s)
		} else {
			drop("summary")
		}
	}

	// a single string of points becomes one point per line
	switch v := m["key_points"].(type) {
	case string:
		m["key_points"] = splitLines(v)
	case []any:
		m["key_points"] = stringsOnly(v)
	}

	if v, ok := m["gaps"]; ok {
		switch t := v.(type) {
		case string:
			if g := splitLines(t); len(g) > 0 {
				m["gaps"] = g
			} else {
				drop("gaps")
			}
		case []any:
			m["gaps"] = stringsOnly(t)
		default:
			drop("gaps")
		}
	}

	if v, ok := m["citations"]; ok {
		arr, isArr := v.([]any)
		if !isArr {
			drop("citations")
		} else {
			var keep []any
			for _, c := range arr {
				obj, isObj := c.(map[string]any)
				if !isObj {
					continue
				}
				if f, isNum := obj["index"].(float64); isNum && f >= 1 && f == float64(int(f)) {
					keep = append(keep, obj)
				}
			}
			m["citations"] = keep
			if len(keep) == 0 {
				drop("citations")
			}
		}
	}

	if v, ok := m["confidence"]; ok {
		f, valid := toFloat(v)
		if f > 1 && f <= 100 {
			f /= 100 // percentages
		}
		if !valid || f < 0 || f > 1 {
			drop("confidence")
		} else {
			m["confidence"] = f
		}
	}

	b, err := json.Marshal(m)
	if err != nil {
		return nil, nil, err
	}
	return b, dropped, nil
}

func splitLines(s string) []any {
	var out []any
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*•0123456789.) "))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func stringsOnly(in []any) []any {
	out := make([]any, 0, len(in))
	for _, v := range in {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		s := strings.TrimSuffix(strings.TrimSpace(t), "%")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		if strings.HasSuffix(strings.TrimSpace(t), "%") {
			f /= 100
		}
		return f, true
	}
	return 0, false
}
