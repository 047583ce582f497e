package extract

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/joseph-ayodele/ape/internal/cost"
)

// analyzerLimit is the largest text sent to the Analyzer in one call.
const analyzerLimit = 5000

var comprehendOps = []string{cost.OpDetectEntities, cost.OpKeyPhrases, cost.OpSentiment}

func (d *Dispatcher) extractText(ctx context.Context, doc document) (Result, error) {
	d.report(doc.jobID, 40, "Extracting text content", "", 0)

	text := strings.ToValidUTF8(string(doc.data), "")
	res := Result{
		Kind: KindText,
		Text: text,
		Metadata: Metadata{
			Pages:      1,
			Confidence: 1.0,
			Characters: utf8.RuneCountInString(text),
			Method:     "text_parser",
			Backend:    BackendLocal,
			Extras:     map[string]any{"lines": strings.Count(text, "\n") + 1},
		},
	}

	if d.analyzer == nil || strings.TrimSpace(text) == "" {
		return res, nil
	}

	sample := clip(text, analyzerLimit)
	analysis, err := d.analyzer.Analyze(ctx, sample)
	if err != nil {
		d.logger.Warn("extract.text.analyzer_failed", "job_id", doc.jobID, "analyzer", d.analyzer.Name(), "error", err)
		res.setExtra("comprehend_error", err.Error())
		return res, nil
	}

	c := d.pricer.Comprehend(comprehendOps, len(sample))
	d.report(doc.jobID, 70, "Analyzing text with AWS Comprehend", d.analyzer.Name(), c)

	res.Metadata.Method = "aws_comprehend_parser"
	res.Metadata.Backend = d.analyzer.Name()
	res.setExtra("entities", analysis.Entities)
	res.setExtra("key_phrases", analysis.KeyPhrases)
	res.setExtra("sentiment", analysis.Sentiment)
	res.setExtra("sentiment_scores", analysis.SentimentScores)
	return res, nil
}

// clip cuts s to at most n bytes without splitting a rune.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
