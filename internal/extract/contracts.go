package extract

import "context"

// Backend is an enhanced document analysis service (OCR with table and form
// detection). A nil Backend means local parsers only.
type Backend interface {
	Name() string
	// AnalyzeDocument detects lines, tables and key/value pairs.
	AnalyzeDocument(ctx context.Context, data []byte) (Analysis, error)
	// DetectText is plain OCR.
	DetectText(ctx context.Context, data []byte) (Analysis, error)
}

// Analysis is the normalized output of a Backend call.
type Analysis struct {
	Lines      []string
	Tables     []Table
	Forms      map[string]string
	Confidence float64 // 0..1
	Pages      int
}

// Analyzer runs NLP over extracted text.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, text string) (TextAnalysis, error)
	// Entities is the cheaper call used on CSV headers.
	Entities(ctx context.Context, text string) ([]Entity, error)
}

type Entity struct {
	Text  string  `json:"text"`
	Type  string  `json:"type"`
	Score float64 `json:"score"`
}

type KeyPhrase struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

type TextAnalysis struct {
	Entities        []Entity           `json:"entities"`
	KeyPhrases      []KeyPhrase        `json:"key_phrases"`
	Sentiment       string             `json:"sentiment"`
	SentimentScores map[string]float64 `json:"sentiment_scores"`
}

// Progress receives job milestones. *jobs.Tracker implements it.
type Progress interface {
	Create(fileName string, size int64) string
	Update(id string, progress int, step, service string, costDelta float64) error
	Complete(id string, result any) error
	Fail(id string, msg string) error
}

// Pricer prices backend calls. *cost.Tracker implements it.
type Pricer interface {
	Textract(op string, pages int) float64
	Comprehend(ops []string, textLen int) float64
}
