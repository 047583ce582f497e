package textract

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/comprehend"
	ctypes "github.com/aws/aws-sdk-go-v2/service/comprehend/types"

	"github.com/joseph-ayodele/ape/internal/extract"
)

// ComprehendAPI is the subset of *comprehend.Client used here.
type ComprehendAPI interface {
	DetectEntities(ctx context.Context, in *comprehend.DetectEntitiesInput, optFns ...func(*comprehend.Options)) (*comprehend.DetectEntitiesOutput, error)
	DetectKeyPhrases(ctx context.Context, in *comprehend.DetectKeyPhrasesInput, optFns ...func(*comprehend.Options)) (*comprehend.DetectKeyPhrasesOutput, error)
	DetectSentiment(ctx context.Context, in *comprehend.DetectSentimentInput, optFns ...func(*comprehend.Options)) (*comprehend.DetectSentimentOutput, error)
}

// Analyzer implements extract.Analyzer on Comprehend (English only).
type Analyzer struct {
	api    ComprehendAPI
	logger *slog.Logger
}

func NewAnalyzer(cfg aws.Config, logger *slog.Logger) *Analyzer {
	return NewAnalyzerWithAPI(comprehend.NewFromConfig(cfg), logger)
}

func NewAnalyzerWithAPI(api ComprehendAPI, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{api: api, logger: logger}
}

func (a *Analyzer) Name() string { return "comprehend" }

func (a *Analyzer) Entities(ctx context.Context, text string) ([]extract.Entity, error) {
	out, err := a.api.DetectEntities(ctx, &comprehend.DetectEntitiesInput{
		Text:         aws.String(text),
		LanguageCode: ctypes.LanguageCodeEn,
	})
	if err != nil {
		return nil, fmt.Errorf("comprehend detect_entities: %w", err)
	}
	ents := make([]extract.Entity, 0, len(out.Entities))
	for _, e := range out.Entities {
		ents = append(ents, extract.Entity{
			Text:  aws.ToString(e.Text),
			Type:  string(e.Type),
			Score: float64(aws.ToFloat32(e.Score)),
		})
	}
	return ents, nil
}

func (a *Analyzer) Analyze(ctx context.Context, text string) (extract.TextAnalysis, error) {
	start := time.Now()
	ents, err := a.Entities(ctx, text)
	if err != nil {
		return extract.TextAnalysis{}, err
	}

	kp, err := a.api.DetectKeyPhrases(ctx, &comprehend.DetectKeyPhrasesInput{
		Text:         aws.String(text),
		LanguageCode: ctypes.LanguageCodeEn,
	})
	if err != nil {
		return extract.TextAnalysis{}, fmt.Errorf("comprehend detect_key_phrases: %w", err)
	}
	phrases := make([]extract.KeyPhrase, 0, len(kp.KeyPhrases))
	for _, p := range kp.KeyPhrases {
		phrases = append(phrases, extract.KeyPhrase{Text: aws.ToString(p.Text), Score: float64(aws.ToFloat32(p.Score))})
	}

	sent, err := a.api.DetectSentiment(ctx, &comprehend.DetectSentimentInput{
		Text:         aws.String(text),
		LanguageCode: ctypes.LanguageCodeEn,
	})
	if err != nil {
		return extract.TextAnalysis{}, fmt.Errorf("comprehend detect_sentiment: %w", err)
	}
	res := extract.TextAnalysis{
		Entities:        ents,
		KeyPhrases:      phrases,
		Sentiment:       string(sent.Sentiment),
		SentimentScores: map[string]float64{},
	}
	if res.Sentiment == "" {
		res.Sentiment = "UNKNOWN"
	}
	if s := sent.SentimentScore; s != nil {
		res.SentimentScores["Positive"] = float64(aws.ToFloat32(s.Positive))
		res.SentimentScores["Negative"] = float64(aws.ToFloat32(s.Negative))
		res.SentimentScores["Neutral"] = float64(aws.ToFloat32(s.Neutral))
		res.SentimentScores["Mixed"] = float64(aws.ToFloat32(s.Mixed))
	}

	a.logger.Debug("comprehend.analyze.ok",
		"entities", len(ents),
		"key_phrases", len(phrases),
		"sentiment", res.Sentiment,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}
