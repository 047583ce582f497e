package langchain

import (
	"context"
	"fmt"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/ollama"
)

// NewAnthropic builds an Anthropic-backed adapter.
func NewAnthropic(cfg Config, apiKey string, logger *slog.Logger) (*Adapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic api key required")
	}
	model, err := anthropic.New(
		anthropic.WithToken(apiKey),
		anthropic.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("create anthropic model: %w", err)
	}
	cfg.Streaming = true
	return NewAdapter(cfg, model, logger)
}

// NewOllama builds an adapter for a local Ollama server.
func NewOllama(cfg Config, serverURL string, logger *slog.Logger) (*Adapter, error) {
	if serverURL == "" {
		return nil, fmt.Errorf("ollama server url required")
	}
	model, err := ollama.New(
		ollama.WithModel(cfg.Model),
		ollama.WithServerURL(serverURL),
	)
	if err != nil {
		return nil, fmt.Errorf("create ollama model: %w", err)
	}
	cfg.Streaming = true
	return NewAdapter(cfg, model, logger)
}

// NewBedrock builds an adapter over AWS Bedrock using the default credential
// chain for region. A non-zero guardrail is attached to every invocation.
func NewBedrock(ctx context.Context, cfg Config, region string, guardrail Guardrail, logger *slog.Logger) (*Adapter, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	model, err := bedrock.New(
		bedrock.WithClient(bedrockruntime.NewFromConfig(awsCfg, guardrail.apply)),
		bedrock.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("create bedrock model: %w", err)
	}
	// bedrock streaming support varies by model family
	cfg.Streaming = false
	return NewAdapter(cfg, model, logger)
}
