// Package providers turns ordered provider descriptors into an llm.Registry.
package providers

import (
	"context"
	"errors"
	"log/slog"

	"github.com/joseph-ayodele/ape/constants"
	"github.com/joseph-ayodele/ape/internal/common"
	"github.com/joseph-ayodele/ape/internal/llm"
	"github.com/joseph-ayodele/ape/internal/llm/langchain"
	"github.com/joseph-ayodele/ape/internal/llm/openai"
)

// Factory builds one adapter from its descriptor.
type Factory func(ctx context.Context, pc common.ProviderConfig, logger *slog.Logger) (llm.Provider, error)

// ErrMissingCredentials marks a descriptor that was skipped, not broken.
var ErrMissingCredentials = errors.New("missing credentials")

// DefaultFactories is the dispatch table keyed by provider type.
func DefaultFactories() map[constants.ProviderType]Factory {
	return map[constants.ProviderType]Factory{
		constants.ProviderOpenAI:    newOpenAI,
		constants.ProviderGroq:      newGroq,
		constants.ProviderAnthropic: newAnthropic,
		constants.ProviderOllama:    newOllama,
		constants.ProviderBedrock:   newBedrock,
	}
}

type buildOptions struct {
	factories map[constants.ProviderType]Factory
	registry  []llm.RegistryOption
}

type Option func(*buildOptions)

// WithFactories replaces the dispatch table; tests use it to inject fakes.
func WithFactories(f map[constants.ProviderType]Factory) Option {
	return func(o *buildOptions) { o.factories = f }
}

func WithRegistryOptions(opts ...llm.RegistryOption) Option {
	return func(o *buildOptions) { o.registry = append(o.registry, opts...) }
}

// Build constructs adapters in descriptor order. Descriptors without
// credentials or whose construction fails are logged and skipped; the
// registry fails with llm.ErrNoProviderConfigured if nothing remains.
func Build(ctx context.Context, descriptors []common.ProviderConfig, logger *slog.Logger, opts ...Option) (*llm.Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	bo := buildOptions{factories: DefaultFactories()}
	for _, o := range opts {
		o(&bo)
	}

	var built []llm.Provider
	for i, pc := range descriptors {
		t, ok := constants.CanonicalProvider(pc.Type)
		if !ok {
			logger.Warn("llm.providers.skip", "index", i, "type", pc.Type, "reason", "unknown type")
			continue
		}
		f, ok := bo.factories[t]
		if !ok {
			logger.Warn("llm.providers.skip", "index", i, "type", t, "reason", "no factory")
			continue
		}
		p, err := f(ctx, pc, logger)
		if err != nil {
			logger.Warn("llm.providers.skip", "index", i, "type", t, "error", err)
			continue
		}
		logger.Info("llm.providers.built", "type", t, "name", p.Name(), "model", p.Model())
		built = append(built, p)
	}
	return llm.NewRegistry(built, logger, bo.registry...)
}

func newOpenAI(_ context.Context, pc common.ProviderConfig, logger *slog.Logger) (llm.Provider, error) {
	if pc.APIKey == "" {
		return nil, ErrMissingCredentials
	}
	return openai.NewClient(openai.Config{
		Name:        string(constants.ProviderOpenAI),
		APIKey:      pc.APIKey,
		BaseURL:     pc.BaseURL,
		Model:       pc.Model,
		Temperature: pc.Temperature,
		MaxTokens:   pc.MaxTokens,
	}, logger), nil
}

func newGroq(_ context.Context, pc common.ProviderConfig, logger *slog.Logger) (llm.Provider, error) {
	if pc.APIKey == "" {
		return nil, ErrMissingCredentials
	}
	base := pc.BaseURL
	if base == "" {
		base = openai.GroqBaseURL
	}
	return openai.NewClient(openai.Config{
		Name:        string(constants.ProviderGroq),
		APIKey:      pc.APIKey,
		BaseURL:     base,
		Model:       pc.Model,
		Temperature: pc.Temperature,
		MaxTokens:   pc.MaxTokens,
	}, logger), nil
}

func newAnthropic(_ context.Context, pc common.ProviderConfig, logger *slog.Logger) (llm.Provider, error) {
	if pc.APIKey == "" {
		return nil, ErrMissingCredentials
	}
	return langchain.NewAnthropic(langchainConfig(constants.ProviderAnthropic, pc), pc.APIKey, logger)
}

func newOllama(_ context.Context, pc common.ProviderConfig, logger *slog.Logger) (llm.Provider, error) {
	if pc.BaseURL == "" {
		return nil, ErrMissingCredentials
	}
	return langchain.NewOllama(langchainConfig(constants.ProviderOllama, pc), pc.BaseURL, logger)
}

func newBedrock(ctx context.Context, pc common.ProviderConfig, logger *slog.Logger) (llm.Provider, error) {
	if pc.Region == "" {
		return nil, ErrMissingCredentials
	}
	guardrail := langchain.Guardrail{ID: pc.GuardrailID, Version: pc.GuardrailVersion}
	if guardrail.ID != "" {
		logger.Info("llm.providers.bedrock_guardrail", "guardrail_id", guardrail.ID, "version", guardrail.Version)
	}
	return langchain.NewBedrock(ctx, langchainConfig(constants.ProviderBedrock, pc), pc.Region, guardrail, logger)
}

func langchainConfig(t constants.ProviderType, pc common.ProviderConfig) langchain.Config {
	return langchain.Config{
		Name:        string(t),
		Model:       pc.Model,
		Temperature: pc.Temperature,
		MaxTokens:   pc.MaxTokens,
	}
}
