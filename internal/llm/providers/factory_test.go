package providers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/ape/constants"
	"github.com/joseph-ayodele/ape/internal/common"
	"github.com/joseph-ayodele/ape/internal/llm"
)

type stubProvider struct{ name string }

func (s stubProvider) Name() string            { return s.name }
func (s stubProvider) Model() string           { return "stub" }
func (s stubProvider) SupportsStreaming() bool { return false }
func (s stubProvider) Generate(context.Context, []llm.Message, ...llm.CallOption) (llm.GenerationResult, error) {
	return llm.GenerationResult{Provider: s.name, Content: "ok"}, nil
}
func (s stubProvider) Stream(ctx context.Context, m []llm.Message, o ...llm.CallOption) (<-chan llm.Chunk, error) {
	return llm.StreamFromGenerate(ctx, s, m, o...)
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestBuild_SkipsBrokenAndKeepsOrder(t *testing.T) {
	factories := map[constants.ProviderType]Factory{
		constants.ProviderGroq: func(_ context.Context, pc common.ProviderConfig, _ *slog.Logger) (llm.Provider, error) {
			if pc.APIKey == "" {
				return nil, ErrMissingCredentials
			}
			return stubProvider{name: "groq"}, nil
		},
		constants.ProviderOpenAI: func(context.Context, common.ProviderConfig, *slog.Logger) (llm.Provider, error) {
			return nil, errors.New("bad base url")
		},
		constants.ProviderAnthropic: func(context.Context, common.ProviderConfig, *slog.Logger) (llm.Provider, error) {
			return stubProvider{name: "anthropic"}, nil
		},
	}

	reg, err := Build(context.Background(), []common.ProviderConfig{
		{Type: "claude"},
		{Type: "openai", APIKey: "x"},
		{Type: "mystery"},
		{Type: "groq", APIKey: "k"},
		{Type: "groq"},
	}, quiet(), WithFactories(factories))
	require.NoError(t, err)
	assert.Equal(t, []string{"anthropic", "groq"}, reg.Providers())
}

func TestBuild_NothingUsable(t *testing.T) {
	_, err := Build(context.Background(), []common.ProviderConfig{{Type: "groq"}, {Type: "openai"}}, quiet())
	assert.ErrorIs(t, err, llm.ErrNoProviderConfigured)
}

func TestBuild_DefaultFactoriesOpenAICompatible(t *testing.T) {
	reg, err := Build(context.Background(), []common.ProviderConfig{
		{Type: "groq", APIKey: "g", Model: "llama"},
		{Type: "openai", APIKey: "o", Model: "gpt-4o-mini"},
		{Type: "ollama"},
	}, quiet())
	require.NoError(t, err)
	assert.Equal(t, []string{"groq", "openai"}, reg.Providers())
}
