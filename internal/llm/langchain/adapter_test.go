package langchain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/joseph-ayodele/ape/internal/llm"
)

type fakeModel struct {
	resp   *llms.ContentResponse
	err    error
	chunks []string
	got    []llms.MessageContent
}

func (f *fakeModel) GenerateContent(ctx context.Context, msgs []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.got = msgs
	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}
	if opts.StreamingFunc != nil {
		for _, c := range f.chunks {
			if err := opts.StreamingFunc(ctx, []byte(c)); err != nil {
				return nil, err
			}
		}
	}
	return f.resp, f.err
}

func TestAdapterGenerate_MapsRolesAndUsage(t *testing.T) {
	m := &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		Content:        "answer",
		StopReason:     "end_turn",
		GenerationInfo: map[string]any{"InputTokens": 9, "OutputTokens": 4},
	}}}}
	a, err := NewAdapter(Config{Name: "anthropic", Model: "claude"}, m, nil)
	require.NoError(t, err)

	res, err := a.Generate(context.Background(), []llm.Message{
		{Role: llm.RoleSystem, Content: "sys"},
		{Role: llm.RoleUser, Content: "q"},
		{Role: llm.RoleAssistant, Content: "a"},
	})
	require.NoError(t, err)
	assert.Equal(t, "answer", res.Content)
	assert.Equal(t, 9, res.InputTokens)
	assert.Equal(t, 4, res.OutputTokens)
	assert.Equal(t, 13, res.TotalTokens)
	assert.Equal(t, "end_turn", res.FinishReason)

	require.Len(t, m.got, 3)
	assert.Equal(t, llms.ChatMessageTypeSystem, m.got[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, m.got[1].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, m.got[2].Role)
}

func TestAdapterGenerate_UnknownUsageKeys(t *testing.T) {
	m := &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "x"}}}}
	a, err := NewAdapter(Config{Name: "ollama"}, m, nil)
	require.NoError(t, err)
	res, err := a.Generate(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "q"}})
	require.NoError(t, err)
	assert.Zero(t, res.TotalTokens)
}

func TestAdapterGenerate_Error(t *testing.T) {
	a, err := NewAdapter(Config{Name: "bedrock"}, &fakeModel{err: errors.New("throttled")}, nil)
	require.NoError(t, err)
	_, err = a.Generate(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "q"}})
	assert.ErrorIs(t, err, llm.ErrProvider)
}

func TestAdapterStream_Chunks(t *testing.T) {
	m := &fakeModel{
		chunks: []string{"a", "b", "c"},
		resp:   &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "abc"}}},
	}
	a, err := NewAdapter(Config{Name: "anthropic", Streaming: true}, m, nil)
	require.NoError(t, err)
	ch, err := a.Stream(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "q"}})
	require.NoError(t, err)
	text, err := llm.Collect(ch)
	require.NoError(t, err)
	assert.Equal(t, "abc", text)
}

func TestAdapterStream_NoCallbackFallsBackToContent(t *testing.T) {
	m := &fakeModel{resp: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "whole"}}}}
	a, err := NewAdapter(Config{Name: "ollama", Streaming: true}, m, nil)
	require.NoError(t, err)
	ch, err := a.Stream(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "q"}})
	require.NoError(t, err)
	text, err := llm.Collect(ch)
	require.NoError(t, err)
	assert.Equal(t, "whole", text)
}

func TestUsageKeyVariants(t *testing.T) {
	in, out, total := usage(map[string]any{"prompt_tokens": float64(3), "completion_tokens": int64(5), "total_tokens": 8})
	assert.Equal(t, 3, in)
	assert.Equal(t, 5, out)
	assert.Equal(t, 8, total)
}
