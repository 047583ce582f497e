package assist

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/ape/internal/common"
	"github.com/joseph-ayodele/ape/internal/llm"
)

type fakeGen struct {
	content string
	err     error
	last    []llm.Message
	opts    llm.CallOptions
}

func (f *fakeGen) Generate(_ context.Context, msgs []llm.Message, opts ...llm.CallOption) (llm.GenerationResult, error) {
	f.last = msgs
	f.opts = llm.CallOptions{}
	for _, o := range opts {
		o(&f.opts)
	}
	if f.err != nil {
		return llm.GenerationResult{}, f.err
	}
	return llm.GenerationResult{Content: f.content, Provider: "fake", Model: "fake-1"}, nil
}

func (f *fakeGen) Stream(_ context.Context, msgs []llm.Message, _ ...llm.CallOption) (<-chan llm.Chunk, error) {
	f.last = msgs
	ch := make(chan llm.Chunk, 2)
	ch <- llm.Chunk{Text: "hel"}
	ch <- llm.Chunk{Text: "lo"}
	close(ch)
	return ch, nil
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestChat_TrimsContextAndKeepsSystem(t *testing.T) {
	gen := &fakeGen{content: "ok"}
	svc := NewChatService(gen, 2, quiet())

	temp := float32(0.2)
	res, err := svc.Reply(context.Background(), ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "be brief"},
			{Role: llm.RoleUser, Content: "one"},
			{Role: llm.RoleAssistant, Content: "two"},
			{Role: llm.RoleUser, Content: "three"},
		},
		Sampling: Sampling{Temperature: &temp, MaxTokens: 64},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Content)

	require.Len(t, gen.last, 3)
	assert.Equal(t, llm.RoleSystem, gen.last[0].Role)
	assert.Equal(t, "be brief", gen.last[0].Content)
	assert.Equal(t, "two", gen.last[1].Content)
	assert.Equal(t, "three", gen.last[2].Content)
	require.NotNil(t, gen.opts.Temperature)
	assert.InDelta(t, 0.2, *gen.opts.Temperature, 1e-6)
	assert.Equal(t, 64, gen.opts.MaxTokens)
}

func TestChat_DefaultSystemAndStream(t *testing.T) {
	gen := &fakeGen{}
	svc := NewChatService(gen, 0, quiet())

	ch, err := svc.Stream(context.Background(), ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	text, err := llm.Collect(ch)
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	assert.Equal(t, defaultChatSystem, gen.last[0].Content)
}

func TestChat_RejectsEmpty(t *testing.T) {
	svc := NewChatService(&fakeGen{}, 0, quiet())
	_, err := svc.Reply(context.Background(), ChatRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestChat_ProviderErrorPassesThrough(t *testing.T) {
	boom := errors.New("boom")
	svc := NewChatService(&fakeGen{err: boom}, 0, quiet())
	_, err := svc.Reply(context.Background(), ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	assert.ErrorIs(t, err, boom)
}

func TestCode_TasksAndDefaults(t *testing.T) {
	gen := &fakeGen{content: "```go\nfunc main() {}\n```"}
	svc := NewCodeService(gen, quiet())

	res, err := svc.Run(context.Background(), CodeRequest{Description: "hello world"})
	require.NoError(t, err)
	assert.Equal(t, CodeGenerate, res.Task)
	assert.Equal(t, "python", res.Language)
	assert.Contains(t, gen.last[1].Content, "hello world")

	_, err = svc.Run(context.Background(), CodeRequest{Task: CodeFix, Language: "go", Code: "x := 1"})
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = svc.Run(context.Background(), CodeRequest{Description: "sort"})
	require.ErrorIs(t, err, common.ErrValidation)
	assert.Contains(t, err.Error(), "at least 10 characters")

	res, err = svc.Run(context.Background(), CodeRequest{Task: CodeExplain, Language: "go", Code: "x := 1"})
	require.NoError(t, err)
	assert.Equal(t, "fake", res.Provider)
	assert.Contains(t, gen.last[0].Content, "beginner")

	_, err = svc.Run(context.Background(), CodeRequest{Task: "translate", Code: "x"})
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestResearch_ValidBrief(t *testing.T) {
	gen := &fakeGen{content: "Here you go:\n```json\n" +
		`{"summary":"Go is fast.","key_points":["compiled","concurrent"],"citations":[{"index":1,"title":"doc"}],"confidence":0.8}` +
		"\n```"}
	svc := NewResearchService(gen, false, quiet())

	long := make([]byte, 5000)
	for i := range long {
		long[i] = 'a'
	}
	res, err := svc.Research(context.Background(), ResearchRequest{
		Query:      "why go",
		Sources:    []Source{{Title: "doc", Content: string(long)}, {Title: "b", Content: "x"}},
		MaxSources: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "Go is fast.", res.Brief.Summary)
	assert.Equal(t, []string{"compiled", "concurrent"}, res.Brief.KeyPoints)
	require.NotNil(t, res.Brief.Confidence)
	assert.InDelta(t, 0.8, *res.Brief.Confidence, 1e-9)
	assert.Equal(t, []string{"doc"}, res.Sources)
	assert.False(t, res.Lenient)

	prompt := gen.last[1].Content
	assert.NotContains(t, prompt, "Source 2")
	assert.Less(t, len(prompt), 2300)
}

func TestResearch_StrictRejectsBadOutput(t *testing.T) {
	gen := &fakeGen{content: `{"summary":"s","key_points":"a\nb","confidence":"80%"}`}
	svc := NewResearchService(gen, false, quiet())
	_, err := svc.Research(context.Background(), ResearchRequest{Query: "q", Sources: []Source{{Title: "t", Content: "c"}}})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrUpstream)
}

func TestResearch_LenientRepairs(t *testing.T) {
	gen := &fakeGen{content: `{"summary":" s ","key_points":"- a\n- b","confidence":"80%","extra":1}`}
	svc := NewResearchService(gen, true, quiet())
	res, err := svc.Research(context.Background(), ResearchRequest{Query: "q", Sources: []Source{{Title: "t", Content: "c"}}})
	require.NoError(t, err)
	assert.True(t, res.Lenient)
	assert.Equal(t, "s", res.Brief.Summary)
	assert.Equal(t, []string{"a", "b"}, res.Brief.KeyPoints)
	require.NotNil(t, res.Brief.Confidence)
	assert.InDelta(t, 0.8, *res.Brief.Confidence, 1e-9)
}

func TestResearch_Validation(t *testing.T) {
	svc := NewResearchService(&fakeGen{}, true, quiet())
	_, err := svc.Research(context.Background(), ResearchRequest{Query: "q"})
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestSanitizeBrief(t *testing.T) {
	out, dropped, err := SanitizeBrief([]byte(`{"summary":"x","key_points":["a",2,""],"citations":[{"index":0},{"index":2,"title":"b"},"junk"],"gaps":7,"confidence":150}`))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"gaps", "confidence"}, dropped)
	assert.JSONEq(t, `{"summary":"x","key_points":["a"],"citations":[{"index":2,"title":"b"}]}`, string(out))
}
