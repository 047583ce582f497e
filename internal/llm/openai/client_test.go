package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/ape/internal/llm"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{Name: "groq", APIKey: "k", BaseURL: srv.URL + "/", Model: "m"},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestGenerate_DecodesUsage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "m", req.Model)
		assert.Equal(t, "system", req.Messages[0].Role)
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"hi there"},"finish_reason":"stop"}],"usage":{"prompt_tokens":11,"completion_tokens":2}}`)
	})

	res, err := c.Generate(context.Background(), []llm.Message{
		{Role: llm.RoleSystem, Content: "be brief"},
		{Role: llm.RoleUser, Content: "hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hi there", res.Content)
	assert.Equal(t, "groq", res.Provider)
	assert.Equal(t, 11, res.InputTokens)
	assert.Equal(t, 2, res.OutputTokens)
	assert.Equal(t, 13, res.TotalTokens)
	assert.Equal(t, "stop", res.FinishReason)
}

func TestGenerate_MissingUsageDefaultsToZero(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	})
	res, err := c.Generate(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "x"}})
	require.NoError(t, err)
	assert.Zero(t, res.InputTokens)
	assert.Zero(t, res.TotalTokens)
}

func TestGenerate_HTTPErrorIsProviderError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})
	_, err := c.Generate(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "x"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrProvider)
	var se *llm.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.Code)
}

func TestGenerate_NoChoices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"choices":[]}`)
	})
	_, err := c.Generate(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "x"}})
	assert.ErrorIs(t, err, llm.ErrProvider)
}

func TestStream_ReadsSSE(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Hel", "lo"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		_, _ = io.WriteString(w, ": keep-alive\n\ndata: [DONE]\n\n")
	})

	ch, err := c.Stream(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "x"}})
	require.NoError(t, err)
	text, err := llm.Collect(ch)
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)
}

func TestStream_BadEventEndsWithError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n\ndata: {not json\n\n")
	})
	ch, err := c.Stream(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "x"}})
	require.NoError(t, err)
	text, err := llm.Collect(ch)
	assert.Equal(t, "a", text)
	assert.ErrorIs(t, err, llm.ErrProvider)
}
