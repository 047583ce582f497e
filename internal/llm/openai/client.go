package openai

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/ape/internal/llm"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type streamEvent struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (c *Client) Name() string            { return c.cfg.Name }
func (c *Client) Model() string           { return c.cfg.Model }
func (c *Client) SupportsStreaming() bool { return true }

func (c *Client) request(msgs []llm.Message, stream bool, opts ...llm.CallOption) chatRequest {
	temp, maxTokens := llm.ResolveOptions(c.cfg.Temperature, c.cfg.MaxTokens, opts...)
	out := make([]chatMessage, len(msgs))
	for i, m := range msgs {
		out[i] = chatMessage{Role: string(m.Role), Content: m.Content}
	}
	return chatRequest{
		Model:       c.cfg.Model,
		Messages:    out,
		Temperature: temp,
		MaxTokens:   maxTokens,
		Stream:      stream,
	}
}

func (c *Client) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
}

// Generate calls chat/completions once. Missing usage fields are reported as 0.
func (c *Client) Generate(ctx context.Context, msgs []llm.Message, opts ...llm.CallOption) (llm.GenerationResult, error) {
	rid := uuid.New().String()
	start := time.Now()
	endpoint := c.cfg.BaseURL + "/chat/completions"

	raw, _, err := llm.SendJSON(ctx, c.httpClient, endpoint, c.request(msgs, false, opts...), c.headers(), c.log)
	if err != nil {
		c.log.Error("llm.generate.http_error", "req_id", rid, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return llm.GenerationResult{}, llm.NewProviderError(c.cfg.Name, "generate", err)
	}

	var cc chatResponse
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.log.Error("llm.generate.decode_error", "req_id", rid, "error", err, "raw_bytes", len(raw))
		return llm.GenerationResult{}, llm.NewProviderError(c.cfg.Name, "decode", err)
	}
	if len(cc.Choices) == 0 {
		c.log.Error("llm.generate.no_choices", "req_id", rid, "raw_bytes", len(raw))
		return llm.GenerationResult{}, llm.NewProviderError(c.cfg.Name, "decode", fmt.Errorf("no choices in response"))
	}

	res := llm.GenerationResult{
		Content:      cc.Choices[0].Message.Content,
		Provider:     c.cfg.Name,
		Model:        c.cfg.Model,
		FinishReason: cc.Choices[0].FinishReason,
	}
	if cc.Usage != nil {
		res.InputTokens = cc.Usage.PromptTokens
		res.OutputTokens = cc.Usage.CompletionTokens
		res.TotalTokens = cc.Usage.TotalTokens
	}
	llm.FinalizeTokens(&res)

	c.log.Debug("llm.generate.ok",
		"req_id", rid,
		"model", c.cfg.Model,
		"input_tokens", res.InputTokens,
		"output_tokens", res.OutputTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// Stream reads server-sent events from chat/completions with stream=true.
func (c *Client) Stream(ctx context.Context, msgs []llm.Message, opts ...llm.CallOption) (<-chan llm.Chunk, error) {
	endpoint := c.cfg.BaseURL + "/chat/completions"
	resp, err := llm.OpenJSONStream(ctx, c.streamHTTP, endpoint, c.request(msgs, true, opts...), c.headers())
	if err != nil {
		c.log.Error("llm.stream.open_error", "error", err)
		return nil, llm.NewProviderError(c.cfg.Name, "stream", err)
	}

	ch := make(chan llm.Chunk)
	go func() {
		defer close(ch)
		defer func(Body io.ReadCloser) {
			if err := Body.Close(); err != nil {
				c.log.Warn("llm.stream.body_close_error", "error", err)
			}
		}(resp.Body)

		if err := c.readSSE(ctx, resp.Body, ch); err != nil {
			select {
			case ch <- llm.Chunk{Err: llm.NewProviderError(c.cfg.Name, "stream", err)}:
			case <-ctx.Done():
			}
		}
	}()
	return ch, nil
}

func (c *Client) readSSE(ctx context.Context, body io.Reader, ch chan<- llm.Chunk) error {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return nil
		}
		var ev streamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return fmt.Errorf("decode stream event: %w", err)
		}
		if len(ev.Choices) == 0 || ev.Choices[0].Delta.Content == "" {
			continue
		}
		select {
		case ch <- llm.Chunk{Text: ev.Choices[0].Delta.Content}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return nil
}
