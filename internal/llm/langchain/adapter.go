// Package langchain adapts tmc/langchaingo models to llm.Provider.
package langchain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/joseph-ayodele/ape/internal/llm"
)

// contentGenerator is the slice of llms.Model the adapter depends on.
type contentGenerator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// Config for one langchaingo-backed provider.
type Config struct {
	Name        string
	Model       string
	Temperature float32
	MaxTokens   int
	Streaming   bool
}

// Adapter implements llm.Provider on top of a langchaingo model.
type Adapter struct {
	cfg   Config
	model contentGenerator
	log   *slog.Logger
}

func NewAdapter(cfg Config, model contentGenerator, logger *slog.Logger) (*Adapter, error) {
	if model == nil {
		return nil, fmt.Errorf("langchain adapter %q: nil model", cfg.Name)
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{cfg: cfg, model: model, log: logger.With("provider", cfg.Name)}, nil
}

func (a *Adapter) Name() string            { return a.cfg.Name }
func (a *Adapter) Model() string           { return a.cfg.Model }
func (a *Adapter) SupportsStreaming() bool { return a.cfg.Streaming }

func toMessageContent(msgs []llm.Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(msgs))
	for _, m := range msgs {
		var t llms.ChatMessageType
		switch m.Role {
		case llm.RoleSystem:
			t = llms.ChatMessageTypeSystem
		case llm.RoleAssistant:
			t = llms.ChatMessageTypeAI
		default:
			t = llms.ChatMessageTypeHuman
		}
		out = append(out, llms.TextParts(t, m.Content))
	}
	return out
}

func (a *Adapter) callOptions(opts []llm.CallOption) []llms.CallOption {
	temp, maxTokens := llm.ResolveOptions(a.cfg.Temperature, a.cfg.MaxTokens, opts...)
	return []llms.CallOption{
		llms.WithTemperature(float64(temp)),
		llms.WithMaxTokens(maxTokens),
	}
}

func (a *Adapter) Generate(ctx context.Context, msgs []llm.Message, opts ...llm.CallOption) (llm.GenerationResult, error) {
	start := time.Now()
	resp, err := a.model.GenerateContent(ctx, toMessageContent(msgs), a.callOptions(opts)...)
	if err != nil {
		a.log.Error("llm.generate.error", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return llm.GenerationResult{}, llm.NewProviderError(a.cfg.Name, "generate", err)
	}
	res, err := a.result(resp)
	if err != nil {
		return llm.GenerationResult{}, err
	}
	a.log.Debug("llm.generate.ok",
		"model", a.cfg.Model,
		"input_tokens", res.InputTokens,
		"output_tokens", res.OutputTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func (a *Adapter) result(resp *llms.ContentResponse) (llm.GenerationResult, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return llm.GenerationResult{}, llm.NewProviderError(a.cfg.Name, "decode", fmt.Errorf("no response choices"))
	}
	choice := resp.Choices[0]
	in, out, total := usage(choice.GenerationInfo)
	res := llm.GenerationResult{
		Content:      choice.Content,
		Provider:     a.cfg.Name,
		Model:        a.cfg.Model,
		InputTokens:  in,
		OutputTokens: out,
		TotalTokens:  total,
		FinishReason: choice.StopReason,
	}
	llm.FinalizeTokens(&res)
	return res, nil
}

// Stream uses langchaingo's streaming callback. Backends that ignore the
// callback still produce their full content as a single chunk.
func (a *Adapter) Stream(ctx context.Context, msgs []llm.Message, opts ...llm.CallOption) (<-chan llm.Chunk, error) {
	if !a.cfg.Streaming {
		return llm.StreamFromGenerate(ctx, a, msgs, opts...)
	}

	ch := make(chan llm.Chunk)
	go func() {
		defer close(ch)
		emitted := false
		callOpts := append(a.callOptions(opts), llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			select {
			case ch <- llm.Chunk{Text: string(chunk)}:
				emitted = true
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}))

		resp, err := a.model.GenerateContent(ctx, toMessageContent(msgs), callOpts...)
		if err != nil {
			a.log.Error("llm.stream.error", "error", err, "emitted", emitted)
			send(ctx, ch, llm.Chunk{Err: llm.NewProviderError(a.cfg.Name, "stream", err)})
			return
		}
		if !emitted && resp != nil && len(resp.Choices) > 0 && resp.Choices[0].Content != "" {
			send(ctx, ch, llm.Chunk{Text: resp.Choices[0].Content})
		}
	}()
	return ch, nil
}

func send(ctx context.Context, ch chan<- llm.Chunk, c llm.Chunk) {
	select {
	case ch <- c:
	case <-ctx.Done():
	}
}

// usage reads token counts out of GenerationInfo. Key names differ between
// langchaingo backends; anything missing is 0.
func usage(info map[string]any) (in, out, total int) {
	in = intField(info, "PromptTokens", "InputTokens", "input_tokens", "prompt_tokens", "prompt_eval_count")
	out = intField(info, "CompletionTokens", "OutputTokens", "output_tokens", "completion_tokens", "eval_count")
	total = intField(info, "TotalTokens", "total_tokens")
	return in, out, total
}

func intField(info map[string]any, keys ...string) int {
	for _, k := range keys {
		v, ok := info[k]
		if !ok {
			for ik, iv := range info {
				if strings.EqualFold(ik, k) {
					v, ok = iv, true
					break
				}
			}
		}
		if !ok {
			continue
		}
		switch n := v.(type) {
		case int:
			return n
		case int32:
			return int(n)
		case int64:
			return int(n)
		case float64:
			return int(n)
		case float32:
			return int(n)
		}
	}
	return 0
}
