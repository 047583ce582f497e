// Package assist builds prompts for chat, code and research requests and
// sends them through the provider registry.
package assist

import (
	"context"

	"github.com/joseph-ayodele/ape/internal/llm"
)

// Generator is satisfied by *llm.Registry.
type Generator interface {
	Generate(ctx context.Context, msgs []llm.Message, opts ...llm.CallOption) (llm.GenerationResult, error)
	Stream(ctx context.Context, msgs []llm.Message, opts ...llm.CallOption) (<-chan llm.Chunk, error)
}

// Sampling carries optional per-request overrides.
type Sampling struct {
	Temperature *float32 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
}

func (s Sampling) options() []llm.CallOption {
	var opts []llm.CallOption
	if s.Temperature != nil {
		opts = append(opts, llm.WithTemperature(*s.Temperature))
	}
	if s.MaxTokens > 0 {
		opts = append(opts, llm.WithMaxTokens(s.MaxTokens))
	}
	return opts
}

func system(content string) llm.Message { return llm.Message{Role: llm.RoleSystem, Content: content} }
func user(content string) llm.Message   { return llm.Message{Role: llm.RoleUser, Content: content} }
