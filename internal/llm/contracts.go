package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/joseph-ayodele/ape/internal/common"
)

// Role is the speaker of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation. Order is chronological.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// GenerationResult is the normalized output of one successful call.
type GenerationResult struct {
	Content      string `json:"content"`
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	TotalTokens  int    `json:"total_tokens"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// Chunk is a streamed text fragment. A chunk with Err set is terminal.
type Chunk struct {
	Text string
	Err  error
}

// Provider is the uniform adapter around one text-generation backend.
type Provider interface {
	Name() string
	Model() string
	SupportsStreaming() bool
	Generate(ctx context.Context, msgs []Message, opts ...CallOption) (GenerationResult, error)
	// Stream returns an ordered channel of chunks closed on exhaustion.
	Stream(ctx context.Context, msgs []Message, opts ...CallOption) (<-chan Chunk, error)
}

// CallOptions override adapter defaults for a single call.
type CallOptions struct {
	Temperature *float32
	MaxTokens   int
}

type CallOption func(*CallOptions)

func WithTemperature(t float32) CallOption {
	return func(o *CallOptions) { o.Temperature = &t }
}

func WithMaxTokens(n int) CallOption {
	return func(o *CallOptions) {
		if n > 0 {
			o.MaxTokens = n
		}
	}
}

// ResolveOptions applies opts on top of the adapter defaults.
func ResolveOptions(temperature float32, maxTokens int, opts ...CallOption) (float32, int) {
	var o CallOptions
	for _, fn := range opts {
		fn(&o)
	}
	if o.Temperature != nil {
		temperature = *o.Temperature
	}
	if o.MaxTokens > 0 {
		maxTokens = o.MaxTokens
	}
	return temperature, maxTokens
}

// ValidateMessages rejects empty conversations and unknown roles.
func ValidateMessages(msgs []Message) error {
	v := common.NewValidator()
	v.Field("messages", len(msgs), common.CountBetween(1, 1<<16))
	for i, m := range msgs {
		switch m.Role {
		case RoleSystem, RoleUser, RoleAssistant:
		default:
			v.Field(fmt.Sprintf("messages[%d].role", i), string(m.Role), invalidRole)
		}
		if strings.TrimSpace(m.Content) == "" {
			v.Field(fmt.Sprintf("messages[%d].content", i), m.Content, common.Required)
		}
	}
	return v.Error()
}

func invalidRole(field string, value interface{}) *common.ValidationError {
	return &common.ValidationError{Field: field, Value: value, Message: "must be one of system, user, assistant"}
}

// FinalizeTokens fills TotalTokens when the upstream omitted it.
func FinalizeTokens(r *GenerationResult) {
	if r.InputTokens < 0 {
		r.InputTokens = 0
	}
	if r.OutputTokens < 0 {
		r.OutputTokens = 0
	}
	if r.TotalTokens <= 0 {
		r.TotalTokens = r.InputTokens + r.OutputTokens
	}
}
