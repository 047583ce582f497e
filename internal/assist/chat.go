package assist

import (
	"context"
	"log/slog"

	"github.com/joseph-ayodele/ape/internal/llm"
	"github.com/joseph-ayodele/ape/internal/repository"
)

const (
	DefaultContextMessages = 10
	defaultChatSystem      = "You are a helpful assistant. Answer accurately and concisely."
)

type ChatRequest struct {
	Messages []llm.Message `json:"messages"`
	System   string        `json:"system,omitempty"`
	Sampling
}

type ChatService struct {
	gen             Generator
	conversations   repository.ConversationRepository
	contextMessages int
	logger          *slog.Logger
}

type ChatOption func(*ChatService)

// WithConversations enables persisted conversations.
func WithConversations(repo repository.ConversationRepository) ChatOption {
	return func(s *ChatService) { s.conversations = repo }
}

func NewChatService(gen Generator, contextMessages int, logger *slog.Logger, opts ...ChatOption) *ChatService {
	if logger == nil {
		logger = slog.Default()
	}
	if contextMessages <= 0 {
		contextMessages = DefaultContextMessages
	}
	s := &ChatService{gen: gen, contextMessages: contextMessages, logger: logger}
	for _, o := range opts {
		o(s)
	}
	return s
}

// conversation keeps the system prompt plus the most recent turns.
func (s *ChatService) conversation(req ChatRequest) ([]llm.Message, error) {
	if err := llm.ValidateMessages(req.Messages); err != nil {
		return nil, err
	}
	sys := req.System
	var turns []llm.Message
	for _, m := range req.Messages {
		if m.Role == llm.RoleSystem {
			if sys == "" {
				sys = m.Content
			}
			continue
		}
		turns = append(turns, m)
	}
	if len(turns) > s.contextMessages {
		turns = turns[len(turns)-s.contextMessages:]
	}
	if sys == "" {
		sys = defaultChatSystem
	}
	return append([]llm.Message{system(sys)}, turns...), nil
}

func (s *ChatService) Reply(ctx context.Context, req ChatRequest) (llm.GenerationResult, error) {
	msgs, err := s.conversation(req)
	if err != nil {
		return llm.GenerationResult{}, err
	}
	res, err := s.gen.Generate(ctx, msgs, req.options()...)
	if err != nil {
		s.logger.Error("assist.chat.failed", "turns", len(msgs)-1, "error", err)
		return llm.GenerationResult{}, err
	}
	s.logger.Info("assist.chat.ok", "provider", res.Provider, "model", res.Model, "tokens", res.TotalTokens)
	return res, nil
}

func (s *ChatService) Stream(ctx context.Context, req ChatRequest) (<-chan llm.Chunk, error) {
	msgs, err := s.conversation(req)
	if err != nil {
		return nil, err
	}
	return s.gen.Stream(ctx, msgs, req.options()...)
}
