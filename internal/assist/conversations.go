package assist

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/ape/internal/common"
	"github.com/joseph-ayodele/ape/internal/entity"
	"github.com/joseph-ayodele/ape/internal/llm"
)

const (
	defaultConversationTitle = "New conversation"
	maxTitleLength           = 500
	maxMessageLength         = 50000
)

type SendRequest struct {
	Content string `json:"content"`
	System  string `json:"system,omitempty"`
	Sampling
}

type SendResult struct {
	UserMessage      entity.Message `json:"user_message"`
	AssistantMessage entity.Message `json:"assistant_message"`
	Provider         string         `json:"provider"`
	Model            string         `json:"model"`
}

type ConversationDetail struct {
	*entity.Conversation
	Messages   []entity.Message  `json:"messages"`
	TokenStats entity.TokenStats `json:"token_stats"`
}

func (s *ChatService) store() error {
	if s.conversations == nil {
		return common.NewAppError("UNAVAILABLE", "conversation storage is not configured", common.ErrInternal)
	}
	return nil
}

func (s *ChatService) CreateConversation(ctx context.Context, userID uuid.UUID, title string) (*entity.Conversation, error) {
	if err := s.store(); err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if err := common.NewValidator().Field("title", title, common.MaxLength(maxTitleLength)).Error(); err != nil {
		return nil, err
	}
	if title == "" {
		title = defaultConversationTitle
	}
	c := &entity.Conversation{UserID: userID, Title: title}
	if err := s.conversations.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *ChatService) ListConversations(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entity.Conversation, error) {
	if err := s.store(); err != nil {
		return nil, err
	}
	return s.conversations.List(ctx, userID, limit, offset)
}

func (s *ChatService) Conversation(ctx context.Context, userID, id uuid.UUID) (*ConversationDetail, error) {
	c, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	msgs, err := s.conversations.Messages(ctx, id, 0)
	if err != nil {
		return nil, err
	}
	stats, err := s.conversations.TokenStats(ctx, id)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []entity.Message{}
	}
	return &ConversationDetail{Conversation: c, Messages: msgs, TokenStats: stats}, nil
}

func (s *ChatService) DeleteConversation(ctx context.Context, userID, id uuid.UUID) error {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return err
	}
	return s.conversations.Delete(ctx, id)
}

// Send stores the user turn, replies from the recent history and stores the
// reply. A failed generation leaves the user turn in place.
func (s *ChatService) Send(ctx context.Context, userID, id uuid.UUID, req SendRequest) (*SendResult, error) {
	userMsg, msgs, err := s.prepare(ctx, userID, id, req)
	if err != nil {
		return nil, err
	}
	res, err := s.gen.Generate(ctx, msgs, req.options()...)
	if err != nil {
		s.logger.Error("assist.conversation.failed", "conversation_id", id, "error", err)
		return nil, err
	}
	model := res.Model
	reply := &entity.Message{
		ConversationID: id,
		Role:           string(llm.RoleAssistant),
		Content:        res.Content,
		InputTokens:    res.InputTokens,
		OutputTokens:   res.OutputTokens,
		Model:          &model,
	}
	if err := s.conversations.AppendMessage(ctx, reply); err != nil {
		return nil, err
	}
	s.logger.Info("assist.conversation.ok", "conversation_id", id, "provider", res.Provider, "tokens", res.TotalTokens)
	return &SendResult{UserMessage: *userMsg, AssistantMessage: *reply, Provider: res.Provider, Model: res.Model}, nil
}

// SendStream relays the reply and stores it once the stream closes cleanly.
// Cancelled or failed streams store nothing beyond the user turn.
func (s *ChatService) SendStream(ctx context.Context, userID, id uuid.UUID, req SendRequest) (<-chan llm.Chunk, error) {
	_, msgs, err := s.prepare(ctx, userID, id, req)
	if err != nil {
		return nil, err
	}
	in, err := s.gen.Stream(ctx, msgs, req.options()...)
	if err != nil {
		return nil, err
	}
	out := make(chan llm.Chunk)
	go func() {
		defer close(out)
		var b strings.Builder
		for c := range in {
			if c.Err == nil {
				b.WriteString(c.Text)
			}
			select {
			case out <- c:
			case <-ctx.Done():
				for range in {
				}
				return
			}
			if c.Err != nil {
				for range in {
				}
				return
			}
		}
		if ctx.Err() != nil || b.Len() == 0 {
			return
		}
		reply := &entity.Message{ConversationID: id, Role: string(llm.RoleAssistant), Content: b.String()}
		if err := s.conversations.AppendMessage(context.WithoutCancel(ctx), reply); err != nil {
			s.logger.Error("assist.conversation.persist_failed", "conversation_id", id, "error", err)
		}
	}()
	return out, nil
}

// prepare validates the turn, checks ownership, stores the user message and
// builds the prompt from the stored history.
func (s *ChatService) prepare(ctx context.Context, userID, id uuid.UUID, req SendRequest) (*entity.Message, []llm.Message, error) {
	if err := common.NewValidator().
		Field("content", req.Content, common.Required, common.MaxLength(maxMessageLength)).
		Error(); err != nil {
		return nil, nil, err
	}
	if _, err := s.owned(ctx, userID, id); err != nil {
		return nil, nil, err
	}
	userMsg := &entity.Message{ConversationID: id, Role: string(llm.RoleUser), Content: req.Content}
	if err := s.conversations.AppendMessage(ctx, userMsg); err != nil {
		return nil, nil, err
	}
	history, err := s.conversations.Messages(ctx, id, s.contextMessages)
	if err != nil {
		return nil, nil, err
	}
	turns := make([]llm.Message, 0, len(history))
	for _, m := range history {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		turns = append(turns, llm.Message{Role: llm.Role(m.Role), Content: m.Content})
	}
	msgs, err := s.conversation(ChatRequest{Messages: turns, System: req.System})
	if err != nil {
		return nil, nil, err
	}
	return userMsg, msgs, nil
}

// owned hides other users' conversations behind NOT_FOUND.
func (s *ChatService) owned(ctx context.Context, userID, id uuid.UUID) (*entity.Conversation, error) {
	if err := s.store(); err != nil {
		return nil, err
	}
	c, err := s.conversations.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.UserID != userID {
		return nil, common.NotFoundf("conversation %s not found", id)
	}
	return c, nil
}
