package entity

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is a user-owned chat thread.
type Conversation struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one stored turn. Seq orders messages within a conversation.
type Message struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Seq            int       `json:"-"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	InputTokens    int       `json:"input_tokens"`
	OutputTokens   int       `json:"output_tokens"`
	Model          *string   `json:"model"`
	CreatedAt      time.Time `json:"created_at"`
}

type TokenStats struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
	Messages     int `json:"message_count"`
}
