package repository

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/ape/internal/common"
	"github.com/joseph-ayodele/ape/internal/entity"
)

func newTestConversations(t *testing.T) *conversationRepo {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := Open(context.Background(), Config{InMemory: true}, logger)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(context.Background()))

	repo := NewConversationRepository(db, logger).(*conversationRepo)
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return repo
}

func TestConversationRepository_CreateGetDelete(t *testing.T) {
	ctx := context.Background()
	repo := newTestConversations(t)
	user := uuid.New()

	c := &entity.Conversation{UserID: user, Title: "hello"}
	require.NoError(t, repo.Create(ctx, c))
	require.NotEqual(t, uuid.Nil, c.ID)

	got, err := repo.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Title)
	assert.Equal(t, user, got.UserID)

	require.NoError(t, repo.AppendMessage(ctx, &entity.Message{ConversationID: c.ID, Role: "user", Content: "hi"}))
	require.NoError(t, repo.Delete(ctx, c.ID))

	_, err = repo.Get(ctx, c.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	msgs, err := repo.Messages(ctx, c.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	assert.ErrorIs(t, repo.Delete(ctx, c.ID), common.ErrNotFound)
}

func TestConversationRepository_MessagesInAppendOrder(t *testing.T) {
	ctx := context.Background()
	repo := newTestConversations(t)
	c := &entity.Conversation{UserID: uuid.New(), Title: "t"}
	require.NoError(t, repo.Create(ctx, c))

	model := "gpt-4o-mini"
	contents := []string{"one", "two", "three", "four", "five"}
	for i, s := range contents {
		m := &entity.Message{ConversationID: c.ID, Role: "user", Content: s, InputTokens: i, OutputTokens: 1}
		if i%2 == 1 {
			m.Role, m.Model = "assistant", &model
		}
		require.NoError(t, repo.AppendMessage(ctx, m))
		assert.Equal(t, i+1, m.Seq)
	}

	all, err := repo.Messages(ctx, c.ID, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i, m := range all {
		assert.Equal(t, contents[i], m.Content)
	}
	require.NotNil(t, all[1].Model)
	assert.Equal(t, model, *all[1].Model)
	assert.Nil(t, all[0].Model)

	last, err := repo.Messages(ctx, c.ID, 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, "four", last[0].Content)
	assert.Equal(t, "five", last[1].Content)

	st, err := repo.TokenStats(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.TokenStats{InputTokens: 10, OutputTokens: 5, TotalTokens: 15, Messages: 5}, st)
}

func TestConversationRepository_AppendToMissingConversation(t *testing.T) {
	repo := newTestConversations(t)
	err := repo.AppendMessage(context.Background(), &entity.Message{ConversationID: uuid.New(), Role: "user", Content: "x"})
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestConversationRepository_ListByRecentActivity(t *testing.T) {
	ctx := context.Background()
	repo := newTestConversations(t)
	user := uuid.New()

	a := &entity.Conversation{UserID: user, Title: "a"}
	b := &entity.Conversation{UserID: user, Title: "b"}
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, b))
	require.NoError(t, repo.Create(ctx, &entity.Conversation{UserID: uuid.New(), Title: "other"}))

	list, err := repo.List(ctx, user, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].Title)

	// a message bumps a to the top
	require.NoError(t, repo.AppendMessage(ctx, &entity.Message{ConversationID: a.ID, Role: "user", Content: "x"}))
	list, err = repo.List(ctx, user, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, "a", list[0].Title)

	page, err := repo.List(ctx, user, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].Title)
}
