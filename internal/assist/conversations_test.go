package assist

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/ape/internal/common"
	"github.com/joseph-ayodele/ape/internal/llm"
	"github.com/joseph-ayodele/ape/internal/repository"
)

func newConversationChat(t *testing.T, gen Generator) *ChatService {
	t.Helper()
	ctx := context.Background()
	db, err := repository.Open(ctx, repository.Config{InMemory: true}, quiet())
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(ctx))
	return NewChatService(gen, 3, quiet(), WithConversations(repository.NewConversationRepository(db, quiet())))
}

func TestConversation_SendKeepsHistory(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGen{content: "ok"}
	svc := newConversationChat(t, gen)
	user := uuid.New()

	c, err := svc.CreateConversation(ctx, user, "  ")
	require.NoError(t, err)
	assert.Equal(t, defaultConversationTitle, c.Title)

	res, err := svc.Send(ctx, user, c.ID, SendRequest{Content: "first"})
	require.NoError(t, err)
	assert.Equal(t, "first", res.UserMessage.Content)
	assert.Equal(t, "ok", res.AssistantMessage.Content)
	require.NotNil(t, res.AssistantMessage.Model)
	assert.Equal(t, "fake-1", *res.AssistantMessage.Model)
	assert.Equal(t, "fake", res.Provider)

	_, err = svc.Send(ctx, user, c.ID, SendRequest{Content: "second"})
	require.NoError(t, err)
	// system plus the last three stored turns
	require.Len(t, gen.last, 4)
	assert.Equal(t, llm.RoleSystem, gen.last[0].Role)
	assert.Equal(t, []string{"ok", "second"}, []string{gen.last[2].Content, gen.last[3].Content})
	assert.Equal(t, llm.RoleUser, gen.last[3].Role)

	detail, err := svc.Conversation(ctx, user, c.ID)
	require.NoError(t, err)
	require.Len(t, detail.Messages, 4)
	var got []string
	for _, m := range detail.Messages {
		got = append(got, m.Role+":"+m.Content)
	}
	assert.Equal(t, []string{"user:first", "assistant:ok", "user:second", "assistant:ok"}, got)
	assert.Equal(t, 4, detail.TokenStats.Messages)
}

func TestConversation_OwnerScoped(t *testing.T) {
	ctx := context.Background()
	svc := newConversationChat(t, &fakeGen{content: "ok"})
	owner, other := uuid.New(), uuid.New()

	c, err := svc.CreateConversation(ctx, owner, "mine")
	require.NoError(t, err)

	_, err = svc.Conversation(ctx, other, c.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = svc.Send(ctx, other, c.ID, SendRequest{Content: "hi"})
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.ErrorIs(t, svc.DeleteConversation(ctx, other, c.ID), common.ErrNotFound)

	list, err := svc.ListConversations(ctx, other, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, svc.DeleteConversation(ctx, owner, c.ID))
	_, err = svc.Conversation(ctx, owner, c.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestConversation_FailedReplyKeepsUserTurn(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGen{err: llm.NewProviderError("groq", "generate", assert.AnError)}
	svc := newConversationChat(t, gen)
	user := uuid.New()
	c, err := svc.CreateConversation(ctx, user, "t")
	require.NoError(t, err)

	_, err = svc.Send(ctx, user, c.ID, SendRequest{Content: "hi"})
	require.Error(t, err)

	detail, err := svc.Conversation(ctx, user, c.ID)
	require.NoError(t, err)
	require.Len(t, detail.Messages, 1)
	assert.Equal(t, "user", detail.Messages[0].Role)
}

func TestConversation_StreamStoresReply(t *testing.T) {
	ctx := context.Background()
	svc := newConversationChat(t, &fakeGen{})
	user := uuid.New()
	c, err := svc.CreateConversation(ctx, user, "t")
	require.NoError(t, err)

	ch, err := svc.SendStream(ctx, user, c.ID, SendRequest{Content: "hi"})
	require.NoError(t, err)
	var b strings.Builder
	for chunk := range ch {
		require.NoError(t, chunk.Err)
		b.WriteString(chunk.Text)
	}
	assert.Equal(t, "hello", b.String())

	detail, err := svc.Conversation(ctx, user, c.ID)
	require.NoError(t, err)
	require.Len(t, detail.Messages, 2)
	assert.Equal(t, "hello", detail.Messages[1].Content)
	assert.Nil(t, detail.Messages[1].Model)
}

func TestConversation_Validation(t *testing.T) {
	ctx := context.Background()
	svc := newConversationChat(t, &fakeGen{content: "ok"})
	user := uuid.New()

	_, err := svc.CreateConversation(ctx, user, strings.Repeat("t", maxTitleLength+1))
	assert.ErrorIs(t, err, common.ErrValidation)

	c, err := svc.CreateConversation(ctx, user, "t")
	require.NoError(t, err)
	_, err = svc.Send(ctx, user, c.ID, SendRequest{Content: " "})
	assert.ErrorIs(t, err, common.ErrValidation)
	_, err = svc.Send(ctx, user, c.ID, SendRequest{Content: strings.Repeat("x", maxMessageLength+1)})
	assert.ErrorIs(t, err, common.ErrValidation)

	bare := NewChatService(&fakeGen{}, 0, quiet())
	_, err = bare.CreateConversation(ctx, user, "t")
	assert.ErrorIs(t, err, common.ErrInternal)
}
