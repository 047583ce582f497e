package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/ape/internal/common"
	"github.com/joseph-ayodele/ape/internal/entity"
)

const (
	tableConversations = "conversations"
	tableMessages      = "messages"
)

var (
	conversationColumns = []string{"id", "user_id", "title", "created_at", "updated_at"}
	messageColumns      = []string{
		"id", "conversation_id", "seq", "role", "content", "input_tokens", "output_tokens", "model", "created_at",
	}
)

type ConversationRepository interface {
	Create(ctx context.Context, c *entity.Conversation) error
	Get(ctx context.Context, id uuid.UUID) (*entity.Conversation, error)
	// List returns the user's conversations, most recently active first.
	List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entity.Conversation, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// AppendMessage assigns the next sequence number and bumps the
	// conversation's updated_at in the same transaction.
	AppendMessage(ctx context.Context, m *entity.Message) error
	// Messages returns the last limit messages in append order; limit <= 0
	// returns all of them.
	Messages(ctx context.Context, conversationID uuid.UUID, limit int) ([]entity.Message, error)
	TokenStats(ctx context.Context, conversationID uuid.UUID) (entity.TokenStats, error)
}

type conversationRepo struct {
	drv    *entsql.Driver
	now    func() time.Time
	logger *slog.Logger
}

func NewConversationRepository(db *DB, logger *slog.Logger) ConversationRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &conversationRepo{drv: db.Driver(), now: time.Now, logger: logger}
}

func (r *conversationRepo) builder() *entsql.DialectBuilder {
	return entsql.Dialect(r.drv.Dialect())
}

func (r *conversationRepo) Create(ctx context.Context, c *entity.Conversation) error {
	now := r.now().UTC()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt, c.UpdatedAt = now, now
	query, args := r.builder().Insert(tableConversations).
		Columns(conversationColumns...).
		Values(c.ID.String(), c.UserID.String(), c.Title, now, now).
		Query()
	if err := r.drv.Exec(ctx, query, args, nil); err != nil {
		r.logger.Error("failed to insert conversation", "conversation_id", c.ID, "error", err)
		return fmt.Errorf("%w: insert conversation: %v", common.ErrDatabase, err)
	}
	r.logger.Info("conversation created", "conversation_id", c.ID, "user_id", c.UserID)
	return nil
}

func (r *conversationRepo) Get(ctx context.Context, id uuid.UUID) (*entity.Conversation, error) {
	query, args := r.builder().Select(conversationColumns...).
		From(entsql.Table(tableConversations)).
		Where(entsql.EQ("id", id.String())).
		Query()
	out, err := r.queryConversations(ctx, query, args)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, common.NotFoundf("conversation %s not found", id)
	}
	return out[0], nil
}

func (r *conversationRepo) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entity.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query, args := r.builder().Select(conversationColumns...).
		From(entsql.Table(tableConversations)).
		Where(entsql.EQ("user_id", userID.String())).
		OrderBy(entsql.Desc("updated_at"), entsql.Desc("created_at")).
		Limit(limit).
		Offset(offset).
		Query()
	return r.queryConversations(ctx, query, args)
}

func (r *conversationRepo) Delete(ctx context.Context, id uuid.UUID) (err error) {
	tx, err := r.drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", common.ErrDatabase, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query, args := r.builder().Delete(tableMessages).Where(entsql.EQ("conversation_id", id.String())).Query()
	if err = tx.Exec(ctx, query, args, nil); err != nil {
		return fmt.Errorf("%w: delete messages: %v", common.ErrDatabase, err)
	}
	var res sql.Result
	query, args = r.builder().Delete(tableConversations).Where(entsql.EQ("id", id.String())).Query()
	if err = tx.Exec(ctx, query, args, &res); err != nil {
		return fmt.Errorf("%w: delete conversation: %v", common.ErrDatabase, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = common.NotFoundf("conversation %s not found", id)
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", common.ErrDatabase, err)
	}
	r.logger.Info("conversation deleted", "conversation_id", id)
	return nil
}

func (r *conversationRepo) AppendMessage(ctx context.Context, m *entity.Message) (err error) {
	now := r.now().UTC()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.CreatedAt = now

	tx, err := r.drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", common.ErrDatabase, err)
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				r.logger.Warn("rollback failed", "conversation_id", m.ConversationID, "error", rerr)
			}
		}
	}()

	var res sql.Result
	query, args := r.builder().Update(tableConversations).
		Set("updated_at", now).
		Where(entsql.EQ("id", m.ConversationID.String())).
		Query()
	if err = tx.Exec(ctx, query, args, &res); err != nil {
		return fmt.Errorf("%w: touch conversation: %v", common.ErrDatabase, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = common.NotFoundf("conversation %s not found", m.ConversationID)
		return err
	}

	query, args = r.builder().Select("seq").
		From(entsql.Table(tableMessages)).
		Where(entsql.EQ("conversation_id", m.ConversationID.String())).
		OrderBy(entsql.Desc("seq")).
		Limit(1).
		Query()
	var rows entsql.Rows
	if err = tx.Query(ctx, query, args, &rows); err != nil {
		return fmt.Errorf("%w: next seq: %v", common.ErrDatabase, err)
	}
	last := 0
	if rows.Next() {
		err = rows.Scan(&last)
	}
	if cerr := rows.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("%w: next seq: %v", common.ErrDatabase, err)
	}
	m.Seq = last + 1

	query, args = r.builder().Insert(tableMessages).
		Columns(messageColumns...).
		Values(m.ID.String(), m.ConversationID.String(), m.Seq, m.Role, m.Content,
			m.InputTokens, m.OutputTokens, m.Model, now).
		Query()
	if err = tx.Exec(ctx, query, args, nil); err != nil {
		r.logger.Error("failed to insert message", "conversation_id", m.ConversationID, "seq", m.Seq, "error", err)
		return fmt.Errorf("%w: insert message: %v", common.ErrDatabase, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", common.ErrDatabase, err)
	}
	return nil
}

func (r *conversationRepo) Messages(ctx context.Context, conversationID uuid.UUID, limit int) ([]entity.Message, error) {
	sel := r.builder().Select(messageColumns...).
		From(entsql.Table(tableMessages)).
		Where(entsql.EQ("conversation_id", conversationID.String())).
		OrderBy(entsql.Desc("seq"))
	if limit > 0 {
		sel = sel.Limit(limit)
	}
	query, args := sel.Query()

	var rows entsql.Rows
	if err := r.drv.Query(ctx, query, args, &rows); err != nil {
		r.logger.Error("failed to query messages", "conversation_id", conversationID, "error", err)
		return nil, fmt.Errorf("%w: query messages: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []entity.Message
	for rows.Next() {
		var (
			m       entity.Message
			model   sql.NullString
			created dbTime
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Seq, &m.Role, &m.Content,
			&m.InputTokens, &m.OutputTokens, &model, &created); err != nil {
			return nil, fmt.Errorf("%w: scan message: %v", common.ErrDatabase, err)
		}
		m.Model = nullString(model)
		m.CreatedAt = created.Time
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate messages: %v", common.ErrDatabase, err)
	}
	// newest-first from the query, oldest-first for callers
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *conversationRepo) TokenStats(ctx context.Context, conversationID uuid.UUID) (entity.TokenStats, error) {
	query, args := r.builder().Select("input_tokens", "output_tokens").
		From(entsql.Table(tableMessages)).
		Where(entsql.EQ("conversation_id", conversationID.String())).
		Query()
	var rows entsql.Rows
	if err := r.drv.Query(ctx, query, args, &rows); err != nil {
		return entity.TokenStats{}, fmt.Errorf("%w: query token stats: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	var st entity.TokenStats
	for rows.Next() {
		var in, out int
		if err := rows.Scan(&in, &out); err != nil {
			return entity.TokenStats{}, fmt.Errorf("%w: scan token stats: %v", common.ErrDatabase, err)
		}
		st.InputTokens += in
		st.OutputTokens += out
		st.Messages++
	}
	if err := rows.Err(); err != nil {
		return entity.TokenStats{}, fmt.Errorf("%w: iterate token stats: %v", common.ErrDatabase, err)
	}
	st.TotalTokens = st.InputTokens + st.OutputTokens
	return st, nil
}

func (r *conversationRepo) queryConversations(ctx context.Context, query string, args []any) ([]*entity.Conversation, error) {
	var rows entsql.Rows
	if err := r.drv.Query(ctx, query, args, &rows); err != nil {
		r.logger.Error("failed to query conversations", "error", err)
		return nil, fmt.Errorf("%w: query conversations: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	out := []*entity.Conversation{}
	for rows.Next() {
		var (
			c                entity.Conversation
			created, updated dbTime
		)
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &created, &updated); err != nil {
			return nil, fmt.Errorf("%w: scan conversation: %v", common.ErrDatabase, err)
		}
		c.CreatedAt, c.UpdatedAt = created.Time, updated.Time
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate conversations: %v", common.ErrDatabase, err)
	}
	return out, nil
}
