package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/chat-api/internal/model"
	"github.com/jwalitptl/chat-api/internal/repository"
)

const messageColumns = `id, conversation_id, author_id, author_type, content, type, reply_to_id, attachments, created_at`

type messageRepository struct {
	BaseRepository
}

func NewMessageRepository(base BaseRepository) repository.MessageRepository {
	return &messageRepository{base}
}

func (r *messageRepository) Create(ctx context.Context, m *model.Message) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}

	query := `
		INSERT INTO messages (
			id, conversation_id, author_id, author_type, content, type, reply_to_id, attachments
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		m.ID,
		m.ConversationID,
		m.AuthorID,
		m.AuthorType,
		m.Content,
		m.Type,
		m.ReplyToID,
		m.Attachments,
	).Scan(&m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

func (r *messageRepository) Get(ctx context.Context, id uuid.UUID) (*model.Message, error) {
	var m model.Message
	if err := r.db.GetContext(ctx, &m,
		`SELECT `+messageColumns+` FROM messages WHERE id = $1`, id,
	); err != nil {
		return nil, notFound(err, "message")
	}
	return &m, nil
}

func (r *messageRepository) ListByConversation(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*model.Message, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = $1`, conversationID,
	); err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	messages := []*model.Message{}
	if err := r.db.SelectContext(ctx, &messages, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2 OFFSET $3`,
		conversationID, limit, offset,
	); err != nil {
		return nil, 0, fmt.Errorf("failed to list messages: %w", err)
	}

	return messages, total, nil
}
