package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/chat-api/internal/model"
	"github.com/jwalitptl/chat-api/internal/repository"
)

type conversationRepository struct {
	BaseRepository
}

func NewConversationRepository(base BaseRepository) repository.ConversationRepository {
	return &conversationRepository{base}
}

func (r *conversationRepository) Create(ctx context.Context, c *model.Conversation) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = time.Now().UTC()

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO conversations (id, created_at) VALUES ($1, $2)`,
			c.ID, c.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to create conversation: %w", err)
		}

		for i := range c.Members {
			c.Members[i].ConversationID = c.ID
			m := c.Members[i]
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO conversation_members (conversation_id, member_id, member_type, position)
				VALUES ($1, $2, $3, $4)`,
				m.ConversationID, m.MemberID, m.MemberType, i,
			); err != nil {
				return fmt.Errorf("failed to add member %s: %w", m.Participant(), err)
			}
		}
		return nil
	})
}

func (r *conversationRepository) Get(ctx context.Context, id uuid.UUID) (*model.Conversation, error) {
	var c model.Conversation
	if err := r.db.GetContext(ctx, &c,
		`SELECT id, created_at FROM conversations WHERE id = $1`, id,
	); err != nil {
		return nil, notFound(err, "conversation")
	}

	members, err := r.ListMembers(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Members = members
	return &c, nil
}

func (r *conversationRepository) IsMember(ctx context.Context, conversationID uuid.UUID, p model.Participant) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM conversation_members
			WHERE conversation_id = $1 AND member_id = $2 AND member_type = $3
		)`,
		conversationID, p.ID, p.Type,
	)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return exists, nil
}

func (r *conversationRepository) ListMembers(ctx context.Context, conversationID uuid.UUID) ([]model.Membership, error) {
	var members []model.Membership
	err := r.db.SelectContext(ctx, &members, `
		SELECT conversation_id, member_id, member_type
		FROM conversation_members
		WHERE conversation_id = $1
		ORDER BY position`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return members, nil
}
