package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/jwalitptl/chat-api/internal/model"
)

// ErrNotFound is returned when a looked up row does not exist.
var ErrNotFound = errors.New("record not found")

// All repository interfaces in one file
type (
	ConversationRepository interface {
		// Get loads the conversation with its members.
		Get(ctx context.Context, id uuid.UUID) (*model.Conversation, error)
		Create(ctx context.Context, conversation *model.Conversation) error
		IsMember(ctx context.Context, conversationID uuid.UUID, p model.Participant) (bool, error)
		ListMembers(ctx context.Context, conversationID uuid.UUID) ([]model.Membership, error)
	}

	MessageRepository interface {
		// Create assigns ID and CreatedAt; CreatedAt comes from the database clock.
		Create(ctx context.Context, message *model.Message) error
		Get(ctx context.Context, id uuid.UUID) (*model.Message, error)
		// ListByConversation returns one page ordered oldest first and the
		// total number of messages in the conversation.
		ListByConversation(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*model.Message, int, error)
	}

	ParticipantRepository interface {
		// Get resolves a user or admin. Soft-deleted participants are not found.
		Get(ctx context.Context, p model.Participant) (*model.Author, error)
		Exists(ctx context.Context, p model.Participant) (bool, error)
	}

	NotificationRepository interface {
		// CreateOnce inserts n unless a notification for the same message and
		// user exists, in which case n is overwritten with the stored row and
		// created is false.
		CreateOnce(ctx context.Context, n *model.Notification) (created bool, err error)
	}

	AuditRepository interface {
		Create(ctx context.Context, action *model.AuditAction) error
		ExistsForTarget(ctx context.Context, actionType string, targetID uuid.UUID) (bool, error)
	}
)
