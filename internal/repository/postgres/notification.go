package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/chat-api/internal/model"
	"github.com/jwalitptl/chat-api/internal/repository"
)

type notificationRepository struct {
	BaseRepository
}

func NewNotificationRepository(base BaseRepository) repository.NotificationRepository {
	return &notificationRepository{base}
}

func (r *notificationRepository) CreateOnce(ctx context.Context, n *model.Notification) (bool, error) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}

	query := `
		INSERT INTO notifications (id, user_id, message_id, title, body, data)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (message_id, user_id) DO NOTHING
		RETURNING created_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		n.ID,
		n.UserID,
		n.Data.MessageID,
		n.Title,
		n.Body,
		n.Data,
	).Scan(&n.CreatedAt)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("failed to create notification: %w", err)
	}

	if err := r.db.GetContext(ctx, n, `
		SELECT id, user_id, title, body, data, created_at
		FROM notifications
		WHERE message_id = $1 AND user_id = $2`,
		n.Data.MessageID, n.UserID,
	); err != nil {
		return false, notFound(err, "notification")
	}
	return false, nil
}
