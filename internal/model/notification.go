package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	NewMessageJob              = "new-message"
	PreviewLength              = 100
	NotificationTypeNewMessage = "new_message"
)

// NotificationJob is the queue payload for one offline recipient of a message.
type NotificationJob struct {
	RecipientID    uuid.UUID  `json:"recipient_id"`
	RecipientType  MemberType `json:"recipient_type"`
	MessageID      uuid.UUID  `json:"message_id"`
	ConversationID uuid.UUID  `json:"conversation_id"`
	SenderName     string     `json:"sender_name"`
	ContentPreview string     `json:"content_preview"`
}

// Preview truncates content to PreviewLength runes.
func Preview(content string) string {
	runes := []rune(content)
	if len(runes) <= PreviewLength {
		return content
	}
	return string(runes[:PreviewLength]) + "..."
}

type Notification struct {
	ID        uuid.UUID        `json:"id" db:"id"`
	UserID    uuid.UUID        `json:"user_id" db:"user_id"`
	Title     string           `json:"title" db:"title"`
	Body      string           `json:"body" db:"body"`
	Data      NotificationData `json:"data" db:"data"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
}

type NotificationData struct {
	Type           string    `json:"type"`
	ConversationID uuid.UUID `json:"conversation_id"`
	MessageID      uuid.UUID `json:"message_id"`
}

func (d NotificationData) Value() (driver.Value, error) {
	return json.Marshal(d)
}

func (d *NotificationData) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	default:
		return errors.New("notification data: unsupported source type")
	}
}
