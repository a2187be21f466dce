package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	MessageTypeText   MessageType = "TEXT"
	MessageTypeImage  MessageType = "IMAGE"
	MessageTypeFile   MessageType = "FILE"
	MessageTypeSystem MessageType = "SYSTEM"
)

const (
	MaxContentLength = 4000
	MaxAttachments   = 10
)

type Message struct {
	ID             uuid.UUID   `json:"id" db:"id"`
	ConversationID uuid.UUID   `json:"conversation_id" db:"conversation_id"`
	AuthorID       uuid.UUID   `json:"author_id" db:"author_id"`
	AuthorType     MemberType  `json:"author_type" db:"author_type"`
	Content        string      `json:"content" db:"content"`
	Type           MessageType `json:"type" db:"type"`
	ReplyToID      *uuid.UUID  `json:"reply_to_id,omitempty" db:"reply_to_id"`
	Attachments    Attachments `json:"attachments,omitempty" db:"attachments"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
}

func (m *Message) Author() Participant {
	return Participant{ID: m.AuthorID, Type: m.AuthorType}
}

type Attachment struct {
	URL      string `json:"url" binding:"required,url"`
	Name     string `json:"name" binding:"required,max=255"`
	MimeType string `json:"mime_type" binding:"omitempty,max=127"`
	Size     int64  `json:"size" binding:"gte=0"`
}

// Attachments is stored as a JSONB column.
type Attachments []Attachment

func (a Attachments) Value() (driver.Value, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(a)
}

func (a *Attachments) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*a = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("attachments: unsupported source type")
	}
	return json.Unmarshal(data, a)
}

// MessageList is one page of a conversation, oldest first.
type MessageList struct {
	Messages []*Message `json:"messages"`
	Total    int        `json:"total"`
	HasMore  bool       `json:"has_more"`
	Page     int        `json:"page"`
	PageSize int        `json:"page_size"`
}
