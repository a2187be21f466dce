package model

import (
	"time"

	"github.com/google/uuid"
)

type Conversation struct {
	ID        uuid.UUID    `json:"id" db:"id"`
	Members   []Membership `json:"members" db:"-"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
}

type Membership struct {
	ConversationID uuid.UUID  `json:"conversation_id" db:"conversation_id"`
	MemberID       uuid.UUID  `json:"member_id" db:"member_id"`
	MemberType     MemberType `json:"member_type" db:"member_type"`
}

func (m Membership) Participant() Participant {
	return Participant{ID: m.MemberID, Type: m.MemberType}
}

// HasMember reports whether p holds a membership, matching id and type.
func (c *Conversation) HasMember(p Participant) bool {
	for _, m := range c.Members {
		if m.Participant().Equal(p) {
			return true
		}
	}
	return false
}
