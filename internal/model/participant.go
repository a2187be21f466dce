package model

import (
	"fmt"

	"github.com/google/uuid"
)

// MemberType is the kind of actor holding a membership.
type MemberType string

const (
	MemberTypeUser  MemberType = "USER"
	MemberTypeAdmin MemberType = "ADMIN"
)

func ParseMemberType(s string) (MemberType, error) {
	switch t := MemberType(s); t {
	case MemberTypeUser, MemberTypeAdmin:
		return t, nil
	default:
		return "", fmt.Errorf("unknown member type %q", s)
	}
}

func (t MemberType) Valid() bool {
	_, err := ParseMemberType(string(t))
	return err == nil
}

// Participant identifies an actor by id and kind. The same id may appear
// under both kinds.
type Participant struct {
	ID   uuid.UUID  `json:"id" db:"id"`
	Type MemberType `json:"type" db:"type"`
}

func (p Participant) Equal(o Participant) bool {
	return p.ID == o.ID && p.Type == o.Type
}

func (p Participant) String() string {
	return string(p.Type) + ":" + p.ID.String()
}

// Author is a participant resolved to its display name.
type Author struct {
	ID   uuid.UUID  `json:"id" db:"id"`
	Type MemberType `json:"type" db:"type"`
	Name string     `json:"name" db:"name"`
}

func (a Author) Participant() Participant {
	return Participant{ID: a.ID, Type: a.Type}
}
