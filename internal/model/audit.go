package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const AuditActionPush = "PUSH"

// AuditAction is an append-only record of a side effect the pipeline executed.
type AuditAction struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	Type       string          `json:"type" db:"type"`
	TargetID   uuid.UUID       `json:"target_id" db:"target_id"`
	Payload    json.RawMessage `json:"payload" db:"payload"`
	Executed   bool            `json:"executed" db:"executed"`
	ExecutedAt *time.Time      `json:"executed_at,omitempty" db:"executed_at"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}
