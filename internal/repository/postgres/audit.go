package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/chat-api/internal/model"
	"github.com/jwalitptl/chat-api/internal/repository"
)

type auditRepository struct {
	BaseRepository
}

func NewAuditRepository(base BaseRepository) repository.AuditRepository {
	return &auditRepository{base}
}

func (r *auditRepository) Create(ctx context.Context, a *model.AuditAction) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO audit_actions (
			id, type, target_id, payload, executed, executed_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		a.ID,
		a.Type,
		a.TargetID,
		a.Payload,
		a.Executed,
		a.ExecutedAt,
		a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit action: %w", err)
	}
	return nil
}

func (r *auditRepository) ExistsForTarget(ctx context.Context, actionType string, targetID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM audit_actions WHERE type = $1 AND target_id = $2 AND executed)`,
		actionType, targetID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to check audit actions: %w", err)
	}
	return exists, nil
}
