package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/chat-api/internal/model"
	"github.com/jwalitptl/chat-api/internal/repository"
)

type Service struct {
	repo repository.AuditRepository
	now  func() time.Time
}

func NewService(repo repository.AuditRepository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Record appends an executed action with a snapshot of payload.
func (s *Service) Record(ctx context.Context, actionType string, targetID uuid.UUID, payload interface{}) (*model.AuditAction, error) {
	snapshot, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit payload: %w", err)
	}

	now := s.now().UTC()
	action := &model.AuditAction{
		ID:         uuid.New(),
		Type:       actionType,
		TargetID:   targetID,
		Payload:    snapshot,
		Executed:   true,
		ExecutedAt: &now,
		CreatedAt:  now,
	}

	if err := s.repo.Create(ctx, action); err != nil {
		return nil, fmt.Errorf("failed to record %s audit action: %w", actionType, err)
	}
	return action, nil
}

// Executed reports whether an action of the given type was already recorded
// for target.
func (s *Service) Executed(ctx context.Context, actionType string, targetID uuid.UUID) (bool, error) {
	return s.repo.ExistsForTarget(ctx, actionType, targetID)
}
