package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jwalitptl/chat-api/internal/model"
	"github.com/jwalitptl/chat-api/internal/repository"
)

type participantRepository struct {
	BaseRepository
}

func NewParticipantRepository(base BaseRepository) repository.ParticipantRepository {
	return &participantRepository{base}
}

func tableFor(t model.MemberType) (string, error) {
	switch t {
	case model.MemberTypeUser:
		return "users", nil
	case model.MemberTypeAdmin:
		return "admins", nil
	default:
		return "", fmt.Errorf("unknown member type %q", t)
	}
}

func (r *participantRepository) Get(ctx context.Context, p model.Participant) (*model.Author, error) {
	table, err := tableFor(p.Type)
	if err != nil {
		return nil, err
	}

	author := model.Author{Type: p.Type}
	err = r.db.QueryRowxContext(ctx,
		`SELECT id, name FROM `+table+` WHERE id = $1 AND deleted_at IS NULL`, p.ID,
	).Scan(&author.ID, &author.Name)
	if err != nil {
		return nil, notFound(err, "participant")
	}
	return &author, nil
}

func (r *participantRepository) Exists(ctx context.Context, p model.Participant) (bool, error) {
	_, err := r.Get(ctx, p)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
