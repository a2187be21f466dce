// Package cache decorates repositories with in-process caching.
package cache

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/chat-api/internal/model"
	"github.com/jwalitptl/chat-api/internal/repository"
)

type Config struct {
	TTL             time.Duration
	CleanupInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		TTL:             5 * time.Minute,
		CleanupInterval: 10 * time.Minute,
	}
}

// ParticipantRepository caches resolved authors for display. Lookups that
// fail are not cached, so a newly created participant is visible on the next
// call. Exists always reads through so a deleted participant is seen at once.
type ParticipantRepository struct {
	next  repository.ParticipantRepository
	cache *cache.Cache
}

func NewParticipantRepository(next repository.ParticipantRepository, config Config) *ParticipantRepository {
	return &ParticipantRepository{
		next:  next,
		cache: cache.New(config.TTL, config.CleanupInterval),
	}
}

func (r *ParticipantRepository) Get(ctx context.Context, p model.Participant) (*model.Author, error) {
	key := p.String()
	if cached, found := r.cache.Get(key); found {
		author := *cached.(*model.Author)
		return &author, nil
	}

	author, err := r.next.Get(ctx, p)
	if err != nil {
		return nil, err
	}

	stored := *author
	r.cache.Set(key, &stored, cache.DefaultExpiration)
	return author, nil
}

func (r *ParticipantRepository) Exists(ctx context.Context, p model.Participant) (bool, error) {
	ok, err := r.next.Exists(ctx, p)
	if err != nil {
		return false, err
	}
	if !ok {
		r.Invalidate(p)
	}
	return ok, nil
}

// Invalidate drops a cached participant, e.g. after it was renamed or deleted.
func (r *ParticipantRepository) Invalidate(p model.Participant) {
	r.cache.Delete(p.String())
}
