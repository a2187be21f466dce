package chat

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/chat-api/internal/model"
	"github.com/jwalitptl/chat-api/internal/repository"
)

type memRepo struct {
	mu            sync.Mutex
	conversations map[uuid.UUID]*model.Conversation
	messages      map[uuid.UUID]*model.Message
	participants  map[model.Participant]string
	clock         time.Time
}

func newMemRepo() *memRepo {
	return &memRepo{
		conversations: make(map[uuid.UUID]*model.Conversation),
		messages:      make(map[uuid.UUID]*model.Message),
		participants:  make(map[model.Participant]string),
		clock:         time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (r *memRepo) addParticipant(t model.MemberType, name string) model.Participant {
	p := model.Participant{ID: uuid.New(), Type: t}
	r.participants[p] = name
	return p
}

func (r *memRepo) addConversation(members ...model.Participant) *model.Conversation {
	c := &model.Conversation{ID: uuid.New(), CreatedAt: r.clock}
	for _, m := range members {
		c.Members = append(c.Members, model.Membership{ConversationID: c.ID, MemberID: m.ID, MemberType: m.Type})
	}
	r.conversations[c.ID] = c
	return c
}

// conversations

type convRepo struct{ *memRepo }

func (r convRepo) Get(_ context.Context, id uuid.UUID) (*model.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conversations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r convRepo) Create(_ context.Context, c *model.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.ID = uuid.New()
	c.CreatedAt = r.clock
	for i := range c.Members {
		c.Members[i].ConversationID = c.ID
	}
	r.conversations[c.ID] = c
	return nil
}

func (r convRepo) IsMember(_ context.Context, id uuid.UUID, p model.Participant) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conversations[id]
	return ok && c.HasMember(p), nil
}

func (r convRepo) ListMembers(_ context.Context, id uuid.UUID) ([]model.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conversations[id]; ok {
		return c.Members, nil
	}
	return nil, nil
}

// messages

type msgRepo struct {
	*memRepo
	createErr error
}

func (r msgRepo) Create(_ context.Context, m *model.Message) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock = r.clock.Add(time.Millisecond)
	m.ID = uuid.New()
	m.CreatedAt = r.clock
	cp := *m
	r.messages[m.ID] = &cp
	return nil
}

func (r msgRepo) Get(_ context.Context, id uuid.UUID) (*model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return m, nil
}

func (r msgRepo) ListByConversation(_ context.Context, id uuid.UUID, limit, offset int) ([]*model.Message, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []*model.Message
	for _, m := range r.messages {
		if m.ConversationID == id {
			all = append(all, m)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })

	if offset >= len(all) {
		return []*model.Message{}, len(all), nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], len(all), nil
}

// participants

type partRepo struct{ *memRepo }

func (r partRepo) Get(_ context.Context, p model.Participant) (*model.Author, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name, ok := r.participants[p]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &model.Author{ID: p.ID, Type: p.Type, Name: name}, nil
}

func (r partRepo) Exists(ctx context.Context, p model.Participant) (bool, error) {
	_, err := r.Get(ctx, p)
	return err == nil, nil
}

// presence

type presenceMap map[string]bool

func (m presenceMap) IsOnline(_ context.Context, memberType, id string) (bool, error) {
	return m[memberType+":"+id], nil
}

func (m presenceMap) set(p model.Participant) {
	m[p.String()] = true
}

// notifier

type recordingNotifier struct {
	mu   sync.Mutex
	jobs []model.NotificationJob
	err  error
}

func (n *recordingNotifier) Enqueue(_ context.Context, job model.NotificationJob) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.jobs = append(n.jobs, job)
	return nil
}

type recordingRelay struct {
	channels []string
	err      error
}

func (r *recordingRelay) Publish(_ context.Context, channel string, _ interface{}) error {
	if r.err != nil {
		return r.err
	}
	r.channels = append(r.channels, channel)
	return nil
}

var errQueueDown = errors.New("queue unreachable")
