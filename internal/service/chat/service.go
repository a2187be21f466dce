package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/chat-api/internal/model"
	"github.com/jwalitptl/chat-api/internal/repository"
	apperrors "github.com/jwalitptl/chat-api/pkg/errors"
	"github.com/jwalitptl/chat-api/pkg/messaging"
	"github.com/jwalitptl/chat-api/pkg/metrics"
)

const EventMessageCreated = "message.created"

// Notifier queues offline notifications. Implemented by the notification
// dispatcher; chat never depends on the consumer side.
type Notifier interface {
	Enqueue(ctx context.Context, job model.NotificationJob) error
}

type PresenceChecker interface {
	IsOnline(ctx context.Context, memberType, id string) (bool, error)
}

type Service struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	participants  repository.ParticipantRepository
	presence      PresenceChecker
	notifier      Notifier
	relay         messaging.Publisher
	metrics       *metrics.Metrics
}

func NewService(
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
	participants repository.ParticipantRepository,
	presence PresenceChecker,
	notifier Notifier,
	relay messaging.Publisher,
	metrics *metrics.Metrics,
) *Service {
	return &Service{
		conversations: conversations,
		messages:      messages,
		participants:  participants,
		presence:      presence,
		notifier:      notifier,
		relay:         relay,
		metrics:       metrics,
	}
}

type SendMessageInput struct {
	ConversationID uuid.UUID
	Author         model.Participant
	Content        string
	Type           model.MessageType
	ReplyToID      *uuid.UUID
	Attachments    model.Attachments
}

type SendResult struct {
	Message *model.Message `json:"message"`
	// DeliveryDegraded is set when at least one notification could not be
	// queued. The message itself is stored.
	DeliveryDegraded bool `json:"delivery_degraded"`
}

func validateSend(in *SendMessageInput) error {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return apperrors.BadRequest("content is required", nil)
	}
	if utf8.RuneCountInString(in.Content) > model.MaxContentLength {
		return apperrors.BadRequest(fmt.Sprintf("content exceeds %d characters", model.MaxContentLength), nil)
	}
	if len(in.Attachments) > model.MaxAttachments {
		return apperrors.BadRequest(fmt.Sprintf("at most %d attachments are allowed", model.MaxAttachments), nil)
	}

	switch in.Type {
	case "":
		in.Type = model.MessageTypeText
	case model.MessageTypeText, model.MessageTypeImage, model.MessageTypeFile, model.MessageTypeSystem:
	default:
		return apperrors.BadRequest(fmt.Sprintf("unknown message type %q", in.Type), nil)
	}
	return nil
}

// SendMessage stores a message from a member and queues notifications for
// the members who are offline.
func (s *Service) SendMessage(ctx context.Context, in SendMessageInput) (*SendResult, error) {
	conv, err := s.conversations.Get(ctx, in.ConversationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("conversation", err)
		}
		return nil, apperrors.Internal(err)
	}

	if !conv.HasMember(in.Author) {
		return nil, apperrors.Forbidden(nil)
	}

	exists, err := s.participants.Exists(ctx, in.Author)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if !exists {
		return nil, apperrors.NotFound("author", nil)
	}

	if err := validateSend(&in); err != nil {
		return nil, err
	}

	if in.ReplyToID != nil {
		if err := s.checkReplyTarget(ctx, conv.ID, *in.ReplyToID); err != nil {
			return nil, err
		}
	}

	msg := &model.Message{
		ConversationID: conv.ID,
		AuthorID:       in.Author.ID,
		AuthorType:     in.Author.Type,
		Content:        in.Content,
		Type:           in.Type,
		ReplyToID:      in.ReplyToID,
		Attachments:    in.Attachments,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, apperrors.Internal(err)
	}
	s.metrics.MessagesSent.Inc()

	s.publish(ctx, msg)

	return &SendResult{
		Message:          msg,
		DeliveryDegraded: s.fanOut(ctx, conv, msg),
	}, nil
}

// checkReplyTarget rejects a missing target and a target from another
// conversation with the same error.
func (s *Service) checkReplyTarget(ctx context.Context, conversationID, replyToID uuid.UUID) error {
	target, err := s.messages.Get(ctx, replyToID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return apperrors.Internal(err)
	}
	if err != nil || target.ConversationID != conversationID {
		return apperrors.BusinessValidation("reply target is not a message of this conversation", nil)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, msg *model.Message) {
	if s.relay == nil {
		return
	}
	event := messaging.Message{Type: EventMessageCreated, Payload: msg}
	if err := s.relay.Publish(ctx, messaging.ConversationChannel(msg.ConversationID.String()), event); err != nil {
		s.metrics.RelayPublishErrs.Inc()
		log.Warn().Err(err).Str("message_id", msg.ID.String()).Msg("Failed to relay message")
	}
}

// fanOut queues one job per offline USER member other than the author. It
// reports whether any enqueue failed.
func (s *Service) fanOut(ctx context.Context, conv *model.Conversation, msg *model.Message) bool {
	author := msg.Author()

	recipients := make([]model.Participant, 0, len(conv.Members))
	for _, m := range conv.Members {
		if p := m.Participant(); !p.Equal(author) {
			recipients = append(recipients, p)
		}
	}
	if len(recipients) == 0 {
		return false
	}

	sender, err := s.participants.Get(ctx, author)
	if err != nil {
		log.Debug().Err(err).Str("message_id", msg.ID.String()).Msg("Sender name unresolved, skipping notifications")
		return false
	}

	degraded := false
	preview := model.Preview(msg.Content)
	for _, p := range recipients {
		switch p.Type {
		case model.MemberTypeUser:
			online, err := s.presence.IsOnline(ctx, string(p.Type), p.ID.String())
			if err != nil {
				// the consumer checks presence again before pushing
				log.Warn().Err(err).Str("recipient_id", p.ID.String()).Msg("Presence check failed")
			}
			if online {
				continue
			}

			job := model.NotificationJob{
				RecipientID:    p.ID,
				RecipientType:  p.Type,
				MessageID:      msg.ID,
				ConversationID: msg.ConversationID,
				SenderName:     sender.Name,
				ContentPreview: preview,
			}
			if err := s.notifier.Enqueue(ctx, job); err != nil {
				degraded = true
				log.Error().Err(err).
					Str("message_id", msg.ID.String()).
					Str("recipient_id", p.ID.String()).
					Msg("Failed to enqueue notification")
			}
		case model.MemberTypeAdmin:
			// admins have no push channel
		default:
			log.Warn().Str("member", p.String()).Msg("Unknown member type, no notification")
		}
	}
	return degraded
}

// GetMessages returns one page of a conversation to a member, oldest first.
func (s *Service) GetMessages(ctx context.Context, conversationID uuid.UUID, requester model.Participant, page model.Pagination) (*model.MessageList, error) {
	ok, err := s.conversations.IsMember(ctx, conversationID, requester)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if !ok {
		return nil, apperrors.Forbidden(nil)
	}

	page = page.Normalize()
	skip := page.Offset()
	messages, total, err := s.messages.ListByConversation(ctx, conversationID, page.PageSize, skip)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	return &model.MessageList{
		Messages: messages,
		Total:    total,
		HasMore:  skip+len(messages) < total,
		Page:     page.Page,
		PageSize: page.PageSize,
	}, nil
}

// CreateConversation starts a conversation between existing participants.
// The requester must be one of them.
func (s *Service) CreateConversation(ctx context.Context, requester model.Participant, members []model.Participant) (*model.Conversation, error) {
	seen := make(map[model.Participant]bool, len(members))
	for _, m := range members {
		if !m.Type.Valid() {
			return nil, apperrors.BadRequest(fmt.Sprintf("unknown member type %q", m.Type), nil)
		}
		if seen[m] {
			return nil, apperrors.BadRequest("duplicate member "+m.String(), nil)
		}
		seen[m] = true
	}
	if len(seen) < 2 {
		return nil, apperrors.BadRequest("a conversation needs at least two members", nil)
	}
	if !seen[requester] {
		return nil, apperrors.Forbidden(nil)
	}

	conv := &model.Conversation{Members: make([]model.Membership, 0, len(members))}
	for _, m := range members {
		exists, err := s.participants.Exists(ctx, m)
		if err != nil {
			return nil, apperrors.Internal(err)
		}
		if !exists {
			return nil, apperrors.NotFound("participant "+m.String(), nil)
		}
		conv.Members = append(conv.Members, model.Membership{MemberID: m.ID, MemberType: m.Type})
	}

	if err := s.conversations.Create(ctx, conv); err != nil {
		return nil, apperrors.Internal(err)
	}
	return conv, nil
}
