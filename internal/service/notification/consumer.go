package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/jwalitptl/chat-api/internal/model"
	"github.com/jwalitptl/chat-api/internal/repository"
	"github.com/jwalitptl/chat-api/internal/service/audit"
	"github.com/jwalitptl/chat-api/pkg/logger"
	"github.com/jwalitptl/chat-api/pkg/metrics"
	"github.com/jwalitptl/chat-api/pkg/push"
	"github.com/jwalitptl/chat-api/pkg/queue"
)

type Status string

const (
	StatusDelivered Status = "delivered"
	StatusSkipped   Status = "skipped"
)

const (
	ReasonUserNotFound         = "user_not_found"
	ReasonUserOnline           = "user_online"
	ReasonAlreadyDelivered     = "already_delivered"
	ReasonUnsupportedRecipient = "unsupported_recipient"
)

// Result is the outcome of a processed job. Skips are successful outcomes.
type Result struct {
	Status         Status `json:"status"`
	Reason         string `json:"reason,omitempty"`
	NotificationID string `json:"notification_id,omitempty"`
}

func skipped(reason string) Result {
	return Result{Status: StatusSkipped, Reason: reason}
}

type PresenceChecker interface {
	IsOnline(ctx context.Context, memberType, id string) (bool, error)
}

type Consumer struct {
	participants  repository.ParticipantRepository
	presence      PresenceChecker
	notifications repository.NotificationRepository
	auditor       *audit.Service
	transport     push.Transport
	logger        *logger.Logger
	metrics       *metrics.Metrics
}

func NewConsumer(
	participants repository.ParticipantRepository,
	presence PresenceChecker,
	notifications repository.NotificationRepository,
	auditor *audit.Service,
	transport push.Transport,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Consumer {
	return &Consumer{
		participants:  participants,
		presence:      presence,
		notifications: notifications,
		auditor:       auditor,
		transport:     transport,
		logger:        logger,
		metrics:       metrics,
	}
}

// Handle is the worker entry point for new-message jobs. Returned errors
// fail the attempt so the queue retries it.
func (c *Consumer) Handle(ctx context.Context, job *queue.Job) error {
	var payload model.NotificationJob
	if err := job.Decode(&payload); err != nil {
		return err
	}

	res, err := c.Process(ctx, payload)
	if err != nil {
		return err
	}

	c.logger.Info("Notification job processed",
		"job_id", job.ID,
		"message_id", payload.MessageID.String(),
		"recipient_id", payload.RecipientID.String(),
		"status", string(res.Status),
		"reason", res.Reason,
	)
	return nil
}

// Process delivers one notification. It is safe to call again with the same
// job: a notification already pushed and audited is not pushed twice.
func (c *Consumer) Process(ctx context.Context, job model.NotificationJob) (Result, error) {
	recipient := model.Participant{ID: job.RecipientID, Type: job.RecipientType}

	switch recipient.Type {
	case model.MemberTypeUser:
	case model.MemberTypeAdmin:
		return c.skip(ReasonUnsupportedRecipient), nil
	default:
		return Result{}, fmt.Errorf("unknown recipient type %q", recipient.Type)
	}

	if _, err := c.participants.Get(ctx, recipient); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.skip(ReasonUserNotFound), nil
		}
		return Result{}, fmt.Errorf("failed to load recipient: %w", err)
	}

	online, err := c.presence.IsOnline(ctx, string(recipient.Type), recipient.ID.String())
	if err != nil {
		return Result{}, fmt.Errorf("failed to check presence: %w", err)
	}
	if online {
		return c.skip(ReasonUserOnline), nil
	}

	n := &model.Notification{
		UserID: recipient.ID,
		Title:  "New message from " + job.SenderName,
		Body:   job.ContentPreview,
		Data: model.NotificationData{
			Type:           model.NotificationTypeNewMessage,
			ConversationID: job.ConversationID,
			MessageID:      job.MessageID,
		},
	}
	created, err := c.notifications.CreateOnce(ctx, n)
	if err != nil {
		return Result{}, fmt.Errorf("failed to persist notification: %w", err)
	}
	if !created {
		done, err := c.auditor.Executed(ctx, model.AuditActionPush, n.ID)
		if err != nil {
			return Result{}, err
		}
		if done {
			return c.skip(ReasonAlreadyDelivered), nil
		}
	}

	p := push.Push{
		RecipientID: recipient.ID.String(),
		Title:       n.Title,
		Body:        n.Body,
		Data: map[string]string{
			"type":            n.Data.Type,
			"conversation_id": n.Data.ConversationID.String(),
			"message_id":      n.Data.MessageID.String(),
			"notification_id": n.ID.String(),
		},
	}
	if err := c.transport.Send(ctx, p); err != nil {
		c.metrics.PushDeliveries.WithLabelValues("failed").Inc()
		return Result{}, err
	}
	c.metrics.PushDeliveries.WithLabelValues("sent").Inc()

	if _, err := c.auditor.Record(ctx, model.AuditActionPush, n.ID, p); err != nil {
		return Result{}, err
	}

	return Result{Status: StatusDelivered, NotificationID: n.ID.String()}, nil
}

func (c *Consumer) skip(reason string) Result {
	c.metrics.JobsSkipped.WithLabelValues(reason).Inc()
	return skipped(reason)
}
